package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

const tradeColumns = `uuid, listing_id, buyer_steam_id, seller_steam_id, assigned_bot_id, item, price, fee_percent,
	platform_fee, seller_payout, seller_offer_id, buyer_offer_id, status, cancel_reason, notes, retry_count,
	expires_at, seller_leg_sent_at, buyer_leg_sent_at, created_at, updated_at`

func (s *Store) CreateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	item, err := json.Marshal(t.Item)
	if err != nil {
		return trade.Trade{}, err
	}

	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO escrow_trades (`+tradeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		t.UUID, t.ListingID, t.BuyerSteamID, t.SellerSteamID, nullString(t.AssignedBotID), item,
		t.Price.String(), t.FeePercent, t.PlatformFee.String(), t.SellerPayout.String(),
		nullString(t.SellerOfferID), nullString(t.BuyerOfferID), t.Status, t.CancelReason, t.Notes,
		t.RetryCount, t.ExpiresAt, nullTime(t.SellerLegSentAt), nullTime(t.BuyerLegSentAt), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return trade.Trade{}, err
	}
	return t, nil
}

// GetTradeForUpdate locks the trade row for the duration of the
// enclosing transaction (spec §4.3 step 1). It must be called with a
// context produced by Store.WithTx; calling it outside a transaction
// still works against Postgres but the lock is released immediately,
// which defeats its purpose, so callers always go through WithTx.
func (s *Store) GetTradeForUpdate(ctx context.Context, uuid string) (trade.Trade, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+tradeColumns+` FROM escrow_trades WHERE uuid = $1 FOR UPDATE
	`, uuid)
	return scanTrade(row, uuid)
}

func (s *Store) GetTrade(ctx context.Context, uuid string) (trade.Trade, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+tradeColumns+` FROM escrow_trades WHERE uuid = $1
	`, uuid)
	return scanTrade(row, uuid)
}

func (s *Store) UpdateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	t.UpdatedAt = time.Now().UTC()
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE escrow_trades SET
			assigned_bot_id = $2, seller_offer_id = $3, buyer_offer_id = $4, status = $5,
			cancel_reason = $6, notes = $7, retry_count = $8, expires_at = $9,
			seller_leg_sent_at = $10, buyer_leg_sent_at = $11, updated_at = $12
		WHERE uuid = $1
	`, t.UUID, nullString(t.AssignedBotID), nullString(t.SellerOfferID), nullString(t.BuyerOfferID), t.Status,
		t.CancelReason, t.Notes, t.RetryCount, t.ExpiresAt, nullTime(t.SellerLegSentAt), nullTime(t.BuyerLegSentAt), t.UpdatedAt)
	if err != nil {
		return trade.Trade{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return trade.Trade{}, apierrors.NewNotFound("trade", t.UUID)
	}
	return t, nil
}

// ListDueForReconciliation implements the reconciler's scan (spec §4.3's
// poll loop): non-terminal trades whose expires_at has passed, plus any
// trade with a pending cancel request, plus any trade sitting in a state
// the reconciler actively polls, retries, or finishes
// (payment_received for sending the first offer, awaiting_seller/
// awaiting_buyer for PollOffer, error_sending/error_forwarding for
// RetryOrEscalate, buyer_accepted for the payout) regardless of expiry,
// since those need attention on every tick rather than only once expired.
func (s *Store) ListDueForReconciliation(ctx context.Context, limit int) ([]trade.Trade, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM escrow_trades
		WHERE status NOT IN ($1,$2,$3,$4)
		  AND (expires_at <= now() OR cancel_reason <> '' OR status IN ($5,$6,$7,$8,$9,$10))
		ORDER BY expires_at ASC LIMIT $11
	`, trade.StatusCompleted, trade.StatusCancelled, trade.StatusRefunded, trade.StatusExpired,
		trade.StatusPaymentReceived, trade.StatusAwaitingSeller, trade.StatusAwaitingBuyer, trade.StatusErrorSending, trade.StatusErrorForwarding,
		trade.StatusBuyerAccepted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trade.Trade
	for rows.Next() {
		t, err := scanTrade(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(row rowScanner, uuid string) (trade.Trade, error) {
	var (
		t                                          trade.Trade
		itemRaw                                    []byte
		price, fee, payout                         string
		assignedBotID, sellerOfferID, buyerOfferID sql.NullString
		sellerLegSentAt, buyerLegSentAt             sql.NullTime
	)
	err := row.Scan(
		&t.UUID, &t.ListingID, &t.BuyerSteamID, &t.SellerSteamID, &assignedBotID, &itemRaw,
		&price, &t.FeePercent, &fee, &payout, &sellerOfferID, &buyerOfferID, &t.Status,
		&t.CancelReason, &t.Notes, &t.RetryCount, &t.ExpiresAt, &sellerLegSentAt, &buyerLegSentAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return trade.Trade{}, apierrors.NewNotFound("trade", uuid)
		}
		return trade.Trade{}, err
	}

	if err := json.Unmarshal(itemRaw, &t.Item); err != nil {
		return trade.Trade{}, err
	}
	t.AssignedBotID = assignedBotID.String
	t.SellerOfferID = sellerOfferID.String
	t.BuyerOfferID = buyerOfferID.String
	t.SellerLegSentAt = sellerLegSentAt.Time
	t.BuyerLegSentAt = buyerLegSentAt.Time

	if t.Price, err = money.FromString(price); err != nil {
		return trade.Trade{}, err
	}
	if t.PlatformFee, err = money.FromString(fee); err != nil {
		return trade.Trade{}, err
	}
	if t.SellerPayout, err = money.FromString(payout); err != nil {
		return trade.Trade{}, err
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
