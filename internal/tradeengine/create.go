package tradeengine

import (
	"context"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

// CreateTrade validates the listing and buyer, snapshots pricing and the
// item, and writes the trade in pending_payment (spec §6 POST /trades).
func (e *Engine) CreateTrade(ctx context.Context, listingID int64, buyerSteamID, buyerTradeURL string) (trade.Trade, error) {
	if e.cfg.MaintenanceMode {
		return trade.Trade{}, apierrors.NewValidation("maintenance_mode", "new trades are disabled")
	}

	l, err := e.store.GetListing(ctx, listingID)
	if err != nil {
		return trade.Trade{}, err
	}
	if l.Status != listing.StatusActive {
		return trade.Trade{}, apierrors.NewValidation("listing_id", "listing is not active")
	}
	if l.SellerSteamID == buyerSteamID {
		return trade.Trade{}, apierrors.NewValidation("buyer_steam_id", "seller cannot buy their own listing")
	}
	if buyerTradeURL == "" && l.Kind == listing.KindPeer {
		return trade.Trade{}, apierrors.NewValidation("buyer_trade_url", "required for peer listings")
	}

	buyer, err := e.store.GetUser(ctx, buyerSteamID)
	if err != nil {
		return trade.Trade{}, err
	}
	if buyer.Banned {
		return trade.Trade{}, apierrors.NewValidation("buyer_steam_id", "account is banned")
	}

	now := e.clock.Now()
	t := trade.Trade{
		UUID:          e.newTradeUUID(),
		ListingID:     l.ID,
		BuyerSteamID:  buyerSteamID,
		SellerSteamID: l.SellerSteamID,
		Item:          l.Item,
		Price:         l.Price,
		FeePercent:    e.cfg.PlatformFeePercent,
		Status:        trade.StatusPendingPayment,
		ExpiresAt:     now.Add(e.cfg.TradeTimeout),
	}
	t.ComputePricing()

	t, err = e.store.CreateTrade(ctx, t)
	if err != nil {
		return trade.Trade{}, err
	}

	l.Status = listing.StatusReserved
	if _, err := e.store.UpdateListing(ctx, l); err != nil {
		e.log.WithTrade(t.UUID).WithError(err).Warn("failed to mark listing reserved")
	}

	_, _ = e.audit.Record(ctx, t.UUID, "", string(trade.StatusPendingPayment), history.ActorUser, "trade created")

	return t, nil
}
