package tradeengine

import (
	"context"
	"fmt"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/fraud"
	"github.com/skinvault/escrow/internal/steamclient"
)

// AdvanceAfterPayment runs the external effect for payment_received's
// outgoing edge: acquire a bot, then for peer listings send an offer
// requesting the item from the seller (-> awaiting_seller); for
// bot-owned listings the bot already holds the item, so it sends the
// delivery offer straight to the buyer (-> awaiting_buyer).
//
// Steam calls happen before the locking transaction is opened (spec
// §5's "Transitions hold a row lock only for the duration of the DB
// transaction, not across the Steam call"); the idempotency key cache
// ensures a retry after a crash reuses the same offer id instead of
// sending a duplicate (spec §8 S3).
func (e *Engine) AdvanceAfterPayment(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if current.Status != trade.StatusPaymentReceived {
		return trade.Trade{}, nil
	}

	l, err := e.store.GetListing(ctx, current.ListingID)
	if err != nil {
		return trade.Trade{}, err
	}

	if current.AssignedBotID == "" {
		b, err := e.bots.Acquire(ctx, nil)
		if err != nil {
			return trade.Trade{}, fmt.Errorf("acquire bot: %w", err)
		}
		current.AssignedBotID = b.ID
		current, err = e.store.UpdateTrade(ctx, current)
		if err != nil {
			return trade.Trade{}, err
		}
	}

	bot, err := e.store.GetBot(ctx, current.AssignedBotID)
	if err != nil {
		return trade.Trade{}, err
	}
	session, err := e.bots.Session(ctx, bot)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("bot session: %w", err)
	}

	if l.Kind == listing.KindPeer {
		if err := e.verifySellerOwnsItem(ctx, current); err != nil {
			return e.bumpRetryCount(ctx, tradeUUID, err)
		}

		offerID, err := e.sendOfferIdempotent(ctx, current, trade.StatusAwaitingSeller, session, current.SellerSteamID, "", []steamclient.Item{itemFrom(current)}, nil)
		if err != nil {
			return e.bumpRetryCount(ctx, tradeUUID, fmt.Errorf("send offer to seller: %w", err))
		}
		return e.commitTransition(ctx, tradeUUID, trade.StatusAwaitingSeller, history.ActorSystem, "offer sent requesting item from seller",
			func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
				locked.SellerOfferID = offerID
				locked.SellerLegSentAt = e.clock.Now()
				return locked, nil
			})
	}

	offerID, err := e.sendOfferIdempotent(ctx, current, trade.StatusAwaitingBuyer, session, current.BuyerSteamID, "", nil, []steamclient.Item{itemFrom(current)})
	if err != nil {
		return e.bumpRetryCount(ctx, tradeUUID, fmt.Errorf("send offer to buyer: %w", err))
	}
	return e.commitTransition(ctx, tradeUUID, trade.StatusAwaitingBuyer, history.ActorSystem, "offer sent delivering bot-owned item to buyer",
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			locked.BuyerOfferID = offerID
			locked.BuyerLegSentAt = e.clock.Now()
			return locked, nil
		})
}

// AdvanceSellerAccepted polls the seller-side offer; on acceptance it
// moves awaiting_seller -> seller_accepted.
func (e *Engine) AdvanceSellerAccepted(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if current.Status != trade.StatusAwaitingSeller || current.SellerOfferID == "" {
		return trade.Trade{}, nil
	}

	bot, err := e.store.GetBot(ctx, current.AssignedBotID)
	if err != nil {
		return trade.Trade{}, err
	}
	session, err := e.bots.Session(ctx, bot)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("bot session: %w", err)
	}

	state, err := e.steam.PollOffer(ctx, session, current.SellerOfferID)
	if err != nil {
		return e.markSendFailure(ctx, tradeUUID, fmt.Errorf("poll seller offer: %w", err))
	}

	switch state {
	case steamclient.OfferAccepted:
		return e.commitTransition(ctx, tradeUUID, trade.StatusSellerAccepted, history.ActorSystem, "seller offer accepted", passthrough)
	case steamclient.OfferDeclined, steamclient.OfferCancelled, steamclient.OfferExpired:
		return e.commitTransition(ctx, tradeUUID, trade.StatusRefunded, history.ActorSystem, "seller declined/cancelled/expired, refunding buyer",
			func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
				if err := e.wallet.Refund(txCtx, locked.BuyerSteamID, locked.UUID, locked.Price); err != nil {
					return trade.Trade{}, fmt.Errorf("refund buyer: %w", err)
				}
				return locked, nil
			})
	default:
		return trade.Trade{}, nil // still active, nothing to do this tick
	}
}

// AdvanceToBuyerLeg sends the buyer-delivery offer once the bot has
// received the item from the seller (peer listings only; bot-owned
// listings already sent this leg in AdvanceAfterPayment).
func (e *Engine) AdvanceToBuyerLeg(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if current.Status != trade.StatusSellerAccepted {
		return trade.Trade{}, nil
	}

	bot, err := e.store.GetBot(ctx, current.AssignedBotID)
	if err != nil {
		return trade.Trade{}, err
	}
	session, err := e.bots.Session(ctx, bot)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("bot session: %w", err)
	}

	offerID, err := e.sendOfferIdempotent(ctx, current, trade.StatusAwaitingBuyer, session, current.BuyerSteamID, "", nil, []steamclient.Item{itemFrom(current)})
	if err != nil {
		return e.bumpRetryCount(ctx, tradeUUID, fmt.Errorf("send offer to buyer: %w", err))
	}
	return e.commitTransition(ctx, tradeUUID, trade.StatusAwaitingBuyer, history.ActorSystem, "offer sent delivering item to buyer",
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			locked.BuyerOfferID = offerID
			locked.BuyerLegSentAt = e.clock.Now()
			return locked, nil
		})
}

// AdvanceBuyerAccepted polls the buyer-side offer; on acceptance it moves
// awaiting_buyer -> buyer_accepted.
func (e *Engine) AdvanceBuyerAccepted(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if current.Status != trade.StatusAwaitingBuyer || current.BuyerOfferID == "" {
		return trade.Trade{}, nil
	}

	bot, err := e.store.GetBot(ctx, current.AssignedBotID)
	if err != nil {
		return trade.Trade{}, err
	}
	session, err := e.bots.Session(ctx, bot)
	if err != nil {
		return trade.Trade{}, fmt.Errorf("bot session: %w", err)
	}

	state, err := e.steam.PollOffer(ctx, session, current.BuyerOfferID)
	if err != nil {
		return e.markForwardingFailure(ctx, tradeUUID, err)
	}

	switch state {
	case steamclient.OfferAccepted:
		return e.commitTransition(ctx, tradeUUID, trade.StatusBuyerAccepted, history.ActorSystem, "buyer accepted delivery", passthrough)
	case steamclient.OfferDeclined, steamclient.OfferCancelled, steamclient.OfferExpired:
		return e.commitTransition(ctx, tradeUUID, trade.StatusDisputed, history.ActorSystem, "buyer declined/cancelled/expired delivery offer", passthrough)
	default:
		return trade.Trade{}, nil
	}
}

// Complete posts the seller payout and platform fee, moving
// buyer_accepted -> completed. This is purely internal (no Steam call),
// so the ledger write and status write share one transaction exactly as
// spec §7 requires.
func (e *Engine) Complete(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	return e.commitTransition(ctx, tradeUUID, trade.StatusCompleted, history.ActorSystem, "seller payout posted",
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			if locked.SellerSteamID != "" {
				if err := e.wallet.Payout(txCtx, locked.SellerSteamID, locked.UUID, locked.SellerPayout, locked.PlatformFee); err != nil {
					return trade.Trade{}, fmt.Errorf("pay seller: %w", err)
				}
			}
			if locked.AssignedBotID != "" {
				if err := e.bots.Release(txCtx, locked.AssignedBotID); err != nil {
					e.log.WithTrade(locked.UUID).WithError(err).Warn("failed to release bot on completion")
				}
			}
			return locked, nil
		})
}

// passthrough is a mutate func that performs no additional field changes;
// the target status itself is the only thing changing.
func passthrough(_ context.Context, locked trade.Trade) (trade.Trade, error) {
	return locked, nil
}

func itemFrom(t trade.Trade) steamclient.Item {
	return steamclient.Item{AssetID: t.Item.AssetID, AppID: t.Item.AppID, ContextID: t.Item.ContextID}
}

// verifySellerOwnsItem confirms a peer listing's item is still in the
// seller's inventory before the bot requests it, reporting a fraud
// signal either way the check comes back bad: an inventory fetch
// failure is treated as ownership_check_failed, a confirmed absence as
// item_missing (the seller likely already traded or sold it elsewhere).
func (e *Engine) verifySellerOwnsItem(ctx context.Context, t trade.Trade) error {
	items, err := e.steam.FetchInventory(ctx, t.SellerSteamID, t.Item.AppID, t.Item.ContextID)
	if err != nil {
		e.reportFraud(fraud.KindOwnershipCheckFailed, t.SellerSteamID, fmt.Sprintf("trade %s: inventory fetch failed: %v", t.UUID, err))
		return fmt.Errorf("verify seller inventory: %w", err)
	}
	for _, it := range items {
		if it.AssetID == t.Item.AssetID {
			return nil
		}
	}
	e.reportFraud(fraud.KindItemMissing, t.SellerSteamID, fmt.Sprintf("trade %s: asset %s not found in seller inventory", t.UUID, t.Item.AssetID))
	return fmt.Errorf("item no longer in seller inventory")
}

// sendOfferIdempotent checks the idempotency cache before calling
// SendOffer so a retried transition after a crash reuses the same offer
// id (spec §4.3's idempotency key scheme, §8 S3).
func (e *Engine) sendOfferIdempotent(ctx context.Context, t trade.Trade, target trade.Status, session steamclient.Session, partnerSteamID, tradeToken string, theirItems, myItems []steamclient.Item) (string, error) {
	if cached, ok := e.idempotentOfferID(ctx, t.UUID, target); ok {
		return cached, nil
	}
	offerID, err := e.steam.SendOffer(ctx, session, partnerSteamID, tradeToken, theirItems, myItems, fmt.Sprintf("escrow trade %s", t.UUID))
	if err != nil {
		return "", err
	}
	e.recordIdempotentOfferID(ctx, t.UUID, target, offerID)
	return offerID, nil
}

// markSendFailure transitions a trade already in awaiting_seller to
// error_sending, recording the retry. It does not capture the underlying
// error's classification — that is the reconciler's job (spec §7: retry
// count drives the escalation to disputed).
func (e *Engine) markSendFailure(ctx context.Context, tradeUUID string, cause error) (trade.Trade, error) {
	t, txErr := e.commitTransition(ctx, tradeUUID, trade.StatusErrorSending, history.ActorSystem, cause.Error(),
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			locked.RetryCount++
			return locked, nil
		})
	if txErr != nil {
		return trade.Trade{}, txErr
	}
	return t, cause
}

func (e *Engine) markForwardingFailure(ctx context.Context, tradeUUID string, cause error) (trade.Trade, error) {
	t, txErr := e.commitTransition(ctx, tradeUUID, trade.StatusErrorForwarding, history.ActorSystem, cause.Error(),
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			locked.RetryCount++
			return locked, nil
		})
	if txErr != nil {
		return trade.Trade{}, txErr
	}
	return t, cause
}
