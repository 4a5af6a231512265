package tradeengine

import (
	"context"
	"fmt"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

// ResolveDispute is the admin-only operation that closes out a disputed
// trade in either direction: refunded (buyer's favor) or completed
// (seller's favor, posting the seller payout as if the item had been
// confirmed delivered). Only a human admin calls this; the reconciler
// never resolves a dispute on its own.
func (e *Engine) ResolveDispute(ctx context.Context, tradeUUID string, outcome trade.Status, notes string) (trade.Trade, error) {
	if outcome != trade.StatusRefunded && outcome != trade.StatusCompleted {
		return trade.Trade{}, apierrors.NewValidation("outcome", "must be refunded or completed")
	}
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if current.Status != trade.StatusDisputed {
		return trade.Trade{}, apierrors.NewPrecondition(fmt.Sprintf("trade %s is not disputed", tradeUUID))
	}

	return e.commitTransition(ctx, tradeUUID, outcome, history.ActorAdmin, notes,
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			switch outcome {
			case trade.StatusRefunded:
				if err := e.wallet.Refund(txCtx, locked.BuyerSteamID, locked.UUID, locked.Price); err != nil {
					return trade.Trade{}, fmt.Errorf("refund buyer on dispute resolution: %w", err)
				}
			case trade.StatusCompleted:
				if locked.SellerSteamID != "" {
					if err := e.wallet.Payout(txCtx, locked.SellerSteamID, locked.UUID, locked.SellerPayout, locked.PlatformFee); err != nil {
						return trade.Trade{}, fmt.Errorf("pay seller on dispute resolution: %w", err)
					}
				}
			}
			if locked.AssignedBotID != "" {
				if err := e.bots.Release(txCtx, locked.AssignedBotID); err != nil {
					e.log.WithTrade(locked.UUID).WithError(err).Warn("failed to release bot on dispute resolution")
				}
			}
			return locked, nil
		})
}
