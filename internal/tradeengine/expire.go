package tradeengine

import (
	"context"
	"fmt"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

// Expire moves a trade past its global deadline to expired, refunding
// the buyer's captured funds (spec §4.3's "any non-terminal after
// payment_received auto-expired after T_total", spec §8 property 7).
func (e *Engine) Expire(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if !trade.CanTransition(current.Status, trade.StatusExpired) {
		return trade.Trade{}, apierrors.NewPrecondition(fmt.Sprintf("trade %s cannot expire from %s", tradeUUID, current.Status))
	}

	return e.commitTransition(ctx, tradeUUID, trade.StatusExpired, history.ActorSystem, "deadline elapsed, refunding buyer",
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			if err := e.wallet.Refund(txCtx, locked.BuyerSteamID, locked.UUID, locked.Price); err != nil {
				return trade.Trade{}, fmt.Errorf("refund buyer on expiry: %w", err)
			}
			if locked.AssignedBotID != "" {
				if err := e.bots.Release(txCtx, locked.AssignedBotID); err != nil {
					e.log.WithTrade(locked.UUID).WithError(err).Warn("failed to release bot on expiry")
				}
			}
			return locked, nil
		})
}
