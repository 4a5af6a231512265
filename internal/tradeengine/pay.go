package tradeengine

import (
	"context"
	"fmt"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/fraud"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

// Pay debits the buyer's wallet and advances pending_payment ->
// payment_received (spec §6 POST /trades/:uuid/pay). The wallet movement
// happens inside the same transaction as the status write, so a crash
// between the two is impossible (spec §7: "partial payouts are impossible
// because payout and status change share a transaction" applies
// symmetrically to the initial debit).
func (e *Engine) Pay(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	return e.commitTransition(ctx, tradeUUID, trade.StatusPaymentReceived, history.ActorUser, "buyer payment captured",
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			if err := e.wallet.Pay(txCtx, locked.BuyerSteamID, locked.UUID, locked.Price); err != nil {
				return trade.Trade{}, fmt.Errorf("debit buyer: %w", err)
			}
			return locked, nil
		})
}

// RequestCancel sets the cancel-requested flag; the caller (HTTP handler
// or reconciler tick) must still call ResolveCancellation to actually
// move the trade to a terminal state, matching spec §5's "admin
// cancellation sets a cancel_requested flag; the next reconciler tick
// converts this to a terminal transition if the state is still
// cancellable."
func (e *Engine) RequestCancel(ctx context.Context, tradeUUID, reason string) error {
	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		locked, err := e.store.GetTradeForUpdate(txCtx, tradeUUID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			return apierrors.NewPrecondition(fmt.Sprintf("trade %s already terminal", tradeUUID))
		}
		locked.CancelReason = reason
		_, err = e.store.UpdateTrade(txCtx, locked)
		return err
	})
	if err != nil {
		return err
	}

	current, getErr := e.store.GetTrade(ctx, tradeUUID)
	if getErr == nil && current.Status != trade.StatusPendingPayment {
		e.reportFraud(fraud.KindRapidCancellation, current.BuyerSteamID, fmt.Sprintf("trade %s cancelled after reaching %s", tradeUUID, current.Status))
	}
	return nil
}

// ResolveCancellation converts a cancel-requested trade to cancelled (no
// funds captured yet) or refunded (funds already moved to escrow),
// refunding the buyer when needed.
func (e *Engine) ResolveCancellation(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if current.CancelReason == "" {
		return trade.Trade{}, apierrors.NewValidation("trade", "no cancellation requested")
	}

	target := trade.StatusCancelled
	if current.Status != trade.StatusPendingPayment {
		target = trade.StatusRefunded
	}
	if !trade.CanTransition(current.Status, target) {
		return trade.Trade{}, apierrors.NewPrecondition(fmt.Sprintf("trade %s: %s -> %s", tradeUUID, current.Status, target))
	}

	return e.commitTransition(ctx, tradeUUID, target, history.ActorAdmin, current.CancelReason,
		func(txCtx context.Context, locked trade.Trade) (trade.Trade, error) {
			if target == trade.StatusRefunded {
				if err := e.wallet.Refund(txCtx, locked.BuyerSteamID, locked.UUID, locked.Price); err != nil {
					return trade.Trade{}, fmt.Errorf("refund buyer: %w", err)
				}
			}
			if locked.AssignedBotID != "" {
				if err := e.bots.Release(txCtx, locked.AssignedBotID); err != nil {
					e.log.WithTrade(locked.UUID).WithError(err).Warn("failed to release bot on cancellation")
				}
			}
			return locked, nil
		})
}
