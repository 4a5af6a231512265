package tradeengine

import (
	"context"
	"fmt"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/fraud"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

// maxRetries returns the configured retry ceiling before an errored trade
// escalates to disputed (spec §7, default 5).
func (e *Engine) maxRetries() int {
	if e.cfg.MaxRetries > 0 {
		return e.cfg.MaxRetries
	}
	return trade.MaxForwardingRetries
}

// maxForwardingRetries returns the ceiling for the buyer-side forwarding
// leg specifically. A bot that already holds the buyer's paid-for item
// and keeps failing to hand it off is a different risk profile than a
// seller who hasn't shipped yet, so it gets its own, typically tighter,
// configured threshold rather than sharing maxRetries.
func (e *Engine) maxForwardingRetries() int {
	if e.cfg.ForwardFailureLimit > 0 {
		return e.cfg.ForwardFailureLimit
	}
	return e.maxRetries()
}

// RetryOrEscalate re-attempts the external effect blocking t if its
// retry count is still under the ceiling; once the ceiling is passed it
// escalates to disputed instead of retrying again (spec §7's "after
// max_retries the trade moves to disputed").
func (e *Engine) RetryOrEscalate(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}

	ceiling := e.maxRetries()
	if current.Status == trade.StatusErrorForwarding {
		ceiling = e.maxForwardingRetries()
	}
	if current.RetryCount >= ceiling {
		return e.escalate(ctx, tradeUUID)
	}

	switch current.Status {
	case trade.StatusErrorSending:
		return e.retrySellerPoll(ctx, tradeUUID)
	case trade.StatusErrorForwarding:
		return e.retryBuyerPoll(ctx, tradeUUID)
	default:
		return trade.Trade{}, nil
	}
}

// retrySellerPoll re-arms a trade stuck in error_sending by putting it
// back in awaiting_seller (domain/trade/model.go's error_sending ->
// awaiting_seller edge), where AdvanceSellerAccepted picks it up on the
// next tick and polls the already-sent seller offer again. markSendFailure
// already bumped RetryCount when the trade entered error_sending, and
// bumps it again on every subsequent poll failure, so repeated retries
// still count toward the escalation ceiling above without double-counting
// here.
func (e *Engine) retrySellerPoll(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	return e.commitTransition(ctx, tradeUUID, trade.StatusAwaitingSeller, history.ActorSystem, "retrying seller offer poll", passthrough)
}

// retryBuyerPoll is retrySellerPoll's counterpart for error_forwarding ->
// awaiting_buyer.
func (e *Engine) retryBuyerPoll(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	return e.commitTransition(ctx, tradeUUID, trade.StatusAwaitingBuyer, history.ActorSystem, "retrying buyer offer poll", passthrough)
}

// bumpRetryCount increments a trade's retry count without changing its
// status, used when a send fails before the trade has ever entered a
// state with a legal error edge (spec §8 property 5: a history row must
// always describe an edge present in §4.3, so a same-status write must
// not produce one).
func (e *Engine) bumpRetryCount(ctx context.Context, tradeUUID string, cause error) (trade.Trade, error) {
	var result trade.Trade
	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		locked, err := e.store.GetTradeForUpdate(txCtx, tradeUUID)
		if err != nil {
			return err
		}
		locked.RetryCount++
		result, err = e.store.UpdateTrade(txCtx, locked)
		return err
	})
	if err != nil {
		return trade.Trade{}, err
	}
	return result, cause
}

func (e *Engine) escalate(ctx context.Context, tradeUUID string) (trade.Trade, error) {
	current, err := e.store.GetTrade(ctx, tradeUUID)
	if err != nil {
		return trade.Trade{}, err
	}
	if !trade.CanTransition(current.Status, trade.StatusDisputed) {
		return trade.Trade{}, apierrors.NewPrecondition(fmt.Sprintf("trade %s cannot escalate from %s", tradeUUID, current.Status))
	}
	e.reportFraud(fraud.KindItemMissing, current.SellerSteamID, fmt.Sprintf("trade %s: delivery retries exhausted from %s", tradeUUID, current.Status))
	return e.commitTransition(ctx, tradeUUID, trade.StatusDisputed, history.ActorSystem,
		fmt.Sprintf("retry count %d exceeded max_retries, held for admin review", current.RetryCount), passthrough)
}
