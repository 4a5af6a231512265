// Package tradeengine implements the state machine driver (C8): the
// six-step transition protocol of spec.md §4.3 (read under row lock,
// validate the legal edge, perform an idempotent external effect, write
// state+history+ledger in one transaction, commit, enqueue
// notifications), plus the buyer/seller-facing operations the HTTP API
// and the reconciler call into.
//
// Grounded in internal/marble/worker.go's ChannelLoop/WorkerGroup style
// for the worker pool draining transition jobs, generalized from signed
// blockchain transactions to Steam trade offers.
package tradeengine

import (
	"context"
	"fmt"
	"time"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/notification"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/audit"
	"github.com/skinvault/escrow/internal/botfleet"
	"github.com/skinvault/escrow/internal/fraud"
	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/internal/platform/clock"
	"github.com/skinvault/escrow/internal/platform/config"
	"github.com/skinvault/escrow/internal/platform/idgen"
	"github.com/skinvault/escrow/internal/platform/kv"
	"github.com/skinvault/escrow/internal/steamclient"
	"github.com/skinvault/escrow/internal/storage"
	"github.com/skinvault/escrow/internal/wallet"
	"github.com/skinvault/escrow/pkg/logger"
)

// Notifier is the narrow interface the engine needs to enqueue a
// notification after a transition commits; internal/notifier implements it.
type Notifier interface {
	Enqueue(ctx context.Context, n notification.Notification) error
}

// FraudReporter is the narrow interface the engine needs to surface a
// risk signal; internal/fraud.Flagger implements it. Optional: a nil
// reporter (the default) makes Report calls a no-op, since spec.md §4.8
// is additive and an engine built without a flagger wired in must still
// run every trade transition.
type FraudReporter interface {
	Report(evt fraud.Event)
}

// Engine drives every legal trade transition.
type Engine struct {
	store  storage.Store
	wallet *wallet.Ledger
	bots   *botfleet.Manager
	steam  steamclient.Client
	kv     kv.Store
	notify Notifier
	audit  *audit.Log
	fraud  FraudReporter
	clock  clock.Clock
	cfg    config.Config
	log    *logger.Logger
}

// New creates an Engine.
func New(store storage.Store, wal *wallet.Ledger, bots *botfleet.Manager, steam steamclient.Client, kvStore kv.Store, notify Notifier, c clock.Clock, cfg config.Config, log *logger.Logger) *Engine {
	return &Engine{store: store, wallet: wal, bots: bots, steam: steam, kv: kvStore, notify: notify, audit: audit.New(store), clock: c, cfg: cfg, log: log}
}

// SetFraudReporter wires C12 into the engine after construction, since
// the flagger itself is built from storage.UserStore and has no
// dependency on the engine; cmd/orchestrator calls this once both are
// constructed.
func (e *Engine) SetFraudReporter(r FraudReporter) {
	e.fraud = r
}

// reportFraud is a nil-safe convenience wrapper around e.fraud.Report.
func (e *Engine) reportFraud(kind fraud.Kind, userID, detail string) {
	if e.fraud == nil {
		return
	}
	e.fraud.Report(fraud.Event{Kind: kind, UserID: userID, Detail: detail})
}

// idempotencyTTL is the KV TTL backing the "{trade_uuid}:{target_state}"
// key scheme (spec §4.3).
func (e *Engine) idempotencyTTL() time.Duration {
	if e.cfg.IdempotencyKeyTTL > 0 {
		return e.cfg.IdempotencyKeyTTL
	}
	return 24 * time.Hour
}

// idempotentOfferID returns a previously recorded offer id for the given
// target state if one exists, so a retried external effect reuses it
// instead of sending a duplicate Steam offer.
func (e *Engine) idempotentOfferID(ctx context.Context, tradeUUID string, target trade.Status) (string, bool) {
	key := trade.IdempotencyKey(tradeUUID, target)
	v, err := e.kv.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return v, true
}

func (e *Engine) recordIdempotentOfferID(ctx context.Context, tradeUUID string, target trade.Status, offerID string) {
	key := trade.IdempotencyKey(tradeUUID, target)
	_ = e.kv.Set(ctx, key, offerID, e.idempotencyTTL())
}

// commitTransition performs the locked half of the six-step protocol:
// (1) read the trade with a row lock, (2) validate the edge is still
// legal (a concurrent writer may have already moved it — spec §8 S4/S6),
// (3) let mutate apply the new status/fields/ledger effects, (4) write
// trade + history in the same transaction. The external Steam effect (if
// any) must already have happened before this is called; mutate never
// performs network I/O.
func (e *Engine) commitTransition(ctx context.Context, tradeUUID string, target trade.Status, actor history.Actor, notes string, mutate func(ctx context.Context, locked trade.Trade) (trade.Trade, error)) (trade.Trade, error) {
	var result trade.Trade
	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		locked, err := e.store.GetTradeForUpdate(txCtx, tradeUUID)
		if err != nil {
			return err
		}
		if !trade.CanTransition(locked.Status, target) {
			return apierrors.NewPrecondition(fmt.Sprintf("trade %s: %s -> %s", tradeUUID, locked.Status, target))
		}

		updated, err := mutate(txCtx, locked)
		if err != nil {
			return err
		}
		updated.Status = target

		updated, err = e.store.UpdateTrade(txCtx, updated)
		if err != nil {
			return err
		}
		if _, err := e.audit.Record(txCtx, tradeUUID, string(locked.Status), string(target), actor, notes); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return trade.Trade{}, err
	}
	e.enqueueStatusNotification(ctx, result)
	return result, nil
}

// enqueueStatusNotification is best-effort: a failure to enqueue a push
// never unwinds an already-committed transition (spec §4.3 step 6 happens
// strictly after commit).
func (e *Engine) enqueueStatusNotification(ctx context.Context, t trade.Trade) {
	if e.notify == nil {
		return
	}
	kind := notification.KindTradeStatusChanged
	switch t.Status {
	case trade.StatusCompleted:
		kind = notification.KindTradeCompleted
	case trade.StatusRefunded, trade.StatusExpired:
		kind = notification.KindTradeRefunded
	case trade.StatusDisputed:
		kind = notification.KindTradeDisputed
	}
	for _, recipient := range []string{t.BuyerSteamID, t.SellerSteamID} {
		if recipient == "" {
			continue
		}
		n := notification.Notification{
			RecipientID: recipient,
			Kind:        kind,
			Payload: map[string]any{
				"trade_uuid": t.UUID,
				"status":     string(t.Status),
			},
		}
		if err := e.notify.Enqueue(ctx, n); err != nil {
			e.log.WithTrade(t.UUID).WithError(err).Warn("failed to enqueue status notification")
		}
	}
}

func (e *Engine) newTradeUUID() string { return idgen.NewUUID() }
