// Package reconciler drives the trade engine's external-effect retries
// and deadline handling on a fixed tick (C9). It is the only caller of
// tradeengine.Engine's polling, retry, expiry, and cancellation-resolving
// methods — nothing else in the orchestrator advances a trade without a
// request from a user or admin.
//
// Grounded in internal/app/services/automation/scheduler.go's Scheduler:
// lifecycle Start/Stop, a sync.WaitGroup-guarded goroutine, and a ticker
// loop, adapted from a generic job scheduler to the trade-specific scan
// spec.md §4.3/§5 describe.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/internal/platform/runner"
	"github.com/skinvault/escrow/internal/storage"
	"github.com/skinvault/escrow/internal/tradeengine"
	"github.com/skinvault/escrow/pkg/logger"
)

// Engine is the subset of tradeengine.Engine the reconciler drives.
type Engine interface {
	AdvanceAfterPayment(ctx context.Context, tradeUUID string) (trade.Trade, error)
	AdvanceSellerAccepted(ctx context.Context, tradeUUID string) (trade.Trade, error)
	AdvanceBuyerAccepted(ctx context.Context, tradeUUID string) (trade.Trade, error)
	RetryOrEscalate(ctx context.Context, tradeUUID string) (trade.Trade, error)
	Complete(ctx context.Context, tradeUUID string) (trade.Trade, error)
	Expire(ctx context.Context, tradeUUID string) (trade.Trade, error)
	RequestCancel(ctx context.Context, tradeUUID, reason string) error
	ResolveCancellation(ctx context.Context, tradeUUID string) (trade.Trade, error)
}

var _ Engine = (*tradeengine.Engine)(nil)

// BatchSize bounds how many due trades a single tick processes; the
// remainder is picked up on the next tick.
const BatchSize = 100

// PoolWorkers is the default concurrency of the tick's worker pool (spec
// §5's "pool of worker tasks drains an in-process scheduling queue").
const PoolWorkers = 8

// Reconciler is a system.Service ticking over storage.TradeStore's due
// list and feeding each trade back into the engine. Each tick's due
// trades are dispatched onto a bounded worker pool rather than processed
// one at a time, so one trade blocked on a slow external call doesn't
// delay every other trade in the batch.
type Reconciler struct {
	store    storage.TradeStore
	engine   Engine
	interval time.Duration
	log      *logger.Logger
	pool     *runner.Pool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Reconciler ticking every interval (spec default 10s). Its
// worker pool starts immediately so Tick can be called directly in tests
// without going through Start.
func New(store storage.TradeStore, engine Engine, interval time.Duration, log *logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	pool := runner.NewPool(PoolWorkers, PoolWorkers*4)
	pool.Start(context.Background(), PoolWorkers)
	return &Reconciler{store: store, engine: engine, interval: interval, log: log, pool: pool}
}

// Name identifies this service for runner.Group's startup/shutdown log.
func (r *Reconciler) Name() string { return "reconciler" }

// Start launches the tick loop in a background goroutine.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.Tick(runCtx)
			}
		}
	}()
	return nil
}

// Stop cancels the tick loop and the worker pool, waiting for both an
// in-flight tick and any in-flight trade job to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.running = false
	r.mu.Unlock()
	r.wg.Wait()
	r.pool.Stop()
	return nil
}

// Tick runs one reconciliation pass: fetch due trades, dispatch each onto
// the worker pool by current status, and wait for the whole batch to
// drain before returning. A failure on one trade is logged and does not
// stop the rest of the batch (spec §8 property 5 only constrains legal
// edges, not liveness — one stuck trade must never block the others).
func (r *Reconciler) Tick(ctx context.Context) {
	due, err := r.store.ListDueForReconciliation(ctx, BatchSize)
	if err != nil {
		r.log.WithError(err).Warn("reconciler: failed to list due trades")
		return
	}

	var batch sync.WaitGroup
	for _, t := range due {
		batch.Add(1)
		t := t
		r.pool.Submit(func(_ context.Context) {
			defer batch.Done()
			r.processOne(ctx, t)
		})
	}
	batch.Wait()
}

func (r *Reconciler) processOne(ctx context.Context, t trade.Trade) {
	log := r.log.WithTrade(t.UUID)

	if t.CancelReason != "" {
		if _, err := r.engine.ResolveCancellation(ctx, t.UUID); err != nil && !isPrecondition(err) {
			log.WithError(err).Warn("reconciler: resolve cancellation failed")
		}
		return
	}

	expired := !t.ExpiresAt.IsZero() && time.Now().UTC().After(t.ExpiresAt)
	if expired {
		r.processExpired(ctx, t, log)
		return
	}

	switch t.Status {
	case trade.StatusPaymentReceived:
		if _, err := r.engine.AdvanceAfterPayment(ctx, t.UUID); err != nil {
			log.WithError(err).Debug("reconciler: advance after payment still pending or failed")
		}
	case trade.StatusAwaitingSeller:
		if _, err := r.engine.AdvanceSellerAccepted(ctx, t.UUID); err != nil {
			log.WithError(err).Debug("reconciler: seller offer still pending or poll failed")
		}
	case trade.StatusAwaitingBuyer:
		if _, err := r.engine.AdvanceBuyerAccepted(ctx, t.UUID); err != nil {
			log.WithError(err).Debug("reconciler: buyer offer still pending or poll failed")
		}
	case trade.StatusErrorSending, trade.StatusErrorForwarding:
		if _, err := r.engine.RetryOrEscalate(ctx, t.UUID); err != nil {
			log.WithError(err).Warn("reconciler: retry/escalate failed")
		}
	case trade.StatusBuyerAccepted:
		if _, err := r.engine.Complete(ctx, t.UUID); err != nil && !isPrecondition(err) {
			log.WithError(err).Warn("reconciler: payout failed, will retry next tick")
		}
	}
}

// processExpired handles a trade whose deadline has passed. pending_payment
// has no expired edge (spec §4.3: an unpaid trade is cancelled, not
// expired, since there is nothing to refund), so it goes through the
// cancel-request path instead; buyer_accepted only ever leads to
// completed, so a stale deadline there just means "finish the payout
// instead of abandoning it".
func (r *Reconciler) processExpired(ctx context.Context, t trade.Trade, log *logrus.Entry) {
	switch t.Status {
	case trade.StatusPendingPayment:
		if err := r.engine.RequestCancel(ctx, t.UUID, "payment window expired"); err != nil && !isPrecondition(err) {
			log.WithError(err).Warn("reconciler: request cancel on expiry failed")
			return
		}
		if _, err := r.engine.ResolveCancellation(ctx, t.UUID); err != nil && !isPrecondition(err) {
			log.WithError(err).Warn("reconciler: resolve cancellation on expiry failed")
		}
	case trade.StatusBuyerAccepted:
		if _, err := r.engine.Complete(ctx, t.UUID); err != nil && !isPrecondition(err) {
			log.WithError(err).Warn("reconciler: payout failed past deadline, will retry next tick")
		}
	default:
		if _, err := r.engine.Expire(ctx, t.UUID); err != nil && !isPrecondition(err) {
			log.WithError(err).Warn("reconciler: expire failed")
		}
	}
}

func isPrecondition(err error) bool {
	return apierrors.IsPreconditionFailed(err)
}
