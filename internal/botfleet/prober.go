package botfleet

import (
	"context"
	"sync"
	"time"

	"github.com/skinvault/escrow/domain/bot"
)

// Prober is a background system.Service that re-probes degraded bots
// every 60s (spec §4.4) and promotes them back to ready on a successful
// session restore or fresh login.
type Prober struct {
	mgr      *Manager
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewProber creates a Prober with the spec's default 60s interval.
func NewProber(mgr *Manager) *Prober {
	return &Prober{mgr: mgr, interval: 60 * time.Second}
}

func (p *Prober) Name() string { return "bot-prober" }

// Start launches the probe loop in a background goroutine, matching
// internal/reconciler.Reconciler.Start's lifecycle so runner.Group can
// start every system.Service without one blocking the rest.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.probeAll(runCtx)
			}
		}
	}()
	return nil
}

func (p *Prober) Stop(_ context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Prober) probeAll(ctx context.Context) {
	degraded, err := p.mgr.store.ListBotsByStatus(ctx, bot.StatusDegraded)
	if err != nil {
		p.mgr.log.WithError(err).Warn("prober: list degraded bots failed")
		return
	}

	for _, b := range degraded {
		if _, err := p.mgr.Session(ctx, b); err != nil {
			p.mgr.log.WithBot(b.ID).WithError(err).Debug("prober: bot still unreachable")
			continue
		}
		b.Status = bot.StatusReady
		b.LastError = ""
		if _, err := p.mgr.store.UpdateBot(ctx, b); err != nil {
			p.mgr.log.WithBot(b.ID).WithError(err).Warn("prober: failed to promote recovered bot")
		}
	}
}
