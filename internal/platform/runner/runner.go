// Package runner manages the lifecycle of the orchestrator's background
// system.Service components (reconciler, notifier drain, bot prober,
// rate-limiter housekeeper) and the in-process trade worker pool.
//
// Adapted from internal/marble/worker.go's Worker/WorkerGroup/ChannelLoop.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/skinvault/escrow/internal/platform/system"
	"github.com/skinvault/escrow/pkg/logger"
)

// Group starts and stops a set of system.Service components together.
type Group struct {
	mu       sync.Mutex
	services []system.Service
	log      *logger.Logger
}

// NewGroup creates an empty service group.
func NewGroup(log *logger.Logger) *Group {
	if log == nil {
		log = logger.NewDefault("runner")
	}
	return &Group{log: log}
}

// Add registers a service with the group.
func (g *Group) Add(s system.Service) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.services = append(g.services, s)
}

// Start starts every registered service, stopping any already-started
// service if one fails.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	started := make([]system.Service, 0, len(g.services))
	for _, s := range g.services {
		if err := s.Start(ctx); err != nil {
			for _, up := range started {
				_ = up.Stop(ctx)
			}
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
		g.log.WithFields(map[string]interface{}{"service": s.Name()}).Info("service started")
		started = append(started, s)
	}
	return nil
}

// Stop stops every registered service concurrently, waiting for all to finish.
func (g *Group) Stop(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range g.services {
		wg.Add(1)
		go func(svc system.Service) {
			defer wg.Done()
			if err := svc.Stop(ctx); err != nil {
				g.log.WithFields(map[string]interface{}{"service": svc.Name()}).WithError(err).Warn("service stop error")
			}
		}(s)
	}
	wg.Wait()
}

// Pool is a bounded worker pool draining an in-process queue of trade
// transition jobs (spec.md §5's "parallel worker model").
type Pool struct {
	jobs    chan func(context.Context)
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPool creates a worker pool with the given concurrency and queue depth.
func NewPool(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = workers * 4
	}
	return &Pool{jobs: make(chan func(context.Context), queueDepth)}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					job(runCtx)
				}
			}
		}()
	}
}

// Submit enqueues a job; it blocks if the queue is full.
func (p *Pool) Submit(job func(context.Context)) {
	p.jobs <- job
}

// Stop cancels the pool's context and waits for in-flight jobs to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}
