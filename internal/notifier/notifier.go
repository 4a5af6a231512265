package notifier

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/skinvault/escrow/domain/notification"
	"github.com/skinvault/escrow/internal/storage"
	"github.com/skinvault/escrow/internal/tradeengine"
	"github.com/skinvault/escrow/pkg/logger"
)

var _ tradeengine.Notifier = (*Notifier)(nil)

// Notifier satisfies tradeengine.Notifier: every Enqueue call persists
// first, then attempts a best-effort push. A 7-day retention sweep runs
// on robfig/cron/v3, grounded in the teacher's use of cron for scheduled
// jobs in services/automation and services/gasbank/marble.
type Notifier struct {
	store storage.NotificationStore
	hub   *Hub
	log   *logger.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// New creates a Notifier backed by store for durability and hub for
// live push.
func New(store storage.NotificationStore, hub *Hub, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewDefault("notifier")
	}
	return &Notifier{store: store, hub: hub, log: log, cron: cron.New()}
}

// Name identifies this service for runner.Group.
func (n *Notifier) Name() string { return "notifier" }

// Start schedules the retention sweep (daily, spec §4.7's 7-day window
// only needs to be enforced well within its own granularity).
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return nil
	}
	if _, err := n.cron.AddFunc("@daily", func() { n.sweepRetention(ctx) }); err != nil {
		return err
	}
	n.cron.Start()
	n.running = true
	return nil
}

// Stop halts the cron scheduler, waiting for an in-flight sweep to finish.
func (n *Notifier) Stop(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return nil
	}
	<-n.cron.Stop().Done()
	n.running = false
	return nil
}

// Enqueue persists n as pending, then pushes it over the recipient's live
// WebSocket connection if one exists, marking it delivered immediately
// (spec §4.7: durable store is authoritative; the push is an optimization
// so the client doesn't have to wait for the next drain).
func (n *Notifier) Enqueue(ctx context.Context, note notification.Notification) error {
	note.Status = notification.StatusPending
	stored, err := n.store.CreateNotification(ctx, note)
	if err != nil {
		return err
	}

	if n.hub == nil {
		return nil
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		n.log.WithError(err).Warn("notifier: failed to marshal notification for push")
		return nil
	}
	if n.hub.Push(stored.RecipientID, payload) {
		if err := n.store.MarkDelivered(ctx, stored.ID); err != nil {
			n.log.WithError(err).Warn("notifier: failed to mark pushed notification delivered")
		}
	}
	return nil
}

// DrainPending returns recipientID's undelivered notifications oldest
// first and marks them delivered, for replay on WebSocket reconnect
// (spec §4.7: "oldest-first delivery on reconnect").
func (n *Notifier) DrainPending(ctx context.Context, recipientID string) ([]notification.Notification, error) {
	pending, err := n.store.ListPending(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	for _, note := range pending {
		if err := n.store.MarkDelivered(ctx, note.ID); err != nil {
			n.log.WithError(err).Warn("notifier: failed to mark drained notification delivered")
		}
	}
	return pending, nil
}

// MarkRead records that the recipient has seen notificationID (e.g. via a
// client ack over the WebSocket connection or an HTTP call).
func (n *Notifier) MarkRead(ctx context.Context, notificationID int64) error {
	return n.store.MarkRead(ctx, notificationID)
}

func (n *Notifier) sweepRetention(ctx context.Context) {
	deleted, err := n.store.DeleteOlderThanRetention(ctx)
	if err != nil {
		n.log.WithError(err).Warn("notifier: retention sweep failed")
		return
	}
	if deleted > 0 {
		n.log.WithFields(map[string]interface{}{"deleted": deleted}).Info("notifier: retention sweep removed old notifications")
	}
}
