// Package audit is the append-only trade history writer (C11): every
// trade engine transition and every admin mutation goes through Log.Record,
// never through storage.HistoryStore directly, so there is exactly one
// place that stamps CreatedAt and shapes a history.Row.
//
// Grounded in the audit-style append writes visible throughout the
// teacher's store layer (internal/app/storage/postgres's insert-only
// settlement/dead-letter helpers), pulled out into its own package since
// spec.md calls for a dedicated audit log rather than inline store calls.
package audit

import (
	"context"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/internal/storage"
)

// Log writes and reads a trade's append-only history. CreatedAt is
// stamped by the store itself (both backends set it at insert time, the
// same convention CreateTrade/UpdateTrade already follow), so Log carries
// no clock of its own.
type Log struct {
	store storage.HistoryStore
}

// New creates a Log backed by store.
func New(store storage.HistoryStore) *Log {
	return &Log{store: store}
}

// Record appends one history row. Rows are never updated after this call.
func (l *Log) Record(ctx context.Context, tradeUUID, previousStatus, newStatus string, actor history.Actor, notes string) (history.Row, error) {
	return l.store.AppendHistory(ctx, history.Row{
		TradeUUID:      tradeUUID,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Actor:          actor,
		Notes:          notes,
	})
}

// History returns a trade's full audit trail in write order, for
// GET /trades/:uuid's history field (spec §6).
func (l *Log) History(ctx context.Context, tradeUUID string) ([]history.Row, error) {
	return l.store.ListHistory(ctx, tradeUUID)
}
