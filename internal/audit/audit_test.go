package audit

import (
	"context"
	"testing"

	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/internal/storage/storagetest"
)

func TestRecordAppendsRowWithTimestamp(t *testing.T) {
	store := storagetest.New()
	log := New(store)
	ctx := context.Background()

	row, err := log.Record(ctx, "trade-1", "pending_payment", "payment_received", history.ActorUser, "buyer paid")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if row.CreatedAt.IsZero() {
		t.Fatalf("expected row to be stamped with a timestamp")
	}

	rows, err := log.History(ctx, "trade-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 1 || rows[0].NewStatus != "payment_received" {
		t.Fatalf("expected 1 row describing payment_received, got %+v", rows)
	}
}
