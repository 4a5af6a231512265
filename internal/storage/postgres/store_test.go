package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/skinvault/escrow/domain/trade"
)

func TestGetTradeForUpdateLocksRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"uuid", "listing_id", "buyer_steam_id", "seller_steam_id", "assigned_bot_id", "item",
		"price", "fee_percent", "platform_fee", "seller_payout", "seller_offer_id", "buyer_offer_id",
		"status", "cancel_reason", "notes", "retry_count", "expires_at", "seller_leg_sent_at",
		"buyer_leg_sent_at", "created_at", "updated_at",
	}).AddRow(
		"trade-1", 1, "76561198000000001", "76561198000000002", nil, []byte(`{}`),
		"40", 5.0, "2", "38", nil, nil,
		trade.StatusPendingPayment, "", "", 0, now, nil, nil, now, now,
	)

	mock.ExpectQuery("SELECT .* FROM escrow_trades WHERE uuid = \\$1 FOR UPDATE").
		WithArgs("trade-1").
		WillReturnRows(rows)

	store := New(db)
	tr, err := store.GetTradeForUpdate(context.Background(), "trade-1")
	if err != nil {
		t.Fatalf("get trade for update: %v", err)
	}
	if tr.Status != trade.StatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", tr.Status)
	}
	if tr.Price.String() != "40" {
		t.Fatalf("expected price 40, got %s", tr.Price.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	store := New(db)
	boom := errTest("boom")
	err = store.WithTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	if err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
