package wallet

import (
	"context"
	"testing"

	"github.com/skinvault/escrow/domain/ledger"
	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/domain/user"
	"github.com/skinvault/escrow/internal/storage"
)

// memStore implements just enough of storage.Store for the wallet tests:
// a single user plus an append-only transaction log. The embedded nil
// storage.Store satisfies every method the wallet package never calls.
type memStore struct {
	storage.Store
	users map[string]user.User
	txns  []ledger.Transaction
}

func newMemStore(u user.User) *memStore {
	return &memStore{users: map[string]user.User{u.SteamID: u}}
}

func (m *memStore) GetUserForUpdate(_ context.Context, steamID string) (user.User, error) {
	return m.users[steamID], nil
}

func (m *memStore) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	m.users[u.SteamID] = u
	return u, nil
}

func (m *memStore) AppendTransaction(_ context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	m.txns = append(m.txns, t)
	return t, nil
}

func TestReserveMovesAvailableIntoReserved(t *testing.T) {
	store := newMemStore(user.User{SteamID: "76561198000000001", Balance: money.FromFloat(100)})
	l := New(store)

	if err := l.Reserve(context.Background(), "76561198000000001", "trade-1", money.FromFloat(40)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	u := store.users["76561198000000001"]
	if !u.Reserved.Equal(money.FromFloat(40)) {
		t.Fatalf("expected reserved 40, got %s", u.Reserved)
	}
	if !u.Available().Equal(money.FromFloat(60)) {
		t.Fatalf("expected available 60, got %s", u.Available())
	}
	if len(store.txns) != 1 || store.txns[0].Kind != ledger.KindDebitHold {
		t.Fatalf("expected one debit_hold entry, got %+v", store.txns)
	}
}

func TestReserveRejectsInsufficientAvailable(t *testing.T) {
	store := newMemStore(user.User{SteamID: "76561198000000001", Balance: money.FromFloat(10)})
	l := New(store)

	err := l.Reserve(context.Background(), "76561198000000001", "trade-1", money.FromFloat(40))
	if err == nil {
		t.Fatalf("expected insufficient balance error")
	}
}

func TestCaptureThenPayoutConservesTotal(t *testing.T) {
	buyer := newMemStore(user.User{SteamID: "buyer", Balance: money.FromFloat(100)})
	l := New(buyer)
	ctx := context.Background()

	if err := l.Reserve(ctx, "buyer", "trade-1", money.FromFloat(40)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Capture(ctx, "buyer", "trade-1", money.FromFloat(40)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	u := buyer.users["buyer"]
	if !u.Balance.Equal(money.FromFloat(60)) {
		t.Fatalf("expected buyer balance 60 after capture, got %s", u.Balance)
	}
	if !u.Reserved.Equal(money.Zero) {
		t.Fatalf("expected reserved back to zero, got %s", u.Reserved)
	}

	seller := newMemStore(user.User{SteamID: "seller", Balance: money.Zero})
	ls := New(seller)
	payout := money.FromFloat(38)
	fee := money.FromFloat(2)
	if err := ls.Payout(ctx, "seller", "trade-1", payout, fee); err != nil {
		t.Fatalf("payout: %v", err)
	}
	us := seller.users["seller"]
	if !us.Balance.Equal(payout) {
		t.Fatalf("expected seller balance %s, got %s", payout, us.Balance)
	}

	var fees int
	for _, txn := range seller.txns {
		if txn.Kind == ledger.KindFee && txn.SubjectUserID == ledger.EscrowAccountID {
			fees++
		}
	}
	if fees != 1 {
		t.Fatalf("expected one fee entry posted to the escrow account, got %d", fees)
	}
}

// sumPosted adds up every posted entry whose subject is steamID (escrow
// account entries are not included), mirroring how a reconciliation job would
// recompute a balance from the ledger rather than trust the cached field.
func sumPosted(txns []ledger.Transaction, steamID string) money.Decimal {
	total := money.Zero
	for _, txn := range txns {
		if txn.Status != ledger.StatusPosted || txn.SubjectUserID != steamID {
			continue
		}
		total = total.Add(txn.Amount)
	}
	return total
}

// TestLedgerConservesPostedSumAcrossReserveCaptureAndPayout walks a full
// buyer-pays / seller-paid escrow flow and checks spec §8 property 1 holds:
// summing only the posted entries for each party reproduces their final
// balance exactly. debit_hold and release_hold must stay pending or this
// sum would double-count the hold alongside its capture/release.
func TestLedgerConservesPostedSumAcrossReserveCaptureAndPayout(t *testing.T) {
	ctx := context.Background()

	buyer := newMemStore(user.User{SteamID: "buyer", Balance: money.FromFloat(100)})
	lb := New(buyer)
	if err := lb.Reserve(ctx, "buyer", "trade-1", money.FromFloat(40)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := lb.Capture(ctx, "buyer", "trade-1", money.FromFloat(40)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	buyerFinal := buyer.users["buyer"]
	if got := sumPosted(buyer.txns, "buyer"); !got.Equal(buyerFinal.Balance.Sub(money.FromFloat(100))) {
		t.Fatalf("buyer posted sum %s does not reconcile against balance delta %s", got, buyerFinal.Balance.Sub(money.FromFloat(100)))
	}

	seller := newMemStore(user.User{SteamID: "seller", Balance: money.Zero})
	ls := New(seller)
	if err := ls.Payout(ctx, "seller", "trade-1", money.FromFloat(38), money.FromFloat(2)); err != nil {
		t.Fatalf("payout: %v", err)
	}
	sellerFinal := seller.users["seller"]
	if got := sumPosted(seller.txns, "seller"); !got.Equal(sellerFinal.Balance) {
		t.Fatalf("seller posted sum %s != balance %s", got, sellerFinal.Balance)
	}

	refundee := newMemStore(user.User{SteamID: "buyer2", Balance: money.FromFloat(60)})
	lr := New(refundee)
	if err := lr.Refund(ctx, "buyer2", "trade-2", money.FromFloat(40)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	refundFinal := refundee.users["buyer2"]
	if got := sumPosted(refundee.txns, "buyer2"); !got.Equal(refundFinal.Balance.Sub(money.FromFloat(60))) {
		t.Fatalf("refund posted sum %s does not reconcile against balance delta %s", got, refundFinal.Balance.Sub(money.FromFloat(60)))
	}

	var pendingKinds int
	for _, txn := range buyer.txns {
		if txn.Kind == ledger.KindDebitHold || txn.Kind == ledger.KindReleaseHold {
			if txn.Status != ledger.StatusPending {
				t.Fatalf("expected %s entry to stay pending, got status %s", txn.Kind, txn.Status)
			}
			pendingKinds++
		}
	}
	if pendingKinds != 1 {
		t.Fatalf("expected exactly one debit_hold entry from the reserve, got %d pending entries", pendingKinds)
	}
}

func TestReleaseHoldRestoresAvailable(t *testing.T) {
	store := newMemStore(user.User{SteamID: "buyer", Balance: money.FromFloat(100), Reserved: money.FromFloat(40)})
	l := New(store)

	if err := l.ReleaseHold(context.Background(), "buyer", "trade-1", money.FromFloat(40)); err != nil {
		t.Fatalf("release hold: %v", err)
	}
	u := store.users["buyer"]
	if !u.Available().Equal(money.FromFloat(100)) {
		t.Fatalf("expected full balance available again, got %s", u.Available())
	}
}

func TestRefundCreditsBuyerBalance(t *testing.T) {
	store := newMemStore(user.User{SteamID: "buyer", Balance: money.FromFloat(60)})
	l := New(store)

	if err := l.Refund(context.Background(), "buyer", "trade-1", money.FromFloat(40)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	u := store.users["buyer"]
	if !u.Balance.Equal(money.FromFloat(100)) {
		t.Fatalf("expected refunded balance 100, got %s", u.Balance)
	}
}
