package trade

import (
	"testing"

	"github.com/skinvault/escrow/domain/money"
)

func TestCanTransitionAllowsDocumentedEdges(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusPendingPayment, StatusPaymentReceived},
		{StatusPaymentReceived, StatusAwaitingSeller},
		{StatusPaymentReceived, StatusAwaitingBuyer},
		{StatusAwaitingSeller, StatusSellerAccepted},
		{StatusSellerAccepted, StatusAwaitingBuyer},
		{StatusAwaitingBuyer, StatusBuyerAccepted},
		{StatusBuyerAccepted, StatusCompleted},
	}
	for _, c := range cases {
		if !CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be legal", c.from, c.to)
		}
	}
}

func TestCanTransitionRejectsUndocumentedEdges(t *testing.T) {
	if CanTransition(StatusPendingPayment, StatusBuyerAccepted) {
		t.Fatalf("expected pending_payment -> buyer_accepted to be illegal")
	}
	if CanTransition(StatusAwaitingSeller, StatusCompleted) {
		t.Fatalf("expected awaiting_seller -> completed to be illegal")
	}
}

func TestCanTransitionRejectsOnceTerminal(t *testing.T) {
	if CanTransition(StatusCompleted, StatusDisputed) {
		t.Fatalf("terminal state must never transition again")
	}
	if CanTransition(StatusRefunded, StatusPendingPayment) {
		t.Fatalf("terminal state must never transition again")
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCancelled, StatusRefunded, StatusExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []Status{StatusPendingPayment, StatusAwaitingSeller, StatusDisputed, StatusErrorSending}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	k1 := IdempotencyKey("abc-123", StatusAwaitingBuyer)
	k2 := IdempotencyKey("abc-123", StatusAwaitingBuyer)
	if k1 != k2 {
		t.Fatalf("expected deterministic key, got %q and %q", k1, k2)
	}
	if k1 != "abc-123:awaiting_buyer" {
		t.Fatalf("unexpected key format: %q", k1)
	}
}

func TestComputePricing(t *testing.T) {
	tr := Trade{}
	tr.Price = money.FromFloat(40)
	tr.FeePercent = 5.0
	tr.ComputePricing()

	if tr.PlatformFee.String() != "2" {
		t.Fatalf("expected fee 2, got %s", tr.PlatformFee.String())
	}
	if tr.SellerPayout.String() != "38" {
		t.Fatalf("expected payout 38, got %s", tr.SellerPayout.String())
	}
}
