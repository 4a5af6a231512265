package tradeengine

import (
	"context"
	"errors"
	"testing"

	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/steamclient"
)

var errTransient = errors.New("transient steam api error")

// driveToAwaitingSeller pays and advances a fresh peer trade to
// awaiting_seller, returning it with its seller offer already sent.
func driveToAwaitingSeller(t *testing.T, ctx context.Context, e *Engine, l listing.Listing) trade.Trade {
	t.Helper()
	tr, err := e.CreateTrade(ctx, l.ID, "buyer-1", "https://steamcommunity.com/trade/token")
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	tr, err = e.Pay(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	tr, err = e.AdvanceAfterPayment(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("advance after payment: %v", err)
	}
	if tr.Status != trade.StatusAwaitingSeller {
		t.Fatalf("expected awaiting_seller, got %s", tr.Status)
	}
	return tr
}

// TestRetryOrEscalateResumesSellerPolling exercises a trade stuck in
// error_sending after a transient poll failure (the offer itself already
// sent): RetryOrEscalate must put it back in awaiting_seller rather than
// no-op, and the next poll must succeed against the same offer id.
func TestRetryOrEscalateResumesSellerPolling(t *testing.T) {
	e, store, steamFake := newTestEngine(t)
	ctx := context.Background()
	_, l := seedBuyerAndListing(t, store, steamFake, listing.KindPeer)
	tr := driveToAwaitingSeller(t, ctx, e, l)
	offerID := tr.SellerOfferID

	steamFake.FailNextPoll(errTransient)
	tr, err := e.AdvanceSellerAccepted(ctx, tr.UUID)
	if err == nil {
		t.Fatalf("expected poll failure to surface as an error")
	}
	if tr.Status != trade.StatusErrorSending {
		t.Fatalf("expected error_sending, got %s", tr.Status)
	}
	if tr.RetryCount != 1 {
		t.Fatalf("expected retry count 1 after first poll failure, got %d", tr.RetryCount)
	}

	tr, err = e.RetryOrEscalate(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("retry or escalate: %v", err)
	}
	if tr.Status != trade.StatusAwaitingSeller {
		t.Fatalf("expected retry to resume awaiting_seller, got %s", tr.Status)
	}
	if tr.SellerOfferID != offerID {
		t.Fatalf("expected retry to reuse the existing offer id, got %s", tr.SellerOfferID)
	}

	steamFake.SetOfferState(offerID, steamclient.OfferAccepted)
	tr, err = e.AdvanceSellerAccepted(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("advance seller accepted after retry: %v", err)
	}
	if tr.Status != trade.StatusSellerAccepted {
		t.Fatalf("expected seller_accepted after resumed poll succeeds, got %s", tr.Status)
	}
}

// TestRetryOrEscalateEscalatesAfterRetryCeiling drives repeated poll
// failures past MaxRetries and checks the trade lands in disputed, which
// requires each RetryOrEscalate call to actually re-arm the poll (bug: a
// no-op retry never lets RetryCount climb past the ceiling).
func TestRetryOrEscalateEscalatesAfterRetryCeiling(t *testing.T) {
	e, store, steamFake := newTestEngine(t)
	ctx := context.Background()
	_, l := seedBuyerAndListing(t, store, steamFake, listing.KindPeer)
	tr := driveToAwaitingSeller(t, ctx, e, l)

	ceiling := e.maxRetries()
	for i := 0; i < ceiling; i++ {
		steamFake.FailNextPoll(errTransient)
		var err error
		tr, err = e.AdvanceSellerAccepted(ctx, tr.UUID)
		if err == nil {
			t.Fatalf("expected poll failure on iteration %d", i)
		}
		if tr.Status != trade.StatusErrorSending {
			t.Fatalf("expected error_sending on iteration %d, got %s", i, tr.Status)
		}

		tr, err = e.RetryOrEscalate(ctx, tr.UUID)
		if err != nil {
			t.Fatalf("retry or escalate on iteration %d: %v", i, err)
		}
	}

	if tr.Status != trade.StatusDisputed {
		t.Fatalf("expected escalation to disputed once retries exhausted, got %s", tr.Status)
	}
}
