package steamclient

import (
	"context"
	"errors"
	"testing"

	"github.com/skinvault/escrow/internal/platform/apierrors"
)

func TestFakeClientSendOfferThenPoll(t *testing.T) {
	fake := NewFake()
	ctx := context.Background()
	session := Session{SteamID: "bot", Cookies: "c"}

	offerID, err := fake.SendOffer(ctx, session, "partner", "token", nil, nil, "")
	if err != nil {
		t.Fatalf("send offer: %v", err)
	}

	state, err := fake.PollOffer(ctx, session, offerID)
	if err != nil {
		t.Fatalf("poll offer: %v", err)
	}
	if state != OfferActive {
		t.Fatalf("expected active, got %s", state)
	}

	fake.SetOfferState(offerID, OfferAccepted)
	state, err = fake.PollOffer(ctx, session, offerID)
	if err != nil {
		t.Fatalf("poll offer: %v", err)
	}
	if state != OfferAccepted {
		t.Fatalf("expected accepted, got %s", state)
	}
}

func TestFakeClientSendOfferFailureIsOneShot(t *testing.T) {
	fake := NewFake()
	ctx := context.Background()
	session := Session{SteamID: "bot", Cookies: "c"}
	boom := errors.New("boom")

	fake.FailNextSend(boom)
	if _, err := fake.SendOffer(ctx, session, "p", "t", nil, nil, ""); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	offerID, err := fake.SendOffer(ctx, session, "p", "t", nil, nil, "")
	if err != nil {
		t.Fatalf("expected second send to succeed, got %v", err)
	}
	if offerID == "" {
		t.Fatalf("expected non-empty offer id")
	}
}

func TestShouldRetryClassifiesTransientOnly(t *testing.T) {
	if !shouldRetry(apierrors.NewTransient("op", errors.New("boom"))) {
		t.Fatalf("expected transient error to be retried")
	}
	if shouldRetry(errors.New("opaque")) {
		t.Fatalf("expected unclassified error to not be retried")
	}
	if shouldRetry(apierrors.NewPersistent("op", errors.New("boom"))) {
		t.Fatalf("expected persistent error to not be retried")
	}
}
