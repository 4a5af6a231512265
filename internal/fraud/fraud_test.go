package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/skinvault/escrow/domain/user"
	"github.com/skinvault/escrow/internal/storage/storagetest"
)

func waitForRiskScore(t *testing.T, store *storagetest.Store, steamID string, want int) user.User {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		u, err := store.GetUser(context.Background(), steamID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if u.RiskScore >= want {
			return u
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("risk score for %s never reached %d", steamID, want)
	return user.User{}
}

func TestReportAccumulatesWeightedRiskScore(t *testing.T) {
	store := storagetest.New()
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, user.User{SteamID: "user-1"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	f := New(store, DefaultWeights(), 100, nil)
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop(ctx)

	f.Report(Event{Kind: KindItemMissing, UserID: "user-1"})
	f.Report(Event{Kind: KindAPIKeyChanged, UserID: "user-1"})

	u := waitForRiskScore(t, store, "user-1", 35)
	if u.RiskScore != 35 {
		t.Fatalf("expected risk score 35 (25+10), got %d", u.RiskScore)
	}
	if u.Banned {
		t.Fatalf("expected user not yet flagged below threshold")
	}
}

func TestReportFlagsUserForManualReviewPastThreshold(t *testing.T) {
	store := storagetest.New()
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, user.User{SteamID: "user-1"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	f := New(store, DefaultWeights(), 20, nil)
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop(ctx)

	f.Report(Event{Kind: KindOwnershipCheckFailed, UserID: "user-1"})

	u := waitForRiskScore(t, store, "user-1", 20)
	if !u.Banned {
		t.Fatalf("expected user flagged (banned) once risk score crossed threshold")
	}
}
