package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/skinvault/escrow/domain/bot"
	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/domain/notification"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/domain/user"
	"github.com/skinvault/escrow/internal/botfleet"
	"github.com/skinvault/escrow/internal/platform/clock"
	"github.com/skinvault/escrow/internal/platform/config"
	"github.com/skinvault/escrow/internal/platform/kv"
	"github.com/skinvault/escrow/internal/platform/secretbox"
	"github.com/skinvault/escrow/internal/steamclient"
	"github.com/skinvault/escrow/internal/storage/storagetest"
	"github.com/skinvault/escrow/internal/tradeengine"
	"github.com/skinvault/escrow/internal/wallet"
	"github.com/skinvault/escrow/pkg/logger"
)

const testTOTPSeed = "JBSWY3DPEHPK3PXP"

type noopNotifier struct{}

func (noopNotifier) Enqueue(_ context.Context, _ notification.Notification) error { return nil }

func newHarness(t *testing.T) (*storagetest.Store, *tradeengine.Engine, *steamclient.FakeClient) {
	t.Helper()
	store := storagetest.New()
	masterKey := make([]byte, 32)

	encPassword, err := secretbox.Encrypt(masterKey, []byte("bot-1"), secretbox.PurposePassword, []byte("hunter2"))
	if err != nil {
		t.Fatalf("encrypt password: %v", err)
	}
	encSeed, err := secretbox.Encrypt(masterKey, []byte("bot-1"), secretbox.PurposeTOTPSeed, []byte(testTOTPSeed))
	if err != nil {
		t.Fatalf("encrypt totp seed: %v", err)
	}
	if _, err := store.CreateBot(context.Background(), bot.Bot{
		ID:                "bot-1",
		AccountName:       "bot-1-account",
		Status:            bot.StatusReady,
		EncryptedPassword: encPassword,
		EncryptedTOTPSeed: encSeed,
	}); err != nil {
		t.Fatalf("create bot: %v", err)
	}

	steamFake := steamclient.NewFake()
	kvStore := kv.NewMemory()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logger.NewDefault("reconciler-test")

	bots := botfleet.New(store, kvStore, steamFake, clk, masterKey, log)
	wal := wallet.New(store)
	cfg := config.Config{
		PlatformFeePercent: 5.0,
		TradeTimeout:       24 * time.Hour,
		AwaitLegTimeout:    30 * time.Minute,
		MaxRetries:         5,
		IdempotencyKeyTTL:  24 * time.Hour,
	}

	engine := tradeengine.New(store, wal, bots, steamFake, kvStore, noopNotifier{}, clk, cfg, log)
	return store, engine, steamFake
}

func seedBuyerAndListing(t *testing.T, store *storagetest.Store, steamFake *steamclient.FakeClient, kind listing.Kind) listing.Listing {
	t.Helper()
	ctx := context.Background()

	if _, err := store.CreateUser(ctx, user.User{SteamID: "buyer-1", Balance: money.FromFloat(100)}); err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	if _, err := store.CreateUser(ctx, user.User{SteamID: "seller-1", Balance: money.Zero}); err != nil {
		t.Fatalf("create seller: %v", err)
	}

	item := listing.Item{AssetID: "asset-1", MarketHashName: "AK-47 | Redline", AppID: 730, ContextID: 2}
	l, err := store.CreateListing(ctx, listing.Listing{
		SellerSteamID: "seller-1",
		Item:          item,
		Price:         money.FromFloat(40),
		Currency:      "USD",
		Kind:          kind,
		Status:        listing.StatusActive,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if kind == listing.KindPeer {
		steamFake.SeedInventory("seller-1", steamclient.Item{AssetID: item.AssetID, AppID: item.AppID, ContextID: item.ContextID})
	}
	return l
}

// TestTickSendsOfferForPaymentReceivedTrade exercises the other half of
// the poll loop: a trade that just got paid, with nothing else having
// called AdvanceAfterPayment yet, must have its first offer sent on the
// very next tick rather than stall in payment_received forever.
func TestTickSendsOfferForPaymentReceivedTrade(t *testing.T) {
	store, engine, steamFake := newHarness(t)
	ctx := context.Background()
	l := seedBuyerAndListing(t, store, steamFake, listing.KindBotOwned)

	tr, err := engine.CreateTrade(ctx, l.ID, "buyer-1", "")
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	tr, err = engine.Pay(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if tr.Status != trade.StatusPaymentReceived {
		t.Fatalf("expected payment_received, got %s", tr.Status)
	}

	r := New(store, engine, time.Hour, logger.NewDefault("reconciler-test"))
	r.Tick(ctx)

	updated, err := store.GetTrade(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if updated.Status != trade.StatusAwaitingBuyer {
		t.Fatalf("expected awaiting_buyer after tick drove the offer send, got %s", updated.Status)
	}
	if updated.BuyerOfferID == "" {
		t.Fatalf("expected a buyer offer id to have been recorded")
	}
}

// TestTickAdvancesAwaitingSellerOnAcceptance exercises the poll path: a
// trade sitting in awaiting_seller with its offer already accepted on
// Steam should move to seller_accepted on the next tick.
func TestTickAdvancesAwaitingSellerOnAcceptance(t *testing.T) {
	store, engine, steamFake := newHarness(t)
	ctx := context.Background()
	l := seedBuyerAndListing(t, store, steamFake, listing.KindPeer)

	tr, err := engine.CreateTrade(ctx, l.ID, "buyer-1", "https://steamcommunity.com/trade/token")
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	tr, err = engine.Pay(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	tr, err = engine.AdvanceAfterPayment(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("advance after payment: %v", err)
	}
	if tr.Status != trade.StatusAwaitingSeller {
		t.Fatalf("expected awaiting_seller, got %s", tr.Status)
	}
	steamFake.SetOfferState(tr.SellerOfferID, steamclient.OfferAccepted)

	r := New(store, engine, time.Hour, logger.NewDefault("reconciler-test"))
	r.Tick(ctx)

	updated, err := store.GetTrade(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if updated.Status != trade.StatusSellerAccepted {
		t.Fatalf("expected seller_accepted after tick, got %s", updated.Status)
	}
}

// TestTickCompletesBuyerAcceptedTrades exercises the payout path: a trade
// stuck in buyer_accepted (e.g. the engine crashed right after the buyer
// accepted delivery) is finished by the next tick regardless of expiry.
func TestTickCompletesBuyerAcceptedTrades(t *testing.T) {
	store, engine, steamFake := newHarness(t)
	ctx := context.Background()
	l := seedBuyerAndListing(t, store, steamFake, listing.KindBotOwned)

	tr, err := engine.CreateTrade(ctx, l.ID, "buyer-1", "")
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	tr, err = engine.Pay(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	tr, err = engine.AdvanceAfterPayment(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("advance after payment: %v", err)
	}
	steamFake.SetOfferState(tr.BuyerOfferID, steamclient.OfferAccepted)
	tr, err = engine.AdvanceBuyerAccepted(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("advance buyer accepted: %v", err)
	}
	if tr.Status != trade.StatusBuyerAccepted {
		t.Fatalf("expected buyer_accepted, got %s", tr.Status)
	}

	r := New(store, engine, time.Hour, logger.NewDefault("reconciler-test"))
	r.Tick(ctx)

	updated, err := store.GetTrade(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if updated.Status != trade.StatusCompleted {
		t.Fatalf("expected completed after tick, got %s", updated.Status)
	}

	seller, _ := store.GetUser(ctx, "seller-1")
	if !seller.Balance.Equal(money.FromFloat(38)) {
		t.Fatalf("expected seller balance 38, got %s", seller.Balance)
	}
}

// TestTickExpiresPendingPaymentAsCancelled exercises the deadline path for
// an unpaid trade: pending_payment has no expired edge, so an elapsed
// deadline must cancel rather than expire it.
func TestTickExpiresPendingPaymentAsCancelled(t *testing.T) {
	store, engine, steamFake := newHarness(t)
	ctx := context.Background()
	l := seedBuyerAndListing(t, store, steamFake, listing.KindBotOwned)

	tr, err := engine.CreateTrade(ctx, l.ID, "buyer-1", "")
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}

	tr.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if _, err := store.UpdateTrade(ctx, tr); err != nil {
		t.Fatalf("force expiry: %v", err)
	}

	r := New(store, engine, time.Hour, logger.NewDefault("reconciler-test"))
	r.Tick(ctx)

	updated, err := store.GetTrade(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if updated.Status != trade.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
}

// TestTickExpiresAwaitingSellerAndRefunds exercises the deadline path for
// a paid, in-flight trade: awaiting_seller does have an expired edge, so
// the buyer's payment is refunded.
func TestTickExpiresAwaitingSellerAndRefunds(t *testing.T) {
	store, engine, steamFake := newHarness(t)
	ctx := context.Background()
	l := seedBuyerAndListing(t, store, steamFake, listing.KindPeer)

	tr, err := engine.CreateTrade(ctx, l.ID, "buyer-1", "https://steamcommunity.com/trade/token")
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	tr, err = engine.Pay(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	tr, err = engine.AdvanceAfterPayment(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("advance after payment: %v", err)
	}

	tr.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if _, err := store.UpdateTrade(ctx, tr); err != nil {
		t.Fatalf("force expiry: %v", err)
	}

	r := New(store, engine, time.Hour, logger.NewDefault("reconciler-test"))
	r.Tick(ctx)

	updated, err := store.GetTrade(ctx, tr.UUID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if updated.Status != trade.StatusExpired {
		t.Fatalf("expected expired, got %s", updated.Status)
	}
	buyer, _ := store.GetUser(ctx, "buyer-1")
	if !buyer.Balance.Equal(money.FromFloat(100)) {
		t.Fatalf("expected buyer refunded to 100, got %s", buyer.Balance)
	}
}
