// Command orchestrator runs the escrow trade orchestrator: the HTTP/
// WebSocket API, the trade engine's background reconciler, the
// notification retention sweep, the bot-fleet prober, and the anti-fraud
// flagger, all wired against a single PostgreSQL database and Redis
// instance.
//
// Adapted from infrastructure/service/runner.go's Run(): load config,
// build every dependency, start the system.Service set via a runner.Group,
// serve HTTP with the same timeout profile, and shut down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skinvault/escrow/internal/audit"
	"github.com/skinvault/escrow/internal/botfleet"
	"github.com/skinvault/escrow/internal/fraud"
	"github.com/skinvault/escrow/internal/httpapi"
	"github.com/skinvault/escrow/internal/notifier"
	"github.com/skinvault/escrow/internal/platform/clock"
	"github.com/skinvault/escrow/internal/platform/config"
	"github.com/skinvault/escrow/internal/platform/database"
	"github.com/skinvault/escrow/internal/platform/kv"
	"github.com/skinvault/escrow/internal/platform/ratelimit"
	"github.com/skinvault/escrow/internal/platform/runner"
	"github.com/skinvault/escrow/internal/reconciler"
	"github.com/skinvault/escrow/internal/steamclient"
	"github.com/skinvault/escrow/internal/storage/postgres"
	"github.com/skinvault/escrow/internal/tradeengine"
	"github.com/skinvault/escrow/internal/wallet"
	"github.com/skinvault/escrow/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewFromEnv("orchestrator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer db.Close()
	store := postgres.New(db)

	masterKey, err := loadBotMasterKey(cfg.BotMasterKeyHex)
	if err != nil {
		log.WithError(err).Fatal("invalid BOT_MASTER_KEY")
	}

	var kvStore kv.Store
	redisStore := kv.NewRedis(cfg.RedisAddr, "", 0)
	if pingErr := redisStore.Ping(ctx); pingErr != nil {
		log.WithError(pingErr).Warn("redis unreachable at startup, falling back to in-memory KV store")
		kvStore = kv.NewMemory()
	} else {
		kvStore = redisStore
	}

	clk := clock.New()
	limiter := ratelimit.New(kvStore, ratelimit.Config{
		Capacity:      int64(cfg.SteamRateLimitPerMin),
		Window:        time.Minute,
		FallbackBurst: 5,
	}, log)
	steamClient := steamclient.New(steamclient.Config{BaseURL: cfg.SteamAPIBaseURL, APIKey: cfg.SteamAPIKey}, limiter, log)

	bots := botfleet.New(store, kvStore, steamClient, clk, masterKey, log)
	wal := wallet.New(store)
	hub := notifier.NewHub(log)
	notify := notifier.New(store, hub, log)
	engine := tradeengine.New(store, wal, bots, steamClient, kvStore, notify, clk, cfg, log)
	auditLog := audit.New(store)
	flagger := fraud.New(store, fraud.DefaultWeights(), cfg.FraudReviewThreshold, log)
	engine.SetFraudReporter(flagger)
	bots.SetFraudReporter(flagger)

	auth := httpapi.NewSessionAuthenticator(cfg.SessionSigningKey, log)
	server := httpapi.New(store, engine, wal, auditLog, notify, hub, auth, cfg, log)

	recon := reconciler.New(store, engine, cfg.ReconcilerInterval, log)
	prober := botfleet.NewProber(bots)

	group := runner.NewGroup(log)
	group.Add(recon)
	group.Add(notify)
	group.Add(flagger)
	group.Add(prober)

	if err := group.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start background services")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.WithFields(map[string]interface{}{"addr": cfg.HTTPAddr}).Info("orchestrator listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown error")
	}
	group.Stop(shutdownCtx)
	log.Info("orchestrator stopped")
}

// loadBotMasterKey decodes the 32-byte bot secret encryption key from
// hex. A blank key is only tolerable when no bot credentials exist yet
// (fresh deployments before the first bot is onboarded), so this still
// returns a usable zero key rather than failing startup outright.
func loadBotMasterKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return make([]byte, 32), nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, os.ErrInvalid
	}
	return key, nil
}
