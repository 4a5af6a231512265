// Package botfleet implements the bot fleet manager (C6): it owns every
// Steam bot identity, serializes logins per account, caches sessions in
// the KV store, and hands out the least-loaded ready bot to the trade
// engine.
//
// Adapted from services/accountpool/pool.go's acquire/release/rotate
// pattern (in-memory mutex guarding a DB-backed pool) generalized from
// blockchain signing accounts to Steam bot identities.
package botfleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/skinvault/escrow/domain/bot"
	"github.com/skinvault/escrow/internal/fraud"
	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/internal/platform/clock"
	"github.com/skinvault/escrow/internal/platform/kv"
	"github.com/skinvault/escrow/internal/platform/secretbox"
	"github.com/skinvault/escrow/internal/steamclient"
	"github.com/skinvault/escrow/internal/storage"
	"github.com/skinvault/escrow/pkg/logger"
)

// ErrNoBotAvailable is returned by Acquire when every bot is unready.
var ErrNoBotAvailable = errors.New("no bot available")

const sessionKeyPrefix = "bot:session:"

// Manager owns the bot fleet: lifecycle, session cache, and assignment.
type Manager struct {
	store  storage.BotStore
	kv     kv.Store
	steam  steamclient.Client
	clock  clock.Clock
	masterKey []byte
	log    *logger.Logger
	fraud  FraudReporter

	mu sync.Mutex // serializes acquire/release against double-assignment (spec §5)

	loginMu    sync.Mutex
	loginLocks map[string]*sync.Mutex // per-account-name login queue (spec §4.4)
}

// FraudReporter is the narrow interface the manager needs to surface a
// risk signal; internal/fraud.Flagger implements it. See
// internal/tradeengine.FraudReporter for the identical optional-wiring
// rationale.
type FraudReporter interface {
	Report(evt fraud.Event)
}

// SetFraudReporter wires C12 into the manager after construction.
func (m *Manager) SetFraudReporter(r FraudReporter) {
	m.fraud = r
}

// New creates a Manager. masterKey is the 32-byte key used to decrypt
// bot secrets; it never leaves process memory.
func New(store storage.BotStore, kvStore kv.Store, steam steamclient.Client, c clock.Clock, masterKey []byte, log *logger.Logger) *Manager {
	return &Manager{
		store:      store,
		kv:         kvStore,
		steam:      steam,
		clock:      c,
		masterKey:  masterKey,
		log:        log,
		loginLocks: make(map[string]*sync.Mutex),
	}
}

// Acquire returns the least-loaded ready bot not in excluding, marking it
// reserved by incrementing its active-trade count.
func (m *Manager) Acquire(ctx context.Context, excluding []string) (bot.Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates, err := m.store.ListBotsByStatus(ctx, bot.StatusReady)
	if err != nil {
		return bot.Bot{}, apierrors.NewTransient("list ready bots", err)
	}

	excludeSet := make(map[string]bool, len(excluding))
	for _, id := range excluding {
		excludeSet[id] = true
	}

	var best *bot.Bot
	for i := range candidates {
		c := &candidates[i]
		if excludeSet[c.ID] {
			continue
		}
		if best == nil || c.ActiveTradeCount < best.ActiveTradeCount {
			best = c
		}
	}
	if best == nil {
		return bot.Bot{}, ErrNoBotAvailable
	}

	best.ActiveTradeCount++
	updated, err := m.store.UpdateBot(ctx, *best)
	if err != nil {
		return bot.Bot{}, apierrors.NewTransient("update bot", err)
	}
	return updated, nil
}

// Release decrements a bot's active-trade count.
func (m *Manager) Release(ctx context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.store.GetBot(ctx, botID)
	if err != nil {
		return err
	}
	if b.ActiveTradeCount > 0 {
		b.ActiveTradeCount--
	}
	_, err = m.store.UpdateBot(ctx, b)
	return err
}

// MarkDegraded transitions a bot to degraded; the background prober
// (see prober.go) re-probes it every 60s.
func (m *Manager) MarkDegraded(ctx context.Context, botID, reason string) error {
	b, err := m.store.GetBot(ctx, botID)
	if err != nil {
		return err
	}
	b.Status = bot.StatusDegraded
	b.LastError = reason
	_, err = m.store.UpdateBot(ctx, b)
	return err
}

// Session returns a usable Steam session for b: it tries the cached
// session first, falls back to a fresh login on cache miss or failed
// restore (spec §4.4).
func (m *Manager) Session(ctx context.Context, b bot.Bot) (steamclient.Session, error) {
	if cached, ok := m.cachedSession(ctx, b.ID); ok {
		if ok, err := m.steam.Restore(ctx, cached); err == nil && ok {
			return cached, nil
		}
	}
	return m.login(ctx, b)
}

func (m *Manager) cachedSession(ctx context.Context, botID string) (steamclient.Session, bool) {
	raw, err := m.kv.Get(ctx, sessionKeyPrefix+botID)
	if err != nil {
		return steamclient.Session{}, false
	}
	var s steamclient.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return steamclient.Session{}, false
	}
	return s, true
}

func (m *Manager) cacheSession(ctx context.Context, botID string, s steamclient.Session) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = m.kv.Set(ctx, sessionKeyPrefix+botID, string(raw), bot.TTL)
}

// login performs the OTP login flow, serialized per account so two
// concurrent callers for the same bot never race Steam's login endpoint.
func (m *Manager) login(ctx context.Context, b bot.Bot) (steamclient.Session, error) {
	lock := m.accountLock(b.AccountName)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have logged in while we waited for the lock.
	if cached, ok := m.cachedSession(ctx, b.ID); ok {
		if ok, err := m.steam.Restore(ctx, cached); err == nil && ok {
			return cached, nil
		}
	}

	password, err := secretbox.Decrypt(m.masterKey, []byte(b.ID), secretbox.PurposePassword, b.EncryptedPassword)
	if err != nil {
		return steamclient.Session{}, apierrors.NewInternal(fmt.Sprintf("decrypt bot %s password: %v", b.ID, err))
	}
	seed, err := secretbox.Decrypt(m.masterKey, []byte(b.ID), secretbox.PurposeTOTPSeed, b.EncryptedTOTPSeed)
	if err != nil {
		return steamclient.Session{}, apierrors.NewInternal(fmt.Sprintf("decrypt bot %s totp seed: %v", b.ID, err))
	}

	code, err := totp.GenerateCode(string(seed), m.clock.Now())
	if err != nil {
		return steamclient.Session{}, apierrors.NewInternal(fmt.Sprintf("generate totp for bot %s: %v", b.ID, err))
	}

	session, err := m.steam.Login(ctx, steamclient.Secrets{
		AccountName: b.AccountName,
		Password:    string(password),
		TOTPCode:    code,
	})
	if err != nil {
		if m.fraud != nil {
			m.fraud.Report(fraud.Event{Kind: fraud.KindAPIKeyChanged, UserID: b.ID, Detail: fmt.Sprintf("bot %s login rejected, credentials may have changed: %v", b.ID, err)})
		}
		return steamclient.Session{}, err
	}

	m.cacheSession(ctx, b.ID, session)
	return session, nil
}

func (m *Manager) accountLock(accountName string) *sync.Mutex {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()
	lock, ok := m.loginLocks[accountName]
	if !ok {
		lock = &sync.Mutex{}
		m.loginLocks[accountName] = lock
	}
	return lock
}

// TOTPClockSkew is the tolerance spec.md §4.4 allows a bot's TOTP code.
const TOTPClockSkew = 30 * time.Second
