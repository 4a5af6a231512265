// Package bot defines the platform-owned Steam identities the bot fleet
// manager (C6) custodies and assigns to trades.
package bot

import "time"

// Status is a bot's fleet lifecycle state (spec §3, §4.4).
type Status string

const (
	StatusOffline      Status = "offline"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusDegraded     Status = "degraded"
	StatusBanned       Status = "banned"
)

// Bot is a long-lived Steam account the platform uses for custody and
// transport of items during escrow.
type Bot struct {
	ID                string
	SteamID           string
	AccountName       string
	EncryptedPassword []byte
	EncryptedTOTPSeed []byte
	EncryptedIdentity []byte
	Status            Status
	InventorySize     int
	ActiveTradeCount  int
	LastError         string
	LastOnlineAt      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available reports whether the bot can be handed out by Acquire.
func (b Bot) Available() bool {
	return b.Status == StatusReady
}

// Session is the cacheable Steam login blob held in the KV store; it is
// non-authoritative, so a missing or stale session simply triggers a
// re-login rather than an error (spec §3).
type Session struct {
	BotID   string
	SteamID string
	Cookies string
	SavedAt time.Time
}

// TTL is the Steam cookie lifetime a cached session is trusted for.
const TTL = 20 * time.Hour

// Expired reports whether s is older than TTL as of now.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.SavedAt) > TTL
}
