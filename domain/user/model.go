// Package user defines the platform account aggregate: identity,
// wallet balances, and risk posture.
package user

import (
	"time"

	"github.com/skinvault/escrow/domain/money"
)

// User is a platform account, identified by its 17-digit Steam id.
type User struct {
	SteamID         string        `json:"steam_id"`
	DisplayName     string        `json:"display_name"`
	AvatarURL       string        `json:"avatar_url,omitempty"`
	DeliveryAddress string        `json:"delivery_address,omitempty"`
	Balance         money.Decimal `json:"balance"`
	Reserved        money.Decimal `json:"reserved"`
	RiskScore       int           `json:"risk_score"`
	Banned          bool          `json:"banned"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Available returns the amount u is free to spend or withdraw. Invariant
// from spec §3: available = balance - reserved >= 0.
func (u User) Available() money.Decimal {
	return u.Balance.Sub(u.Reserved)
}
