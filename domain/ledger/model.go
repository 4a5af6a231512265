// Package ledger defines the append-only double-entry transaction
// journal backing the wallet (C7). Every balance change a user sees is
// the sum of posted entries here; see domain/user for the cached
// balance/reserved fields the journal must agree with.
package ledger

import (
	"time"

	"github.com/skinvault/escrow/domain/money"
)

// Kind categorizes a ledger entry's effect (spec §3).
type Kind string

const (
	KindDebitHold   Kind = "debit_hold"
	KindReleaseHold Kind = "release_hold"
	KindCapture     Kind = "capture"
	KindPayout      Kind = "payout"
	KindFee         Kind = "fee"
	KindRefund      Kind = "refund"
	KindAdjust      Kind = "adjust"
)

// Status is a ledger entry's posting state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPosted   Status = "posted"
	StatusReversed Status = "reversed"
)

// EscrowAccountID is the internal pseudo-account a capture moves funds
// into and a payout/refund moves funds out of (spec §4.5).
const EscrowAccountID = "platform:escrow"

// Transaction is a single append-only ledger entry.
type Transaction struct {
	UUID          string        `json:"uuid"`
	TradeUUID     string        `json:"trade_uuid,omitempty"`
	SubjectUserID string        `json:"subject_user_id"`
	Kind          Kind          `json:"kind"`
	Amount        money.Decimal `json:"amount"` // signed: negative for holds/debits
	Currency      string        `json:"currency"`
	Status        Status        `json:"status"`
	ExternalRef   string        `json:"external_ref,omitempty"`
	RetryCount    int           `json:"retry_count"`
	CreatedAt     time.Time     `json:"created_at"`
}
