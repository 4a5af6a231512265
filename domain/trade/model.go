// Package trade defines the central escrow aggregate and its state
// machine. The state machine itself (legal edges, terminal states) lives
// here as pure data so both the trade engine and its tests can reason
// about it without touching storage.
package trade

import (
	"fmt"
	"time"

	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/money"
)

// Status is a trade's lifecycle state, per spec §4.3.
type Status string

const (
	StatusPendingPayment   Status = "pending_payment"
	StatusPaymentReceived  Status = "payment_received"
	StatusAwaitingSeller   Status = "awaiting_seller"
	StatusSellerAccepted   Status = "seller_accepted"
	StatusAwaitingBuyer    Status = "awaiting_buyer"
	StatusBuyerAccepted    Status = "buyer_accepted"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusRefunded         Status = "refunded"
	StatusExpired          Status = "expired"
	StatusDisputed         Status = "disputed"
	StatusErrorSending     Status = "error_sending"
	StatusErrorForwarding  Status = "error_forwarding"
)

// Terminal reports whether s is a terminal state: once entered, a trade's
// status never changes again (spec §8 property 4).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded, StatusExpired:
		return true
	default:
		return false
	}
}

// edges enumerates every legal (from, to) pair from spec §4.3. Any
// transition not listed here is rejected by the trade engine.
var edges = map[Status]map[Status]bool{
	StatusPendingPayment: {
		StatusPaymentReceived: true,
		StatusCancelled:       true,
	},
	StatusPaymentReceived: {
		StatusAwaitingSeller: true, // peer listing
		StatusAwaitingBuyer:  true, // bot-owned listing
		StatusCancelled:      true,
		StatusExpired:        true,
	},
	StatusAwaitingSeller: {
		StatusSellerAccepted: true,
		StatusErrorSending:   true,
		StatusRefunded:       true,
		StatusCancelled:      true,
		StatusExpired:        true,
	},
	StatusErrorSending: {
		StatusAwaitingSeller: true, // reconciler retries the send
		StatusRefunded:       true,
		StatusDisputed:       true,
		StatusCancelled:      true,
		StatusExpired:        true,
	},
	StatusSellerAccepted: {
		StatusAwaitingBuyer: true,
		StatusCancelled:     true,
		StatusExpired:       true,
	},
	StatusAwaitingBuyer: {
		StatusBuyerAccepted:   true,
		StatusErrorForwarding: true,
		StatusDisputed:        true,
		StatusCancelled:       true,
		StatusExpired:         true,
	},
	StatusErrorForwarding: {
		StatusAwaitingBuyer: true, // reconciler retries the forward
		StatusDisputed:      true,
		StatusCancelled:     true,
		StatusExpired:       true,
	},
	StatusBuyerAccepted: {
		StatusCompleted: true,
	},
	StatusDisputed: {
		StatusRefunded:  true, // admin-forced resolution in the buyer's favor
		StatusCompleted: true, // admin-forced resolution in the seller's favor
	},
}

// MaxForwardingRetries is the threshold N from spec §4.3: repeated
// forwarding failure past this count moves a trade to disputed instead of
// retrying again.
const MaxForwardingRetries = 5

// CanTransition reports whether moving from "from" to "to" is a legal
// edge in the state machine.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	return edges[from][to]
}

// Trade is the central aggregate coordinating a buyer, a seller, a bot,
// and the Steam trade offers that move an item between them.
type Trade struct {
	UUID            string        `json:"uuid"`
	ListingID       int64         `json:"listing_id"`
	BuyerSteamID    string        `json:"buyer_steam_id"`
	SellerSteamID   string        `json:"seller_steam_id"`
	AssignedBotID   string        `json:"assigned_bot_id,omitempty"` // empty until a bot is acquired
	Item            listing.Item  `json:"item"`
	Price           money.Decimal `json:"price"`
	FeePercent      float64       `json:"fee_percent"`
	PlatformFee     money.Decimal `json:"platform_fee"`
	SellerPayout    money.Decimal `json:"seller_payout"`
	SellerOfferID   string        `json:"seller_offer_id,omitempty"` // bot -> seller leg (peer listings only)
	BuyerOfferID    string        `json:"buyer_offer_id,omitempty"`  // bot -> buyer leg
	Status          Status        `json:"status"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	RetryCount      int           `json:"retry_count"`
	ExpiresAt       time.Time     `json:"expires_at"`
	SellerLegSentAt time.Time     `json:"seller_leg_sent_at,omitempty"`
	BuyerLegSentAt  time.Time     `json:"buyer_leg_sent_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ComputePricing fills PlatformFee and SellerPayout from Price and
// FeePercent: seller payout = price - fee (spec §3).
func (t *Trade) ComputePricing() {
	t.PlatformFee = money.Percent(t.Price, t.FeePercent)
	t.SellerPayout = t.Price.Sub(t.PlatformFee)
}

// IdempotencyKey returns the deterministic key scoping the external
// effect of moving this trade to target, per spec §4.3:
// "{trade_uuid}:{target_state}".
func IdempotencyKey(tradeUUID string, target Status) string {
	return fmt.Sprintf("%s:%s", tradeUUID, target)
}
