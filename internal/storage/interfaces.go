// Package storage declares the persistence contracts for every
// aggregate in the domain model (C2). The SQL store is the single
// source of truth (spec §5); the KV store never holds anything these
// interfaces can't reconstruct.
package storage

import (
	"context"

	"github.com/skinvault/escrow/domain/bot"
	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/ledger"
	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/notification"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/domain/user"
)

// UserStore persists platform accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, steamID string) (user.User, error)
	// GetUserForUpdate locks the row with SELECT ... FOR UPDATE; callers
	// must obtain ctx via Store.WithTx so the lock is held for the
	// duration of the wallet operation, the same way GetTradeForUpdate
	// locks a trade row.
	GetUserForUpdate(ctx context.Context, steamID string) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
}

// ListingStore persists sell listings.
type ListingStore interface {
	CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	GetListing(ctx context.Context, id int64) (listing.Listing, error)
	UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	ListActiveListings(ctx context.Context, limit, offset int) ([]listing.Listing, error)
}

// TradeStore persists the trade aggregate and enforces the row-level
// locking the trade engine's transition protocol depends on (spec §4.3).
type TradeStore interface {
	CreateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error)
	// GetTradeForUpdate locks the row with SELECT ... FOR UPDATE for the
	// duration of the enclosing transaction; it must be called with a
	// context carrying a transaction from WithTx.
	GetTradeForUpdate(ctx context.Context, uuid string) (trade.Trade, error)
	GetTrade(ctx context.Context, uuid string) (trade.Trade, error)
	UpdateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error)
	// ListDueForReconciliation returns non-terminal trades whose
	// expires_at has passed, that carry a cancellation request, or that
	// sit in payment_received, awaiting_seller, awaiting_buyer,
	// error_sending, error_forwarding or buyer_accepted. Trades are not
	// filtered by the age of their last external action: every trade in
	// those states is returned on each call.
	ListDueForReconciliation(ctx context.Context, limit int) ([]trade.Trade, error)
}

// LedgerStore persists append-only wallet transactions.
type LedgerStore interface {
	AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	ListTransactionsByUser(ctx context.Context, steamID string, limit int) ([]ledger.Transaction, error)
	ListTransactionsByTrade(ctx context.Context, tradeUUID string) ([]ledger.Transaction, error)
	// SumPosted returns the sum of posted entries for a user, used to
	// verify the ledger-conservation invariant (spec §8 property 1).
	SumPosted(ctx context.Context, steamID string) (string, error)
}

// HistoryStore persists the audit trail.
type HistoryStore interface {
	AppendHistory(ctx context.Context, row history.Row) (history.Row, error)
	ListHistory(ctx context.Context, tradeUUID string) ([]history.Row, error)
}

// BotStore persists bot fleet identities.
type BotStore interface {
	CreateBot(ctx context.Context, b bot.Bot) (bot.Bot, error)
	GetBot(ctx context.Context, id string) (bot.Bot, error)
	UpdateBot(ctx context.Context, b bot.Bot) (bot.Bot, error)
	ListBotsByStatus(ctx context.Context, status bot.Status) ([]bot.Bot, error)
}

// NotificationStore persists the durable notification queue.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListPending(ctx context.Context, recipientID string) ([]notification.Notification, error)
	MarkDelivered(ctx context.Context, id int64) error
	MarkRead(ctx context.Context, id int64) error
	DeleteOlderThanRetention(ctx context.Context) (int64, error)
}

// Store aggregates every per-aggregate store the trade engine and its
// collaborators depend on.
type Store interface {
	UserStore
	ListingStore
	TradeStore
	LedgerStore
	HistoryStore
	BotStore
	NotificationStore

	// WithTx runs fn inside a single database transaction; row locks
	// taken by GetTradeForUpdate are released on commit or rollback.
	// An error returned by fn rolls back the transaction (spec §4.3 step 6).
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
