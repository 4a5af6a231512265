// Package storagetest provides an in-memory storage.Store double for
// deterministic trade-engine and reconciler tests, the same role
// FakeClient plays for the Steam client (C5): scenario tests (spec §8)
// need a store that behaves like Postgres under row locks without a real
// database.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skinvault/escrow/domain/bot"
	"github.com/skinvault/escrow/domain/history"
	"github.com/skinvault/escrow/domain/ledger"
	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/domain/notification"
	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/domain/user"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

// Store is a single-process storage.Store backed by a mutex-guarded map
// set. WithTx takes the global lock for its duration, which reproduces
// Postgres's row-lock semantics closely enough for single-process tests:
// two goroutines racing WithTx calls serialize exactly like two workers
// racing SELECT ... FOR UPDATE on the same row.
type Store struct {
	mu sync.Mutex

	users         map[string]user.User
	listings      map[int64]listing.Listing
	listingSeq    int64
	trades        map[string]trade.Trade
	transactions  []ledger.Transaction
	history       []history.Row
	historySeq    int64
	bots          map[string]bot.Bot
	notifications map[int64]notification.Notification
	notificationSeq int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:         make(map[string]user.User),
		listings:      make(map[int64]listing.Listing),
		trades:        make(map[string]trade.Trade),
		bots:          make(map[string]bot.Bot),
		notifications: make(map[int64]notification.Notification),
	}
}

// WithTx runs fn while holding the store's single lock, so concurrent
// transitions against the same or different trades serialize exactly
// like row locks would in Postgres.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.SteamID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, steamID string) (user.User, error) {
	u, ok := s.users[steamID]
	if !ok {
		return user.User{}, apierrors.NewNotFound("user", steamID)
	}
	return u, nil
}

func (s *Store) GetUserForUpdate(ctx context.Context, steamID string) (user.User, error) {
	return s.GetUser(ctx, steamID)
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	if _, ok := s.users[u.SteamID]; !ok {
		return user.User{}, apierrors.NewNotFound("user", u.SteamID)
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[u.SteamID] = u
	return u, nil
}

// --- listings ---

func (s *Store) CreateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	s.listingSeq++
	l.ID = s.listingSeq
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) GetListing(_ context.Context, id int64) (listing.Listing, error) {
	l, ok := s.listings[id]
	if !ok {
		return listing.Listing{}, apierrors.NewNotFound("listing", "")
	}
	return l, nil
}

func (s *Store) UpdateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	if _, ok := s.listings[l.ID]; !ok {
		return listing.Listing{}, apierrors.NewNotFound("listing", "")
	}
	l.UpdatedAt = time.Now().UTC()
	s.listings[l.ID] = l
	return l, nil
}

func (s *Store) ListActiveListings(_ context.Context, limit, offset int) ([]listing.Listing, error) {
	var out []listing.Listing
	for _, l := range s.listings {
		if l.Status == listing.StatusActive {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- trades ---

func (s *Store) CreateTrade(_ context.Context, t trade.Trade) (trade.Trade, error) {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.trades[t.UUID] = t
	return t, nil
}

func (s *Store) GetTradeForUpdate(ctx context.Context, uuid string) (trade.Trade, error) {
	return s.GetTrade(ctx, uuid)
}

func (s *Store) GetTrade(_ context.Context, uuid string) (trade.Trade, error) {
	t, ok := s.trades[uuid]
	if !ok {
		return trade.Trade{}, apierrors.NewNotFound("trade", uuid)
	}
	return t, nil
}

func (s *Store) UpdateTrade(_ context.Context, t trade.Trade) (trade.Trade, error) {
	if _, ok := s.trades[t.UUID]; !ok {
		return trade.Trade{}, apierrors.NewNotFound("trade", t.UUID)
	}
	t.UpdatedAt = time.Now().UTC()
	s.trades[t.UUID] = t
	return t, nil
}

func (s *Store) ListDueForReconciliation(_ context.Context, limit int) ([]trade.Trade, error) {
	now := time.Now().UTC()
	var out []trade.Trade
	for _, t := range s.trades {
		if t.Status.Terminal() {
			continue
		}
		if t.CancelReason != "" {
			out = append(out, t)
			continue
		}
		if !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt) {
			out = append(out, t)
			continue
		}
		switch t.Status {
		case trade.StatusPaymentReceived, trade.StatusAwaitingSeller, trade.StatusAwaitingBuyer, trade.StatusErrorSending, trade.StatusErrorForwarding, trade.StatusBuyerAccepted:
			out = append(out, t)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- ledger ---

func (s *Store) AppendTransaction(_ context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = ledger.StatusPosted
	}
	s.transactions = append(s.transactions, t)
	return t, nil
}

func (s *Store) ListTransactionsByUser(_ context.Context, steamID string, limit int) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if t.SubjectUserID == steamID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListTransactionsByTrade(_ context.Context, tradeUUID string) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, t := range s.transactions {
		if t.TradeUUID == tradeUUID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) SumPosted(_ context.Context, steamID string) (string, error) {
	sum := 0.0
	for _, t := range s.transactions {
		if t.SubjectUserID == steamID && t.Status == ledger.StatusPosted {
			f, _ := t.Amount.Float64()
			sum += f
		}
	}
	return money.FromFloat(sum).String(), nil
}

// --- history ---

func (s *Store) AppendHistory(_ context.Context, row history.Row) (history.Row, error) {
	s.historySeq++
	row.ID = s.historySeq
	row.CreatedAt = time.Now().UTC()
	s.history = append(s.history, row)
	return row, nil
}

func (s *Store) ListHistory(_ context.Context, tradeUUID string) ([]history.Row, error) {
	var out []history.Row
	for _, r := range s.history {
		if r.TradeUUID == tradeUUID {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- bots ---

func (s *Store) CreateBot(_ context.Context, b bot.Bot) (bot.Bot, error) {
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bots[b.ID] = b
	return b, nil
}

func (s *Store) GetBot(_ context.Context, id string) (bot.Bot, error) {
	b, ok := s.bots[id]
	if !ok {
		return bot.Bot{}, apierrors.NewNotFound("bot", id)
	}
	return b, nil
}

func (s *Store) UpdateBot(_ context.Context, b bot.Bot) (bot.Bot, error) {
	b.UpdatedAt = time.Now().UTC()
	s.bots[b.ID] = b
	return b, nil
}

func (s *Store) ListBotsByStatus(_ context.Context, status bot.Status) ([]bot.Bot, error) {
	var out []bot.Bot
	for _, b := range s.bots {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

// --- notifications ---

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.notificationSeq++
	n.ID = s.notificationSeq
	n.CreatedAt = time.Now().UTC()
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) ListPending(_ context.Context, recipientID string) ([]notification.Notification, error) {
	var out []notification.Notification
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && n.Status == notification.StatusPending {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkDelivered(_ context.Context, id int64) error {
	n, ok := s.notifications[id]
	if !ok {
		return apierrors.NewNotFound("notification", "")
	}
	n.Status = notification.StatusDelivered
	n.DeliveredAt = time.Now().UTC()
	s.notifications[id] = n
	return nil
}

func (s *Store) MarkRead(_ context.Context, id int64) error {
	n, ok := s.notifications[id]
	if !ok {
		return apierrors.NewNotFound("notification", "")
	}
	n.Status = notification.StatusRead
	n.ReadAt = time.Now().UTC()
	s.notifications[id] = n
	return nil
}

func (s *Store) DeleteOlderThanRetention(_ context.Context) (int64, error) {
	var deleted int64
	now := time.Now().UTC()
	for id, n := range s.notifications {
		if n.Expired(now) {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}
