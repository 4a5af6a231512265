// Package postgres implements storage.Store against PostgreSQL via
// database/sql and lib/pq, extending the teacher's plain-SQL store
// pattern with the row-level transactional locking the trade engine's
// transition protocol requires (spec §4.3, §5).
package postgres

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/internal/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every query
// method work unchanged whether or not it's running inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Store implements storage.Store backed by a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to PostgreSQL at dsn and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB (used by tests with sqlmock).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// q returns the querier for ctx: the ambient transaction if WithTx
// started one, otherwise the pool itself.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn with a transaction bound to ctx. Every store method
// called with the returned context participates in the same
// transaction; GetTradeForUpdate's row lock is held until fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierrors.NewTransient("begin transaction", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierrors.NewTransient("commit transaction", err)
	}
	return nil
}
