package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/skinvault/escrow/domain/ledger"
	"github.com/skinvault/escrow/domain/money"
)

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.UUID == "" {
		tx.UUID = uuid.NewString()
	}
	tx.CreatedAt = time.Now().UTC()

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO escrow_transactions (uuid, trade_uuid, subject_user_id, kind, amount, currency, status, external_ref, retry_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, tx.UUID, tx.TradeUUID, tx.SubjectUserID, tx.Kind, tx.Amount.String(), tx.Currency, tx.Status, tx.ExternalRef, tx.RetryCount, tx.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListTransactionsByUser(ctx context.Context, steamID string, limit int) ([]ledger.Transaction, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT uuid, trade_uuid, subject_user_id, kind, amount, currency, status, external_ref, retry_count, created_at
		FROM escrow_transactions WHERE subject_user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, steamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *Store) ListTransactionsByTrade(ctx context.Context, tradeUUID string) ([]ledger.Transaction, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT uuid, trade_uuid, subject_user_id, kind, amount, currency, status, external_ref, retry_count, created_at
		FROM escrow_transactions WHERE trade_uuid = $1 ORDER BY created_at ASC
	`, tradeUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// SumPosted returns the sum of posted ledger entries for steamID, used
// by tests to assert the ledger-conservation invariant (spec §8.1).
func (s *Store) SumPosted(ctx context.Context, steamID string) (string, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM escrow_transactions
		WHERE subject_user_id = $1 AND status = $2
	`, steamID, ledger.StatusPosted)
	var sum string
	if err := row.Scan(&sum); err != nil {
		return "", err
	}
	return sum, nil
}

func scanTransactions(rows *sql.Rows) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for rows.Next() {
		var (
			tx     ledger.Transaction
			amount string
		)
		if err := rows.Scan(&tx.UUID, &tx.TradeUUID, &tx.SubjectUserID, &tx.Kind, &amount, &tx.Currency, &tx.Status, &tx.ExternalRef, &tx.RetryCount, &tx.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if tx.Amount, err = money.FromString(amount); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
