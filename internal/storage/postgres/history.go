package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/skinvault/escrow/domain/history"
)

func (s *Store) AppendHistory(ctx context.Context, row history.Row) (history.Row, error) {
	row.CreatedAt = time.Now().UTC()
	r := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO escrow_trade_history (trade_uuid, previous_status, new_status, actor, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, row.TradeUUID, row.PreviousStatus, row.NewStatus, row.Actor, row.Notes, row.CreatedAt)
	if err := r.Scan(&row.ID); err != nil {
		return history.Row{}, err
	}
	return row, nil
}

func (s *Store) ListHistory(ctx context.Context, tradeUUID string) ([]history.Row, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, trade_uuid, previous_status, new_status, actor, notes, created_at
		FROM escrow_trade_history WHERE trade_uuid = $1 ORDER BY created_at ASC
	`, tradeUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []history.Row
	for rows.Next() {
		var row history.Row
		if err := scanHistory(rows, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanHistory(rows *sql.Rows, row *history.Row) error {
	return rows.Scan(&row.ID, &row.TradeUUID, &row.PreviousStatus, &row.NewStatus, &row.Actor, &row.Notes, &row.CreatedAt)
}
