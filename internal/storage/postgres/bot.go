package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/skinvault/escrow/domain/bot"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

func (s *Store) CreateBot(ctx context.Context, b bot.Bot) (bot.Bot, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO bots (id, steam_id, account_name, encrypted_password, encrypted_totp_seed, encrypted_identity,
			status, inventory_size, active_trade_count, last_error, last_online_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, b.ID, b.SteamID, b.AccountName, b.EncryptedPassword, b.EncryptedTOTPSeed, b.EncryptedIdentity,
		b.Status, b.InventorySize, b.ActiveTradeCount, b.LastError, nullTime(b.LastOnlineAt), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return bot.Bot{}, err
	}
	return b, nil
}

func (s *Store) GetBot(ctx context.Context, id string) (bot.Bot, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, steam_id, account_name, encrypted_password, encrypted_totp_seed, encrypted_identity,
			status, inventory_size, active_trade_count, last_error, last_online_at, created_at, updated_at
		FROM bots WHERE id = $1
	`, id)
	return scanBot(row)
}

func (s *Store) UpdateBot(ctx context.Context, b bot.Bot) (bot.Bot, error) {
	b.UpdatedAt = time.Now().UTC()
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE bots SET status = $2, inventory_size = $3, active_trade_count = $4, last_error = $5, last_online_at = $6, updated_at = $7
		WHERE id = $1
	`, b.ID, b.Status, b.InventorySize, b.ActiveTradeCount, b.LastError, nullTime(b.LastOnlineAt), b.UpdatedAt)
	if err != nil {
		return bot.Bot{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return bot.Bot{}, apierrors.NewNotFound("bot", b.ID)
	}
	return b, nil
}

func (s *Store) ListBotsByStatus(ctx context.Context, status bot.Status) ([]bot.Bot, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, steam_id, account_name, encrypted_password, encrypted_totp_seed, encrypted_identity,
			status, inventory_size, active_trade_count, last_error, last_online_at, created_at, updated_at
		FROM bots WHERE status = $1 ORDER BY active_trade_count ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bot.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBot(row rowScanner) (bot.Bot, error) {
	var (
		b            bot.Bot
		lastOnlineAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.SteamID, &b.AccountName, &b.EncryptedPassword, &b.EncryptedTOTPSeed, &b.EncryptedIdentity,
		&b.Status, &b.InventorySize, &b.ActiveTradeCount, &b.LastError, &lastOnlineAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return bot.Bot{}, err
	}
	b.LastOnlineAt = lastOnlineAt.Time
	return b, nil
}
