package postgres

import (
	"context"
	"time"

	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/domain/user"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO users (steam_id, display_name, avatar_url, delivery_address, balance, reserved, risk_score, banned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.SteamID, u.DisplayName, u.AvatarURL, u.DeliveryAddress, u.Balance.String(), u.Reserved.String(), u.RiskScore, u.Banned, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, steamID string) (user.User, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT steam_id, display_name, avatar_url, delivery_address, balance, reserved, risk_score, banned, created_at, updated_at
		FROM users WHERE steam_id = $1
	`, steamID)
	return scanUser(row)
}

// GetUserForUpdate locks the row for the duration of the enclosing
// transaction, the same way GetTradeForUpdate locks a trade row.
func (s *Store) GetUserForUpdate(ctx context.Context, steamID string) (user.User, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT steam_id, display_name, avatar_url, delivery_address, balance, reserved, risk_score, banned, created_at, updated_at
		FROM users WHERE steam_id = $1 FOR UPDATE
	`, steamID)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE users
		SET display_name = $2, avatar_url = $3, delivery_address = $4, balance = $5, reserved = $6, risk_score = $7, banned = $8, updated_at = $9
		WHERE steam_id = $1
	`, u.SteamID, u.DisplayName, u.AvatarURL, u.DeliveryAddress, u.Balance.String(), u.Reserved.String(), u.RiskScore, u.Banned, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, apierrors.NewNotFound("user", u.SteamID)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (user.User, error) {
	var (
		u                    user.User
		balance, reserved    string
	)
	if err := row.Scan(&u.SteamID, &u.DisplayName, &u.AvatarURL, &u.DeliveryAddress, &balance, &reserved, &u.RiskScore, &u.Banned, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, err
	}
	var err error
	if u.Balance, err = money.FromString(balance); err != nil {
		return user.User{}, err
	}
	if u.Reserved, err = money.FromString(reserved); err != nil {
		return user.User{}, err
	}
	return u, nil
}
