package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

func (s *Store) CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	item, err := json.Marshal(l.Item)
	if err != nil {
		return listing.Listing{}, err
	}

	row := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO listings (seller_steam_id, item, price, currency, kind, status, views, is_featured, delivery_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, l.SellerSteamID, item, l.Price.String(), l.Currency, l.Kind, l.Status, l.Views, l.IsFeatured, l.DeliveryAddress, l.CreatedAt, l.UpdatedAt)
	if err := row.Scan(&l.ID); err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}

func (s *Store) GetListing(ctx context.Context, id int64) (listing.Listing, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, seller_steam_id, item, price, currency, kind, status, views, is_featured, delivery_address, created_at, updated_at
		FROM listings WHERE id = $1
	`, id)
	return scanListing(row)
}

func (s *Store) UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	l.UpdatedAt = time.Now().UTC()
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE listings
		SET price = $2, status = $3, views = $4, is_featured = $5, updated_at = $6
		WHERE id = $1
	`, l.ID, l.Price.String(), l.Status, l.Views, l.IsFeatured, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return listing.Listing{}, apierrors.NewNotFound("listing", "")
	}
	return l, nil
}

func (s *Store) ListActiveListings(ctx context.Context, limit, offset int) ([]listing.Listing, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, seller_steam_id, item, price, currency, kind, status, views, is_featured, delivery_address, created_at, updated_at
		FROM listings WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, listing.StatusActive, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(row rowScanner) (listing.Listing, error) {
	var (
		l        listing.Listing
		itemRaw  []byte
		price    string
	)
	if err := row.Scan(&l.ID, &l.SellerSteamID, &itemRaw, &price, &l.Currency, &l.Kind, &l.Status, &l.Views, &l.IsFeatured, &l.DeliveryAddress, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return listing.Listing{}, err
	}
	if err := json.Unmarshal(itemRaw, &l.Item); err != nil {
		return listing.Listing{}, err
	}
	var err error
	if l.Price, err = money.FromString(price); err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}
