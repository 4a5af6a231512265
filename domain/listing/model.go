// Package listing defines published sell offers and their item snapshots.
package listing

import (
	"time"

	"github.com/skinvault/escrow/domain/money"
)

// Kind distinguishes listings the platform already custodies from those
// still held by the seller.
type Kind string

const (
	KindBotOwned Kind = "bot_owned"
	KindPeer     Kind = "peer"
)

// Status is a listing's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
	StatusRemoved   Status = "removed"
	StatusExpired   Status = "expired"
)

// Item is the denormalized item snapshot captured at listing time so a
// listing (and later a trade) remains auditable even if the underlying
// Steam item metadata changes.
type Item struct {
	AssetID        string   `json:"asset_id"`
	MarketHashName string   `json:"market_hash_name"`
	AppID          int      `json:"app_id"`
	ContextID      int      `json:"context_id"`
	IconURL        string   `json:"icon_url"`
	Rarity         string   `json:"rarity"`
	Exterior       string   `json:"exterior"`
	Float          float64  `json:"float"`
	StickerSet     []string `json:"sticker_set"`
}

// Listing is a published offer to sell an item at a fixed price.
type Listing struct {
	ID              int64         `json:"id"`
	SellerSteamID   string        `json:"seller_steam_id"`
	Item            Item          `json:"item"`
	Price           money.Decimal `json:"price"`
	Currency        string        `json:"currency"`
	Kind            Kind          `json:"kind"`
	Status          Status        `json:"status"`
	Views           int64         `json:"views"`
	IsFeatured      bool          `json:"is_featured"`
	DeliveryAddress string        `json:"delivery_address,omitempty"` // required when Kind == KindPeer
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Editable reports whether price/status may still be changed by the
// seller (everything else is immutable once created, per spec §3).
func (l Listing) Editable() bool {
	return l.Status == StatusActive
}
