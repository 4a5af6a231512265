package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/skinvault/escrow/domain/listing"
	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

type createListingRequest struct {
	Item            listing.Item `json:"item"`
	Price           float64      `json:"price"`
	Currency        string       `json:"currency"`
	Kind            listing.Kind `json:"kind"`
	DeliveryAddress string       `json:"delivery_address"`
}

// handleCreateListing implements POST /listings: the caller becomes the
// listing's seller (spec §6).
func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}

	var req createListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if req.Price < s.cfg.MinListingPrice || req.Price > s.cfg.MaxListingPrice {
		writeError(w, s.log, apierrors.NewValidation("price", "outside the allowed listing price range"), false, 0)
		return
	}
	if req.Kind == listing.KindPeer && req.DeliveryAddress == "" {
		writeError(w, s.log, apierrors.NewValidation("delivery_address", "required for peer listings"), false, 0)
		return
	}

	l := listing.Listing{
		SellerSteamID:   session.SteamID,
		Item:            req.Item,
		Price:           money.FromFloat(req.Price),
		Currency:        req.Currency,
		Kind:            req.Kind,
		Status:          listing.StatusActive,
		DeliveryAddress: req.DeliveryAddress,
	}
	created, err := s.store.CreateListing(r.Context(), l)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type patchListingRequest struct {
	Price  *float64       `json:"price"`
	Status *listing.Status `json:"status"`
}

// handlePatchListing implements PATCH /listings/:id: only the owning
// seller may edit, and only while the listing is still editable (not yet
// reserved by a trade in flight).
func (s *Server) handlePatchListing(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, s.log, apierrors.NewValidation("id", "must be an integer"), false, 0)
		return
	}

	l, err := s.store.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if l.SellerSteamID != session.SteamID && !session.IsAdmin {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	if !l.Editable() {
		writeError(w, s.log, apierrors.NewPrecondition("listing is not editable in its current status"), false, 0)
		return
	}

	var req patchListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if req.Price != nil {
		l.Price = money.FromFloat(*req.Price)
	}
	if req.Status != nil {
		l.Status = *req.Status
	}

	updated, err := s.store.UpdateListing(r.Context(), l)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteListing implements DELETE /listings/:id as a soft-delete:
// the row is marked removed rather than physically deleted, preserving
// it for any trade history that still references it.
func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, s.log, apierrors.NewValidation("id", "must be an integer"), false, 0)
		return
	}

	l, err := s.store.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if l.SellerSteamID != session.SteamID && !session.IsAdmin {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	if !l.Editable() {
		writeError(w, s.log, apierrors.NewPrecondition("listing is not editable in its current status"), false, 0)
		return
	}

	l.Status = listing.StatusRemoved
	if _, err := s.store.UpdateListing(r.Context(), l); err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListListings implements GET /listings: the active marketplace
// feed, paginated.
func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	listings, err := s.store.ListActiveListings(r.Context(), limit, offset)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
