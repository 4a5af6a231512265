package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skinvault/escrow/domain/trade"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

type createTradeRequest struct {
	ListingID     int64  `json:"listing_id"`
	BuyerTradeURL string `json:"buyer_trade_url"`
}

// handleCreateTrade implements POST /trades (spec §6).
func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	var req createTradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}

	t, err := s.engine.CreateTrade(r.Context(), req.ListingID, session.SteamID, req.BuyerTradeURL)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handlePayTrade implements POST /trades/:uuid/pay.
func (s *Server) handlePayTrade(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	tradeUUID := mux.Vars(r)["uuid"]

	t, err := s.store.GetTrade(r.Context(), tradeUUID)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if t.BuyerSteamID != session.SteamID {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}

	updated, err := s.engine.Pay(r.Context(), tradeUUID)
	if err != nil {
		writeError(w, s.log, err, session.IsAdmin, t.RetryCount)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type cancelTradeRequest struct {
	Reason string `json:"reason"`
}

// handleCancelTrade implements POST /trades/:uuid/cancel. Either the
// buyer/seller on the trade or an admin may request cancellation; the
// reconciler performs the actual terminal transition on its next tick
// (spec §5).
func (s *Server) handleCancelTrade(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	tradeUUID := mux.Vars(r)["uuid"]

	t, err := s.store.GetTrade(r.Context(), tradeUUID)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if !session.IsAdmin && t.BuyerSteamID != session.SteamID && t.SellerSteamID != session.SteamID {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}

	var req cancelTradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if req.Reason == "" {
		req.Reason = "requested by " + session.SteamID
	}

	if err := s.engine.RequestCancel(r.Context(), tradeUUID, req.Reason); err != nil {
		writeError(w, s.log, err, session.IsAdmin, t.RetryCount)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type tradeDetail struct {
	Trade   any `json:"trade"`
	History any `json:"history"`
}

// handleGetTrade implements GET /trades/:uuid, returning current state
// plus its history trail. Admins and the trade's buyer or seller all get
// the same history rows; only error responses differ for admins.
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	tradeUUID := mux.Vars(r)["uuid"]

	t, err := s.store.GetTrade(r.Context(), tradeUUID)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	if !session.IsAdmin && t.BuyerSteamID != session.SteamID && t.SellerSteamID != session.SteamID {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}

	rows, err := s.audit.History(r.Context(), tradeUUID)
	if err != nil {
		writeError(w, s.log, err, session.IsAdmin, t.RetryCount)
		return
	}
	writeJSON(w, http.StatusOK, tradeDetail{Trade: t, History: rows})
}

type resolveDisputeRequest struct {
	Outcome trade.Status `json:"outcome"`
	Notes   string       `json:"notes"`
}

// handleResolveDispute implements POST /admin/trades/:uuid/resolve: an
// admin closes a disputed trade in the buyer's favor (refunded) or the
// seller's favor (completed). Restricted to admin sessions via
// requireAdmin.
func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	session, ok := requireAdmin(w, r, s.log)
	if !ok {
		return
	}
	tradeUUID := mux.Vars(r)["uuid"]

	var req resolveDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err, true, 0)
		return
	}

	t, err := s.store.GetTrade(r.Context(), tradeUUID)
	if err != nil {
		writeError(w, s.log, err, true, 0)
		return
	}

	updated, err := s.engine.ResolveDispute(r.Context(), tradeUUID, req.Outcome, req.Notes)
	if err != nil {
		writeError(w, s.log, err, session.IsAdmin, t.RetryCount)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
