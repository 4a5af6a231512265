package httpapi

import (
	"context"
	"net/http"

	"github.com/skinvault/escrow/domain/money"
	"github.com/skinvault/escrow/internal/platform/apierrors"
)

type walletView struct {
	SteamID   string `json:"steam_id"`
	Balance   string `json:"balance"`
	Reserved  string `json:"reserved"`
	Available string `json:"available"`
}

// handleGetWallet implements GET /wallet: the caller's own balance plus a
// recent transaction tail.
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	u, err := s.store.GetUser(r.Context(), session.SteamID)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	txs, err := s.store.ListTransactionsByUser(r.Context(), session.SteamID, 50)
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet": walletView{
			SteamID:   u.SteamID,
			Balance:   u.Balance.String(),
			Reserved:  u.Reserved.String(),
			Available: u.Available().String(),
		},
		"transactions": txs,
	})
}

type walletAmountRequest struct {
	Amount float64 `json:"amount"`
}

// handleWalletDeposit implements POST /wallet/deposit. A real deployment
// would credit the balance only after an external payment provider's
// webhook confirms settlement; this endpoint performs the credit
// directly since that provider integration is outside spec.md's scope.
func (s *Server) handleWalletDeposit(w http.ResponseWriter, r *http.Request) {
	s.adjustWallet(w, r, s.wallet.Deposit)
}

// handleWalletWithdraw implements POST /wallet/withdraw.
func (s *Server) handleWalletWithdraw(w http.ResponseWriter, r *http.Request) {
	s.adjustWallet(w, r, s.wallet.Withdraw)
}

func (s *Server) adjustWallet(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, steamID string, amount money.Decimal) error) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}
	var req walletAmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}

	err := s.store.WithTx(r.Context(), func(txCtx context.Context) error {
		return op(txCtx, session.SteamID, money.FromFloat(req.Amount))
	})
	if err != nil {
		writeError(w, s.log, err, false, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
