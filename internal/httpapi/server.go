package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skinvault/escrow/internal/audit"
	"github.com/skinvault/escrow/internal/notifier"
	"github.com/skinvault/escrow/internal/platform/config"
	"github.com/skinvault/escrow/internal/storage"
	"github.com/skinvault/escrow/internal/tradeengine"
	"github.com/skinvault/escrow/internal/wallet"
	"github.com/skinvault/escrow/pkg/logger"
)

// Server wires the HTTP/WebSocket surface to the trade engine and its
// collaborators. It implements nothing beyond the *mux.Router it builds;
// cmd/orchestrator hands that router to an *http.Server.
type Server struct {
	store    storage.Store
	engine   *tradeengine.Engine
	wallet   *wallet.Ledger
	audit    *audit.Log
	notifier *notifier.Notifier
	hub      *notifier.Hub
	auth     *SessionAuthenticator
	cfg      config.Config
	log      *logger.Logger
}

// New builds a Server and its router.
func New(store storage.Store, engine *tradeengine.Engine, wal *wallet.Ledger, auditLog *audit.Log, notify *notifier.Notifier, hub *notifier.Hub, auth *SessionAuthenticator, cfg config.Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{store: store, engine: engine, wallet: wal, audit: auditLog, notifier: notify, hub: hub, auth: auth, cfg: cfg, log: log}
}

// Router builds the gorilla/mux router for this server, matching
// infrastructure/service/runner.go's router + standard-middleware-stack
// pattern.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware(s.log))
	r.Use(loggingMiddleware(s.log))
	r.Use(metricsMiddleware())

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	r.HandleFunc("/listings", s.handleListListings).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.auth.Middleware)

	authed.HandleFunc("/trades", s.handleCreateTrade).Methods(http.MethodPost)
	authed.HandleFunc("/trades/{uuid}", s.handleGetTrade).Methods(http.MethodGet)
	authed.HandleFunc("/trades/{uuid}/pay", s.handlePayTrade).Methods(http.MethodPost)
	authed.HandleFunc("/trades/{uuid}/cancel", s.handleCancelTrade).Methods(http.MethodPost)
	authed.HandleFunc("/admin/trades/{uuid}/resolve", s.handleResolveDispute).Methods(http.MethodPost)

	authed.HandleFunc("/listings", s.handleCreateListing).Methods(http.MethodPost)
	authed.HandleFunc("/listings/{id}", s.handlePatchListing).Methods(http.MethodPatch)
	authed.HandleFunc("/listings/{id}", s.handleDeleteListing).Methods(http.MethodDelete)

	authed.HandleFunc("/wallet", s.handleGetWallet).Methods(http.MethodGet)
	authed.HandleFunc("/wallet/deposit", s.handleWalletDeposit).Methods(http.MethodPost)
	authed.HandleFunc("/wallet/withdraw", s.handleWalletWithdraw).Methods(http.MethodPost)

	authed.HandleFunc("/ws", s.handleWebSocket)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
