package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/pkg/logger"
)

// SessionClaims is this orchestrator's end-user session token, adapted
// from infrastructure/serviceauth/serviceauth.go's ServiceClaims: the
// same RegisteredClaims envelope, HMAC-signed instead of RSA-signed
// since sessions are minted and verified by this one process rather
// than exchanged between independently-deployed services, and carrying
// a SteamID/IsAdmin pair in place of a ServiceID.
type SessionClaims struct {
	SteamID string `json:"steam_id"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// SessionAuthenticator verifies the session token on every inbound
// request and on the WebSocket upgrade.
type SessionAuthenticator struct {
	signingKey []byte
	log        *logger.Logger
}

// NewSessionAuthenticator builds an authenticator from the configured
// session signing key (config.Config.SessionSigningKey).
func NewSessionAuthenticator(signingKey string, log *logger.Logger) *SessionAuthenticator {
	if log == nil {
		log = logger.NewDefault("httpapi-auth")
	}
	return &SessionAuthenticator{signingKey: []byte(signingKey), log: log}
}

// IssueToken mints a session token for steamID, valid for ttl. Exposed
// for the login/handoff endpoint an upstream identity provider calls
// into; this orchestrator does not itself implement Steam OpenID login.
func (a *SessionAuthenticator) IssueToken(steamID string, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		SteamID: steamID,
		IsAdmin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "escrow-orchestrator",
			Subject:   steamID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.signingKey)
}

// Verify parses and validates a raw bearer token, returning its claims.
func (a *SessionAuthenticator) Verify(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierrors.NewValidation("token", "unexpected signing method")
		}
		return a.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, apierrors.ErrUnauthorized
	}
	return claims, nil
}

type contextKey string

const sessionKey contextKey = "session"

// Middleware authenticates every request via the Authorization: Bearer
// header, or the token query parameter when that header is absent, and
// attaches SessionClaims to the request context.
func (a *SessionAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, a.log, apierrors.ErrUnauthorized, false, 0)
			return
		}
		claims, err := a.Verify(raw)
		if err != nil {
			writeError(w, a.log, err, false, 0)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// sessionFrom extracts the authenticated session from a request context
// built by Middleware.
func sessionFrom(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(sessionKey).(*SessionClaims)
	return claims, ok
}

// requireAdmin rejects the request unless the session is admin-scoped.
func requireAdmin(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*SessionClaims, bool) {
	claims, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, log, apierrors.ErrUnauthorized, false, 0)
		return nil, false
	}
	if !claims.IsAdmin {
		writeError(w, log, apierrors.ErrUnauthorized, false, 0)
		return nil, false
	}
	return claims, true
}
