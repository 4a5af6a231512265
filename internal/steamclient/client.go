// Package steamclient wraps the outbound Steam trade-offer API: login,
// session restore, offer send/accept/cancel/poll, and inventory fetch
// (C5). Every call is routed through the global rate limiter and wrapped
// in retry-with-backoff, matching spec.md §4.2's exact predicate.
//
// Adapted from infrastructure/httputil/client.go's HTTP client
// configuration helper and infrastructure/resilience for the retry/CB
// wiring every outbound call in the corpus already uses.
package steamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/internal/platform/ratelimit"
	"github.com/skinvault/escrow/internal/platform/resilience"
	"github.com/skinvault/escrow/pkg/logger"
)

// OfferState is the authoritative state of a Steam trade offer as
// reported by pollOffer.
type OfferState string

const (
	OfferActive    OfferState = "active"
	OfferAccepted  OfferState = "accepted"
	OfferDeclined  OfferState = "declined"
	OfferCancelled OfferState = "cancelled"
	OfferExpired   OfferState = "expired"
	OfferInvalid   OfferState = "invalid"
)

// Session is an authenticated Steam login session.
type Session struct {
	SteamID string
	Cookies string
}

// Secrets are the credentials needed to log a bot in.
type Secrets struct {
	AccountName string
	Password    string
	TOTPCode    string
	IdentitySecret string
}

// Item identifies a single inventory asset for an offer.
type Item struct {
	AssetID   string
	AppID     int
	ContextID int
}

// Client is the typed Steam operation set every bot worker uses.
// Implementations: HTTPClient (production) and FakeClient (tests).
type Client interface {
	Login(ctx context.Context, secrets Secrets) (Session, error)
	Restore(ctx context.Context, session Session) (bool, error)
	SendOffer(ctx context.Context, session Session, partnerSteamID, tradeToken string, theirItems, myItems []Item, message string) (offerID string, err error)
	AcceptOffer(ctx context.Context, session Session, offerID string) error
	CancelOffer(ctx context.Context, session Session, offerID string) error
	PollOffer(ctx context.Context, session Session, offerID string) (OfferState, error)
	FetchInventory(ctx context.Context, owner string, appID, contextID int) ([]Item, error)
}

// HTTPClient is the production Client, talking to the real Steam API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *ratelimit.Limiter
	breaker    *resilience.CircuitBreaker
	retryCfg   resilience.RetryConfig
	log        *logger.Logger
}

// Config configures an HTTPClient.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a production Steam client. connectTimeout/overallTimeout
// match spec §5: 10s connect, 30s overall.
func New(cfg Config, limiter *ratelimit.Limiter, log *logger.Logger) *HTTPClient {
	overall := cfg.Timeout
	if overall == 0 {
		overall = 30 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: overall,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		limiter:  limiter,
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultCBConfig()),
		retryCfg: resilience.SteamRetryConfig(),
		log:      log,
	}
}

// shouldRetry implements spec §4.2: retry ECONNRESET/429/502/503/504,
// never 401/403/422.
func shouldRetry(err error) bool {
	return apierrors.Classify(err) == apierrors.KindTransient
}

// do executes a single HTTP round trip under the rate limiter, circuit
// breaker, and retry, in that order: the limiter paces calls, the breaker
// isolates a persistently failing bot, retry absorbs one-off faults.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return apierrors.NewTransient("ratelimit.Acquire", err)
	}

	return c.breaker.Execute(func() error {
		return resilience.Retry(ctx, c.retryCfg, shouldRetry, func() error {
			return c.roundTrip(ctx, method, path, body, out)
		})
	})
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apierrors.NewValidation("body", err.Error())
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apierrors.NewValidation("request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierrors.NewTransient(path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == 422:
		return apierrors.NewPersistent(path, fmt.Errorf("steam returned %d", resp.StatusCode))
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return apierrors.NewTransient(path, fmt.Errorf("steam returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return apierrors.NewValidation(path, fmt.Sprintf("steam returned %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
