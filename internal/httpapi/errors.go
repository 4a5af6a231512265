// Package httpapi exposes the orchestrator's inbound HTTP/WebSocket
// surface (spec.md §6): trade and listing CRUD, wallet operations, and
// the per-session notification stream.
//
// Grounded in infrastructure/service/runner.go's gorilla/mux + standard
// middleware stack and infrastructure/middleware's logging/recovery
// middleware, adapted from the teacher's marble-service router to a
// single-binary orchestrator.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/skinvault/escrow/internal/platform/apierrors"
	"github.com/skinvault/escrow/pkg/logger"
)

// errorResponse is the JSON body written for every non-2xx response.
// Detail and RetryCount are only populated for admin-scoped requests
// (spec §7: "admin endpoints surface full error detail and retry count").
type errorResponse struct {
	Error      string `json:"error"`
	Detail     string `json:"detail,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
}

// statusFor maps the §7 error taxonomy to an HTTP status code.
func statusFor(err error) int {
	switch {
	case apierrors.IsNotFound(err):
		return http.StatusNotFound
	case apierrors.IsPreconditionFailed(err):
		return http.StatusConflict
	default:
		switch apierrors.Classify(err) {
		case apierrors.KindValidation:
			return http.StatusBadRequest
		case apierrors.KindAuthorization:
			return http.StatusForbidden
		case apierrors.KindTransient:
			return http.StatusServiceUnavailable
		case apierrors.KindPersistent:
			return http.StatusUnprocessableEntity
		case apierrors.KindInternal:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
}

// writeError writes a JSON error body sized to the caller's scope: admin
// requests get the full underlying error text, user requests get the
// stable taxonomy message only (spec §7's "terminal errors produce an
// explanatory notification to the affected user; admins see full detail").
func writeError(w http.ResponseWriter, log *logger.Logger, err error, admin bool, retryCount int) {
	status := statusFor(err)
	resp := errorResponse{Error: publicMessage(err)}
	if admin {
		resp.Detail = err.Error()
		resp.RetryCount = retryCount
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).Warn("httpapi: request failed")
	}
	writeJSON(w, status, resp)
}

// publicMessage returns the message safe to show a non-admin caller.
func publicMessage(err error) string {
	switch apierrors.Classify(err) {
	case apierrors.KindValidation:
		return err.Error()
	case apierrors.KindAuthorization:
		return "not authorized"
	case apierrors.KindTransient:
		return "temporarily unavailable, please retry"
	case apierrors.KindPersistent, apierrors.KindInternal:
		return "trade could not proceed and has been held for review"
	default:
		if apierrors.IsNotFound(err) {
			return err.Error()
		}
		if apierrors.IsPreconditionFailed(err) {
			return "trade state changed, please refresh"
		}
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierrors.NewValidation("body", "malformed request body")
	}
	return nil
}
