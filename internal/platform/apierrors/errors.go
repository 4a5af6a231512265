// Package apierrors implements the error taxonomy of spec.md §7: a small
// set of sentinel kinds plus a classifier the trade engine uses to decide
// whether to retry, surface, or escalate a failure.
//
// Adapted from infrastructure/database/errors.go's sentinel-error style.
package apierrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is against these, or Classify for the
// coarser §7 taxonomy.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrValidation           = errors.New("validation error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrPreconditionFailed   = errors.New("precondition failed")
	ErrTransientExternal    = errors.New("transient external error")
	ErrPersistentExternal   = errors.New("persistent external error")
	ErrInternalInconsistent = errors.New("internal inconsistency")
)

// Kind is the coarse classification from spec.md §7.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindTransient     Kind = "transient"
	KindPersistent    Kind = "persistent"
	KindInternal      Kind = "internal"
	KindUnknown       Kind = "unknown"
)

// Classify maps an error to the §7 taxonomy. Errors not wrapped with one of
// this package's sentinels classify as KindUnknown, which callers should
// treat conservatively (surface, do not retry).
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrTransientExternal):
		return KindTransient
	case errors.Is(err, ErrPersistentExternal):
		return KindPersistent
	case errors.Is(err, ErrInternalInconsistent):
		return KindInternal
	default:
		return KindUnknown
	}
}

// Retryable reports whether the §7 taxonomy says this error should be
// retried with backoff rather than surfaced or escalated immediately.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}

// NotFoundError names the missing entity for user-facing messages.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Entity)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound builds a NotFoundError.
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError carries a field-level validation message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation builds a ValidationError.
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransientError wraps an underlying transient fault (network reset, 429,
// 5xx, KV timeout) so callers can retry with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransientExternal }

// NewTransient builds a TransientError.
func NewTransient(op string, cause error) error {
	return &TransientError{Op: op, Err: cause}
}

// PersistentError wraps an underlying fault that will never succeed on
// retry (401/403, invalid trade URL, item missing from inventory).
type PersistentError struct {
	Op  string
	Err error
}

func (e *PersistentError) Error() string {
	return fmt.Sprintf("%s: persistent: %v", e.Op, e.Err)
}

func (e *PersistentError) Unwrap() error { return ErrPersistentExternal }

// NewPersistent builds a PersistentError.
func NewPersistent(op string, cause error) error {
	return &PersistentError{Op: op, Err: cause}
}

// InternalError signals a ledger-invariant violation or missing referenced
// row: the transition aborts, the trade is marked disputed, and no
// automatic refund is attempted.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal inconsistency: %s", e.Reason)
}

func (e *InternalError) Unwrap() error { return ErrInternalInconsistent }

// NewInternal builds an InternalError.
func NewInternal(reason string) error {
	return &InternalError{Reason: reason}
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPreconditionFailed reports whether err is (or wraps) ErrPreconditionFailed.
func IsPreconditionFailed(err error) bool { return errors.Is(err, ErrPreconditionFailed) }

// PreconditionError is returned when a row lock is won by a concurrent
// writer first: the caller's expected state no longer holds (spec §8
// scenario S4/S6 — the loser observes this and performs no side effect).
type PreconditionError struct {
	Op string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition no longer holds", e.Op)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionFailed }

// NewPrecondition builds a PreconditionError.
func NewPrecondition(op string) error {
	return &PreconditionError{Op: op}
}
