package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed failure with a stable machine code and the HTTP status
// the transport layer should map it to. Services compare errors by code,
// never by message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a sentinel. Package-level sentinels below cover the common
// cases; call sites clone them instead of minting new codes.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap keeps cause in the chain while stamping it with a code and status.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Clone copies a sentinel so the call site can override the message
// without mutating shared state.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is matches by code, so clones and wrapped causes still compare equal to
// their sentinel.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}

// FromError coerces any error into an *Error; untyped errors surface as
// internal failures.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Request and auth failures.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Lifecycle contract violations. All map to 409 because the caller acted
// on a stale view of the row, except ErrTransient which invites a retry.
var (
	ErrInvalidTransition     = New("INVALID_TRANSITION", http.StatusConflict, "invalid assignment transition")
	ErrInvalidHandoffState   = New("INVALID_HANDOFF_STATE", http.StatusConflict, "assignment cannot be handed off in its current state")
	ErrConflictingAssignment = New("CONFLICTING_ASSIGNMENT", http.StatusConflict, "work item already has an active assignment")
	ErrTransient             = New("TRANSIENT", http.StatusServiceUnavailable, "temporary failure, retry the operation")
)
