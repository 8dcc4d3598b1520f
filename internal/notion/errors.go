package notion

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes. Every error returned by the client matches exactly one
// of ErrTransient or ErrPermanent through errors.Is.
var (
	// ErrTransient marks failures worth retrying: rate limits, conflicts,
	// server errors, timeouts and connection failures.
	ErrTransient = errors.New("notion: transient failure")

	// ErrPermanent marks failures that retrying cannot fix.
	ErrPermanent = errors.New("notion: permanent failure")
)

// Finer-grained sentinels, each also matching one of the classes above.
var (
	ErrNotFound          = errors.New("notion: object not found")
	ErrUnauthorized      = errors.New("notion: unauthorized")
	ErrRateLimited       = errors.New("notion: rate limited")
	ErrInvalidRequest    = errors.New("notion: invalid request")
	ErrMalformedResponse = errors.New("notion: malformed response")

	// ErrRetriesExhausted is matched by errors returned after the attempt
	// ceiling was reached. Such errors are permanent.
	ErrRetriesExhausted = errors.New("notion: retries exhausted")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("notion: %s (%d %s)", msg, e.Status, e.Code)
	}
	return fmt.Sprintf("notion: %s (%d)", msg, e.Status)
}

// Transient reports whether the status is worth retrying.
func (e *APIError) Transient() bool {
	switch e.Status {
	case http.StatusTooManyRequests,
		http.StatusConflict,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Is maps the status onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient()
	case ErrPermanent:
		return !e.Transient()
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrInvalidRequest:
		return e.Status == http.StatusBadRequest
	}
	return false
}

// ExhaustedError is returned when a transient failure persisted through
// every allowed attempt. It matches ErrPermanent and ErrRetriesExhausted,
// never ErrTransient. The last failure is kept in Last.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("notion: %s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

// Is reports ErrPermanent and ErrRetriesExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrPermanent || target == ErrRetriesExhausted
}

// classified tags err with a failure class while keeping it inspectable.
type classified struct {
	class error
	err   error
}

func (e *classified) Error() string   { return e.err.Error() }
func (e *classified) Unwrap() []error { return []error{e.class, e.err} }

func transient(err error) error { return &classified{class: ErrTransient, err: err} }
func permanent(err error) error { return &classified{class: ErrPermanent, err: err} }
