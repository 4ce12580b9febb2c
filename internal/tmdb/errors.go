package tmdb

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies TMDB client failures into the retry taxonomy.
type ErrorKind int

const (
	// KindInvalidRequest covers bad URLs/parameters and 4xx other than
	// 401/403/429. Never retried.
	KindInvalidRequest ErrorKind = iota
	// KindUnauthorized covers a missing or rejected API key. Never retried;
	// requires user action.
	KindUnauthorized
	// KindRateLimited is HTTP 429. Retryable.
	KindRateLimited
	// KindServer is HTTP 5xx. Retryable.
	KindServer
	// KindTransport is a connectivity failure. Retryable.
	KindTransport
	// KindDecode is a response shape mismatch. Never retried; the response
	// will not change on a retry.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server_error"
	case KindTransport:
		return "transport_error"
	case KindDecode:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Error is a classified TMDB client error.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("tmdb: %s (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("tmdb: %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a retry could plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServer, KindTransport:
		return true
	}
	return false
}

// RequiresUserAction reports whether the failure needs a credential fix
// rather than a retry.
func (e *Error) RequiresUserAction() bool {
	return e.Kind == KindUnauthorized
}

// IsRetryable reports whether err is a retryable TMDB error. Cancellation
// and unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// classifyStatus maps a non-2xx HTTP status to an Error.
func classifyStatus(status int, body string) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Status: status, Message: body}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, Message: body}
	case status >= 500:
		return &Error{Kind: KindServer, Status: status, Message: body}
	default:
		return &Error{Kind: KindInvalidRequest, Status: status, Message: body}
	}
}
