package completion

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrEmptyResponse   = errors.New("response contained no choices")
	ErrMissingAPIKey   = errors.New("no API key configured")
	ErrUnknownProvider = errors.New("unknown completion provider")
)

// CompletionFailure is returned for every failed completion. No node is added
// to the conversation when it occurs.
type CompletionFailure struct {
	Provider string
	// Reason is a short classification such as "rate limited".
	Reason string
	Err    error
}

func (f *CompletionFailure) Error() string {
	return fmt.Sprintf("completion failed (%s): %s: %v", f.Provider, f.Reason, f.Err)
}

func (f *CompletionFailure) Unwrap() error {
	return f.Err
}

// StatusCode returns the HTTP status of the failed call, or 0 when the failure
// did not come from an HTTP response.
func (f *CompletionFailure) StatusCode() int {
	var sc interface{ statusCode() int }
	if errors.As(f, &sc) {
		return sc.statusCode()
	}
	return 0
}

type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) statusCode() int { return e.code }

// withStatus records the HTTP status of err so that it can be classified.
func withStatus(code int, err error) error {
	return &statusError{code: code, err: err}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyResponse):
		return "malformed response"
	case errors.Is(err, ErrMissingAPIKey):
		return "not configured"
	}

	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code == http.StatusTooManyRequests:
			return "rate limited"
		case se.code == http.StatusUnauthorized || se.code == http.StatusForbidden:
			return "unauthorized"
		case se.code >= 500:
			return "server error"
		case se.code >= 400:
			return "rejected"
		}
	}
	return "request failed"
}

// NewFailure classifies err as a failed completion against provider. A
// *CompletionFailure already in the chain is returned as is.
func NewFailure(provider string, err error) *CompletionFailure {
	var f *CompletionFailure
	if errors.As(err, &f) {
		return f
	}
	return &CompletionFailure{Provider: provider, Reason: reasonFor(err), Err: err}
}
