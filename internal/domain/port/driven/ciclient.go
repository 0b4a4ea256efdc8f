// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// Sentinel errors returned by CIClient implementations. Adapters wrap them
// with request context; callers match with errors.Is.
var (
	// ErrNetwork indicates the request never produced an HTTP response
	// (connection failure, DNS, timeout).
	ErrNetwork = errors.New("network error")

	// ErrUnauthorized indicates the credential was rejected (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoRunsFound indicates the branch has no workflow runs.
	ErrNoRunsFound = errors.New("no workflow runs found")

	// ErrMalformedResponse indicates the response body could not be decoded
	// or lacked required fields.
	ErrMalformedResponse = errors.New("malformed response")
)

// HTTPStatusError reports a non-success HTTP status other than 401.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// FetchErrorKind classifies err into the fetch error taxonomy used in logs
// and metrics: network, http, no_runs, malformed, unauthorized, auth, canceled
// or unknown.
func FetchErrorKind(err error) string {
	var statusErr *HTTPStatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotAuthenticated):
		return "auth"
	case errors.Is(err, ErrNoRunsFound):
		return "no_runs"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.As(err, &statusErr):
		return "http"
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return "network"
	default:
		return "unknown"
	}
}

// CIClient fetches workflow run data from the CI provider.
type CIClient interface {
	// FetchLatestRun returns the most recent workflow run for the target's
	// branch, authenticating with token. Errors wrap one of the sentinels
	// above or an *HTTPStatusError.
	FetchLatestRun(ctx context.Context, target model.TargetKey, token string) (model.RunSummary, error)
}
