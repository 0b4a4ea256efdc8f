package driven

import (
	"context"
	"errors"
	"time"
)

// ErrNotAuthenticated is returned when no credential is available and none
// could be obtained.
var ErrNotAuthenticated = errors.New("not authenticated")

// CredentialProvider supplies the bearer credential used for CI API calls.
type CredentialProvider interface {
	// Credential returns the current credential, resolving it from storage or
	// configured sources on first use.
	Credential(ctx context.Context) (string, error)
	// Refresh obtains a fresh credential. It may run an interactive flow.
	Refresh(ctx context.Context) (string, error)
	// Clear discards the current credential from memory and storage.
	Clear(ctx context.Context) error
}

// DevicePrompt carries the user-facing half of an OAuth device authorization.
type DevicePrompt struct {
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresAt               time.Time
}

// Authorizer runs an interactive authorization and returns an access token.
// prompt is invoked once the user code is known.
type Authorizer interface {
	Authorize(ctx context.Context, prompt func(DevicePrompt)) (string, error)
}

// TokenSource is a non-interactive credential source such as an environment
// variable or the gh CLI configuration.
type TokenSource interface {
	Name() string
	Token(ctx context.Context) (string, error)
}
