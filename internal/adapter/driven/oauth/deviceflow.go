// Package oauth obtains GitHub tokens: interactively through the OAuth device
// authorization grant, or non-interactively from the environment and the gh CLI.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// DefaultBaseURL is the GitHub web host that serves the device flow endpoints.
const DefaultBaseURL = "https://github.com"

// Compile-time interface satisfaction check.
var _ driven.Authorizer = (*DeviceFlow)(nil)

// DeviceFlow implements driven.Authorizer with the OAuth 2.0 device
// authorization grant (RFC 8628) against GitHub.
type DeviceFlow struct {
	cfg        oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a DeviceFlow.
type Option func(*DeviceFlow)

// WithHTTPClient sets the client used for the device and token endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(f *DeviceFlow) { f.httpClient = c }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *DeviceFlow) { f.logger = logger }
}

// NewDeviceFlow creates a device flow for the OAuth app clientID. baseURL is
// the GitHub web root ("https://github.com" or a GitHub Enterprise host).
func NewDeviceFlow(clientID, baseURL string, scopes []string, opts ...Option) (*DeviceFlow, error) {
	if clientID == "" {
		return nil, errors.New("oauth client id is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	f := &DeviceFlow{
		cfg: oauth2.Config{
			ClientID: clientID,
			Scopes:   scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:       baseURL + "/login/oauth/authorize",
				TokenURL:      baseURL + "/login/oauth/access_token",
				DeviceAuthURL: baseURL + "/login/device/code",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Authorize requests a device code, hands the user code to prompt and polls
// the token endpoint until the user approves, denies, the code expires or ctx
// is done.
func (f *DeviceFlow) Authorize(ctx context.Context, prompt func(driven.DevicePrompt)) (string, error) {
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}

	da, err := f.cfg.DeviceAuth(ctx)
	if err != nil {
		return "", fmt.Errorf("request device code: %w", err)
	}

	f.logger.Info("device authorization started",
		"verification_uri", da.VerificationURI,
		"expires_at", da.Expiry,
	)

	if prompt != nil {
		prompt(driven.DevicePrompt{
			UserCode:                da.UserCode,
			VerificationURI:         da.VerificationURI,
			VerificationURIComplete: da.VerificationURIComplete,
			ExpiresAt:               da.Expiry,
		})
	}

	token, err := f.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.ErrorCode != "" {
			return "", fmt.Errorf("device authorization failed (%s): %w", rErr.ErrorCode, driven.ErrNotAuthenticated)
		}
		return "", fmt.Errorf("poll for device token: %w", err)
	}

	if token.AccessToken == "" {
		return "", fmt.Errorf("device authorization returned no token: %w", driven.ErrNotAuthenticated)
	}

	f.logger.Info("device authorization approved", "scope", token.Extra("scope"))
	return token.AccessToken, nil
}
