package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cli/go-gh/v2/pkg/auth"

	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.TokenSource = StaticSource{}
	_ driven.TokenSource = (*GHCLISource)(nil)
)

// StaticSource serves a token fixed at startup, typically from
// ACTIONWATCH_GITHUB_TOKEN.
type StaticSource struct {
	Label string
	Value string
}

func (s StaticSource) Name() string { return s.Label }

func (s StaticSource) Token(_ context.Context) (string, error) {
	if s.Value == "" {
		return "", fmt.Errorf("%s: %w", s.Label, driven.ErrNotAuthenticated)
	}
	return s.Value, nil
}

// GHCLISource reads the token the gh CLI holds for a host: GH_TOKEN,
// GITHUB_TOKEN, the gh config file or the system keyring.
type GHCLISource struct {
	host   string
	lookup func(host string) (string, string)
}

// NewGHCLISource returns a source for the GitHub host serving apiBaseURL.
func NewGHCLISource(apiBaseURL string) *GHCLISource {
	return &GHCLISource{host: HostFromAPIURL(apiBaseURL), lookup: auth.TokenForHost}
}

func (s *GHCLISource) Name() string { return "gh" }

func (s *GHCLISource) Token(_ context.Context) (string, error) {
	token, _ := s.lookup(s.host)
	if token == "" {
		return "", fmt.Errorf("gh has no token for %s: %w", s.host, driven.ErrNotAuthenticated)
	}
	return token, nil
}

// HostFromAPIURL maps a REST API root to the GitHub host gh keys its
// credentials by: api.github.com becomes github.com, and an Enterprise
// "https://ghe.example.com/api/v3/" becomes ghe.example.com.
func HostFromAPIURL(apiBaseURL string) string {
	u, err := url.Parse(apiBaseURL)
	if err != nil || u.Hostname() == "" {
		return "github.com"
	}
	host := u.Hostname()
	if host == "api.github.com" {
		return "github.com"
	}
	return strings.TrimPrefix(host, "api.")
}
