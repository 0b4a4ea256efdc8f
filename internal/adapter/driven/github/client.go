// Package github implements the CIClient port using the go-github Actions API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// DefaultBaseURL is the public GitHub REST API root.
const DefaultBaseURL = "https://api.github.com/"

// Compile-time interface satisfaction check.
var _ driven.CIClient = (*Client)(nil)

// Client implements the driven.CIClient port. It holds no credential; each
// call authenticates with the token it is given.
type Client struct {
	gh *gh.Client
}

// NewClient creates a GitHub Actions client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching, always revalidated)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client, per-call token auth)
func NewClient(baseURL string) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(revalidate{next: cacheTransport})

	return NewClientWithHTTPClient(rateLimitClient, baseURL)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// Tests use it to inject an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing base URL %q: scheme and host are required", baseURL)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchLatestRun returns the most recent workflow run on the target's branch.
// Errors wrap driven.ErrUnauthorized, driven.ErrNoRunsFound,
// driven.ErrMalformedResponse, driven.ErrNetwork or a *driven.HTTPStatusError.
func (c *Client) FetchLatestRun(ctx context.Context, target model.TargetKey, token string) (model.RunSummary, error) {
	opts := &gh.ListWorkflowRunsOptions{
		Branch:      target.Branch,
		ListOptions: gh.ListOptions{PerPage: 1},
	}

	runs, resp, err := c.gh.WithAuthToken(token).Actions.ListRepositoryWorkflowRuns(ctx, target.Owner, target.Repo, opts)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("listing workflow runs for %s: %w", target, classify(err, resp))
	}

	count := 0
	if runs != nil {
		count = len(runs.WorkflowRuns)
	}
	logRateLimit(resp, target.String(), count)

	if count == 0 {
		return model.RunSummary{}, fmt.Errorf("listing workflow runs for %s: %w", target, driven.ErrNoRunsFound)
	}

	run := runs.WorkflowRuns[0]
	if run == nil || run.GetID() == 0 || run.GetStatus() == "" {
		return model.RunSummary{}, fmt.Errorf("listing workflow runs for %s: run without id or status: %w", target, driven.ErrMalformedResponse)
	}

	return mapWorkflowRun(run), nil
}

// mapWorkflowRun converts a go-github WorkflowRun to a domain RunSummary.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapWorkflowRun(r *gh.WorkflowRun) model.RunSummary {
	return model.RunSummary{
		RunID:      r.GetID(),
		Name:       r.GetName(),
		Status:     model.RunStatus(r.GetStatus()),
		Conclusion: model.RunConclusion(r.GetConclusion()),
		HTMLURL:    r.GetHTMLURL(),
		Event:      r.GetEvent(),
		HeadSHA:    r.GetHeadSHA(),
		UpdatedAt:  r.GetUpdatedAt().Time,
	}
}

// classify maps a go-github error onto the driven fetch error taxonomy.
func classify(err error, resp *gh.Response) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", driven.ErrNetwork, err)
	}

	status := 0
	var (
		errResp   *gh.ErrorResponse
		rateErr   *gh.RateLimitError
		abuseErr  *gh.AbuseRateLimitError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		urlErr    *url.Error
		netErr    net.Error
	)
	switch {
	case errors.As(err, &errResp) && errResp.Response != nil:
		status = errResp.Response.StatusCode
	case errors.As(err, &rateErr) && rateErr.Response != nil:
		status = rateErr.Response.StatusCode
	case errors.As(err, &abuseErr) && abuseErr.Response != nil:
		status = abuseErr.Response.StatusCode
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", driven.ErrMalformedResponse, err)
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", driven.ErrNetwork, err)
	case resp != nil && resp.Response != nil:
		status = resp.StatusCode
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", driven.ErrUnauthorized, err)
	case status != 0 && (status < 200 || status > 299):
		return fmt.Errorf("%w: %w", &driven.HTTPStatusError{StatusCode: status}, err)
	default:
		return fmt.Errorf("%w: %w", driven.ErrNetwork, err)
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, target string, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"target", target,
		"count", count,
		"status", resp.StatusCode,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// revalidate forces httpcache to treat every cached entry as stale, so each
// poll reaches GitHub with If-None-Match instead of being answered from a
// max-age cached copy. A 304 does not count against the rate limit.
type revalidate struct {
	next http.RoundTripper
}

func (r revalidate) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Cache-Control", "max-age=0")
	return r.next.RoundTrip(req)
}
