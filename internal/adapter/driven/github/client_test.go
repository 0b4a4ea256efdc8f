package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/actionwatch/internal/adapter/driven/github"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

var target = model.TargetKey{Owner: "octo", Repo: "app", Branch: "feature/login"}

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*ghAdapter.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)

	return client, server
}

// runJSON is a helper struct for building GitHub API workflow run responses.
type runJSON struct {
	ID         int64  `json:"id,omitempty"`
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	Conclusion string `json:"conclusion,omitempty"`
	HTMLURL    string `json:"html_url"`
	Event      string `json:"event"`
	HeadSHA    string `json:"head_sha"`
	UpdatedAt  string `json:"updated_at"`
}

type runsJSON struct {
	TotalCount   int       `json:"total_count"`
	WorkflowRuns []runJSON `json:"workflow_runs"`
}

func writeRuns(w http.ResponseWriter, runs ...runJSON) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runsJSON{TotalCount: len(runs), WorkflowRuns: runs})
}

func TestFetchLatestRun_MapsNewestRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/app/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "feature/login", r.URL.Query().Get("branch"))
		assert.Equal(t, "1", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		writeRuns(w, runJSON{
			ID:         987,
			Name:       "CI",
			Status:     "completed",
			Conclusion: "failure",
			HTMLURL:    "https://github.com/octo/app/actions/runs/987",
			Event:      "push",
			HeadSHA:    "abc123",
			UpdatedAt:  "2026-03-01T10:00:00Z",
		})
	})
	client, _ := newTestClient(t, mux)

	run, err := client.FetchLatestRun(context.Background(), target, "test-token")
	require.NoError(t, err)

	assert.Equal(t, model.RunSummary{
		RunID:      987,
		Name:       "CI",
		Status:     model.RunStatusCompleted,
		Conclusion: model.RunConclusionFailure,
		HTMLURL:    "https://github.com/octo/app/actions/runs/987",
		Event:      "push",
		HeadSHA:    "abc123",
		UpdatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}, run)
}

func TestFetchLatestRun_PendingRunHasNoConclusion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/app/actions/runs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"total_count":1,"workflow_runs":[{"id":5,"name":"CI","status":"in_progress","conclusion":null}]}`)
	})
	client, _ := newTestClient(t, mux)

	run, err := client.FetchLatestRun(context.Background(), target, "test-token")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusInProgress, run.Status)
	assert.Equal(t, model.RunConclusionNone, run.Conclusion)
}

func TestFetchLatestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name:    "empty run list",
			handler: func(w http.ResponseWriter, _ *http.Request) { writeRuns(w) },
			check:   func(t *testing.T, err error) { require.ErrorIs(t, err, driven.ErrNoRunsFound) },
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
			},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, driven.ErrUnauthorized) },
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			},
			check: func(t *testing.T, err error) {
				var statusErr *driven.HTTPStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
				assert.Equal(t, "http", driven.FetchErrorKind(err))
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				var statusErr *driven.HTTPStatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprint(w, `{"total_count":1,"workflow_runs":[{"id":`)
			},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, driven.ErrMalformedResponse) },
		},
		{
			name: "wrong field type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprint(w, `{"total_count":1,"workflow_runs":[{"id":"seven"}]}`)
			},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, driven.ErrMalformedResponse) },
		},
		{
			name: "run without status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeRuns(w, runJSON{ID: 1, Name: "CI"})
			},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, driven.ErrMalformedResponse) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /repos/octo/app/actions/runs", tt.handler)
			client, _ := newTestClient(t, mux)

			_, err := client.FetchLatestRun(context.Background(), target, "test-token")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFetchLatestRun_NetworkFailure(t *testing.T) {
	client, server := newTestClient(t, http.NotFoundHandler())
	server.Close()

	_, err := client.FetchLatestRun(context.Background(), target, "test-token")
	require.ErrorIs(t, err, driven.ErrNetwork)
	assert.Equal(t, "network", driven.FetchErrorKind(err))
}

func TestFetchLatestRun_Canceled(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { writeRuns(w) }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchLatestRun(ctx, target, "test-token")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewClientWithHTTPClient_RejectsRelativeURL(t *testing.T) {
	_, err := ghAdapter.NewClientWithHTTPClient(http.DefaultClient, "api.example.com")
	require.Error(t, err)
}
