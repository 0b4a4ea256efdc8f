package cli_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/actionwatch/internal/adapter/driving/cli"
	"github.com/ericfisherdev/actionwatch/internal/config"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
	"github.com/ericfisherdev/actionwatch/internal/telemetry"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// syncBuffer is a bytes.Buffer safe for the serve test, where the monitor and
// the logger write concurrently with the test's reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type stubCI struct {
	mu   sync.Mutex
	runs map[model.TargetKey]model.RunSummary
	err  error
}

func (s *stubCI) FetchLatestRun(_ context.Context, key model.TargetKey, _ string) (model.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.RunSummary{}, s.err
	}
	if run, ok := s.runs[key]; ok {
		return run, nil
	}
	return model.RunSummary{
		RunID:      7,
		Name:       "CI",
		Status:     model.RunStatusCompleted,
		Conclusion: model.RunConclusionSuccess,
	}, nil
}

type env struct {
	cfg *config.Config
	ci  *stubCI
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv(telemetry.EndpointEnv, "")
	return &env{
		cfg: &config.Config{
			PollInterval:     time.Hour,
			APIBaseURL:       "https://api.github.com/",
			FetchTimeout:     time.Second,
			ReauthTimeout:    time.Second,
			Concurrency:      2,
			FailureThreshold: 3,
			GitHubToken:      "env-token",
			DBPath:           filepath.Join(t.TempDir(), "actionwatch.db"),
			ListenAddr:       "127.0.0.1:0",
			FeedRetention:    10,
		},
		ci: &stubCI{},
	}
}

func (e *env) run(ctx context.Context, out, errOut io.Writer, args ...string) error {
	cfg := *e.cfg
	root := cli.NewRootCmd(cli.Options{
		LoadConfig: func() (*config.Config, error) { return &cfg, nil },
		CIClient:   e.ci,
	})
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

// exec runs a command to completion and returns its stdout.
func (e *env) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := e.run(context.Background(), &out, io.Discard, args...)
	return out.String(), err
}

func (e *env) mustExec(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.exec(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestTargets_Lifecycle(t *testing.T) {
	e := newEnv(t)

	assert.Contains(t, e.mustExec(t, "targets", "list"), "No targets.")
	assert.Equal(t, "Watching octo/app@main\n", e.mustExec(t, "targets", "add", "octo/app", "main"))
	e.mustExec(t, "targets", "add", "octo/lib", "release/1.x")

	list := e.mustExec(t, "targets", "ls")
	assert.Contains(t, list, "octo/app@main")
	assert.Contains(t, list, "octo/lib@release/1.x")
	assert.Contains(t, list, "no run yet")

	found := e.mustExec(t, "targets", "find", "lib")
	assert.Contains(t, found, "octo/lib@release/1.x")
	assert.NotContains(t, found, "octo/app@main")

	assert.Equal(t, "Stopped watching octo/app@main\n", e.mustExec(t, "targets", "rm", "octo/app", "main"))
	assert.NotContains(t, e.mustExec(t, "targets", "list"), "octo/app@main")
}

func TestTargets_AddErrors(t *testing.T) {
	e := newEnv(t)
	e.mustExec(t, "targets", "add", "octo/app", "main")

	_, err := e.exec(t, "targets", "add", "octo/app", "main")
	assert.ErrorIs(t, err, driven.ErrTargetAlreadyExists)

	_, err = e.exec(t, "targets", "add", "not-a-repo", "main")
	assert.ErrorIs(t, err, model.ErrInvalidTarget)

	_, err = e.exec(t, "targets", "add", "octo/app")
	assert.Error(t, err)
}

func TestTargets_RemoveUnknown(t *testing.T) {
	e := newEnv(t)

	_, err := e.exec(t, "targets", "remove", "octo/app", "main")

	assert.ErrorIs(t, err, driven.ErrTargetNotFound)
}

func TestTargets_Import(t *testing.T) {
	e := newEnv(t)
	e.mustExec(t, "targets", "add", "octo/app", "main")

	path := filepath.Join(t.TempDir(), "targets.yaml")
	yaml := "targets:\n" +
		"  - {owner: octo, repo: app, branch: main}\n" +
		"  - {owner: octo, repo: lib, branch: dev}\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	out := e.mustExec(t, "targets", "import", path)

	assert.Equal(t, "Imported 1 targets (1 already watched)\n", out)
	assert.Contains(t, e.mustExec(t, "targets", "list"), "octo/lib@dev")
}

func TestCheck_NotifiesOnceThenUnchanged(t *testing.T) {
	e := newEnv(t)
	e.mustExec(t, "targets", "add", "octo/app", "main")

	first := e.mustExec(t, "check")
	assert.Contains(t, first, "Workflow CI - success")
	assert.Contains(t, first, "notified     octo/app@main run #7")

	second := e.mustExec(t, "check")
	assert.NotContains(t, second, "Workflow CI")
	assert.Contains(t, second, "unchanged    octo/app@main run #7")

	assert.Contains(t, e.mustExec(t, "targets", "list"), "#7 success")
}

func TestCheck_ReportsFailures(t *testing.T) {
	e := newEnv(t)
	e.mustExec(t, "targets", "add", "octo/app", "main")
	e.ci.err = driven.ErrNetwork

	out, err := e.exec(t, "check")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 targets failed")
	assert.Contains(t, out, "fetch_failed")
}

func TestCheck_SingleTarget(t *testing.T) {
	e := newEnv(t)
	e.mustExec(t, "targets", "add", "octo/app", "main")
	e.mustExec(t, "targets", "add", "octo/lib", "main")

	out := e.mustExec(t, "check", "octo/lib", "main")

	assert.Contains(t, out, "octo/lib@main")
	assert.NotContains(t, out, "octo/app@main")
}

func TestCheck_Args(t *testing.T) {
	e := newEnv(t)

	_, err := e.exec(t, "check", "octo/app")
	assert.Error(t, err)

	_, err = e.exec(t, "check", "octo/app", "main")
	assert.ErrorIs(t, err, driven.ErrTargetNotFound)

	out := e.mustExec(t, "check")
	assert.Contains(t, out, "No targets.")
}

func TestAuth_Status(t *testing.T) {
	e := newEnv(t)

	out := e.mustExec(t, "auth", "status")

	assert.Contains(t, out, "Authenticated (via env)")
	assert.Contains(t, out, "Device flow: not configured")
}

func TestAuth_LoginWithoutDeviceFlow(t *testing.T) {
	e := newEnv(t)

	_, err := e.exec(t, "auth", "login")

	assert.ErrorIs(t, err, driven.ErrNotAuthenticated)
}

func TestAuth_Logout(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, "Stored credential removed.\n", e.mustExec(t, "auth", "logout"))
}

func TestServe_SeedsPollsAndShutsDown(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - {owner: octo, repo: app, branch: main}\n"), 0o600))
	e.cfg.TargetsFile = path

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out, logs syncBuffer
	done := make(chan error, 1)
	go func() { done <- e.run(ctx, &out, &logs, "serve", "--listen", "127.0.0.1:0") }()

	// The first cycle runs immediately because a target was seeded.
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Workflow CI - success")
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "actionwatch started")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
	assert.Contains(t, logs.String(), "shutdown complete")
}

func TestServe_ListenError(t *testing.T) {
	e := newEnv(t)

	err := e.run(context.Background(), io.Discard, io.Discard, "serve", "--listen", "not-an-address")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on not-an-address")
}
