package config

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every env var that Load() reads.
var allConfigKeys = []string{
	"ACTIONWATCH_POLL_INTERVAL",
	"POLL_INTERVAL_MS",
	"ACTIONWATCH_API_BASE_URL",
	"CI_PROVIDER_BASE_URL",
	"ACTIONWATCH_FETCH_TIMEOUT",
	"ACTIONWATCH_REAUTH_TIMEOUT",
	"ACTIONWATCH_CONCURRENCY",
	"ACTIONWATCH_FAILURE_THRESHOLD",
	"ACTIONWATCH_FEED_RETENTION",
	"ACTIONWATCH_GITHUB_TOKEN",
	"ACTIONWATCH_OAUTH_CLIENT_ID",
	"ACTIONWATCH_OAUTH_BASE_URL",
	"ACTIONWATCH_OAUTH_SCOPES",
	"ACTIONWATCH_SECRET_KEY",
	"ACTIONWATCH_DB_PATH",
	"ACTIONWATCH_LISTEN_ADDR",
	"ACTIONWATCH_TARGETS_FILE",
	"ACTIONWATCH_WEBHOOK_URL",
	"ACTIONWATCH_SQS_QUEUE_URL",
	"ACTIONWATCH_LOG_LEVEL",
	"ACTIONWATCH_LOG_FORMAT",
}

// isolateConfigEnv saves and unsets all config env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, "https://api.github.com/", cfg.APIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ReauthTimeout)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 500, cfg.FeedRetention)
	assert.Equal(t, "https://github.com", cfg.OAuthBaseURL)
	assert.Equal(t, []string{"repo"}, cfg.OAuthScopes)
	assert.Nil(t, cfg.SecretKey)
	assert.Equal(t, "actionwatch.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.HasOAuth())
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	t.Setenv("ACTIONWATCH_POLL_INTERVAL", "30s")
	t.Setenv("ACTIONWATCH_API_BASE_URL", "https://ghe.example.com/api/v3/")
	t.Setenv("ACTIONWATCH_CONCURRENCY", "8")
	t.Setenv("ACTIONWATCH_GITHUB_TOKEN", "ghp_test123")
	t.Setenv("ACTIONWATCH_OAUTH_CLIENT_ID", "Iv1.abc")
	t.Setenv("ACTIONWATCH_OAUTH_SCOPES", "repo, workflow")
	t.Setenv("ACTIONWATCH_SECRET_KEY", key)
	t.Setenv("ACTIONWATCH_DB_PATH", "/tmp/test.db")
	t.Setenv("ACTIONWATCH_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("ACTIONWATCH_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("ACTIONWATCH_LOG_LEVEL", "debug")
	t.Setenv("ACTIONWATCH_LOG_FORMAT", "JSON")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.APIBaseURL)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "ghp_test123", cfg.GitHubToken)
	assert.True(t, cfg.HasOAuth())
	assert.Equal(t, []string{"repo", "workflow"}, cfg.OAuthScopes)
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "https://hooks.example.com/x", cfg.WebhookURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_PollIntervalMillisecondsWins(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("ACTIONWATCH_POLL_INTERVAL", "5m")
	t.Setenv("POLL_INTERVAL_MS", "1500")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
}

func TestLoad_PollIntervalMillisecondsUpperBound(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("POLL_INTERVAL_MS", "9223372036854")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, time.Duration(9223372036854)*time.Millisecond, cfg.PollInterval)
	assert.Positive(t, cfg.PollInterval)
}

func TestLoad_ProviderBaseURLAlias(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("CI_PROVIDER_BASE_URL", "http://127.0.0.1:9999/")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/", cfg.APIBaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, msg string
	}{
		{"ACTIONWATCH_POLL_INTERVAL", "not-a-duration", "invalid duration"},
		{"ACTIONWATCH_POLL_INTERVAL", "-1m", "must be positive"},
		{"POLL_INTERVAL_MS", "0", "positive integer"},
		{"POLL_INTERVAL_MS", "9223372036855", "positive integer"},
		{"POLL_INTERVAL_MS", "9223372036854775807", "positive integer"},
		{"ACTIONWATCH_CONCURRENCY", "many", "invalid integer"},
		{"ACTIONWATCH_FAILURE_THRESHOLD", "0", "must be positive"},
		{"ACTIONWATCH_SECRET_KEY", "!!!", "not valid base64"},
		{"ACTIONWATCH_SECRET_KEY", base64.StdEncoding.EncodeToString([]byte("short")), "32 bytes"},
		{"ACTIONWATCH_LOG_LEVEL", "loud", "invalid level"},
		{"ACTIONWATCH_LOG_FORMAT", "xml", "text or json"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: slog.LevelWarn, LogFormat: "json"}

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
