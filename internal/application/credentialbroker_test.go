package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/actionwatch/internal/application"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

func TestCredentialBroker_ResolvesStoreBeforeSources(t *testing.T) {
	store := newFakeCredentialStore()
	store.values["github_token"] = "stored"

	b := application.NewCredentialBroker(
		application.WithCredentialStore(store),
		application.WithTokenSources(staticSource{name: "env", token: "from-env"}),
		application.WithBrokerLogger(quietLogger()),
	)

	token, err := b.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", token)
	assert.Equal(t, "store", b.Status(context.Background()).Source)
}

func TestCredentialBroker_FallsThroughFailingSources(t *testing.T) {
	store := newFakeCredentialStore()
	store.getErr = driven.ErrEncryptionKeyNotSet

	b := application.NewCredentialBroker(
		application.WithCredentialStore(store),
		application.WithTokenSources(
			staticSource{name: "env"},
			staticSource{name: "gh", err: errors.New("gh not installed")},
			staticSource{name: "file", token: "from-file"},
		),
		application.WithBrokerLogger(quietLogger()),
	)

	token, err := b.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)
}

func TestCredentialBroker_NoSourceIsNotAuthenticated(t *testing.T) {
	b := application.NewCredentialBroker(application.WithBrokerLogger(quietLogger()))

	_, err := b.Credential(context.Background())
	require.ErrorIs(t, err, driven.ErrNotAuthenticated)

	status := b.Status(context.Background())
	assert.False(t, status.Authenticated)
	assert.Nil(t, status.Pending)
}

func TestCredentialBroker_AuthenticatePersistsToken(t *testing.T) {
	store := newFakeCredentialStore()
	prompted := make(chan driven.DevicePrompt, 1)
	auth := &fakeAuthorizer{
		token:  "device-token",
		prompt: driven.DevicePrompt{UserCode: "ABCD-1234", VerificationURI: "https://github.com/login/device", ExpiresAt: time.Now().Add(time.Minute)},
	}

	b := application.NewCredentialBroker(
		application.WithCredentialStore(store),
		application.WithAuthorizer(auth, func(p driven.DevicePrompt) { prompted <- p }),
		application.WithBrokerLogger(quietLogger()),
	)

	token, err := b.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "device-token", token)
	assert.Equal(t, "ABCD-1234", (<-prompted).UserCode)
	assert.Equal(t, "device-token", store.values["github_token"])

	status := b.Status(context.Background())
	assert.True(t, status.Authenticated)
	assert.Equal(t, "oauth", status.Source)
	assert.Nil(t, status.Pending, "pending prompt cleared once the flow ends")
}

func TestCredentialBroker_AuthenticateWithoutKeyKeepsTokenInMemory(t *testing.T) {
	store := newFakeCredentialStore()
	store.setErr = driven.ErrEncryptionKeyNotSet

	b := application.NewCredentialBroker(
		application.WithCredentialStore(store),
		application.WithAuthorizer(&fakeAuthorizer{token: "tok"}, nil),
		application.WithBrokerLogger(quietLogger()),
	)

	_, err := b.Authenticate(context.Background())
	require.NoError(t, err)

	token, err := b.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestCredentialBroker_AuthenticateFailure(t *testing.T) {
	auth := &fakeAuthorizer{err: errors.New("access_denied")}
	b := application.NewCredentialBroker(
		application.WithAuthorizer(auth, nil),
		application.WithBrokerLogger(quietLogger()),
	)

	_, err := b.Authenticate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")

	_, err = b.Credential(context.Background())
	require.ErrorIs(t, err, driven.ErrNotAuthenticated)
}

func TestCredentialBroker_AuthenticateRequiresAuthorizer(t *testing.T) {
	b := application.NewCredentialBroker(application.WithBrokerLogger(quietLogger()))

	assert.False(t, b.Interactive())
	_, err := b.Authenticate(context.Background())
	require.ErrorIs(t, err, driven.ErrNotAuthenticated)
}

func TestCredentialBroker_RefreshWithoutAuthorizerRereadsSources(t *testing.T) {
	b := application.NewCredentialBroker(
		application.WithTokenSources(staticSource{name: "env", token: "env-token"}),
		application.WithBrokerLogger(quietLogger()),
	)

	token, err := b.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
}

func TestCredentialBroker_RefreshRunsAuthorizer(t *testing.T) {
	auth := &fakeAuthorizer{token: "new"}
	b := application.NewCredentialBroker(
		application.WithTokenSources(staticSource{name: "env", token: "old"}),
		application.WithAuthorizer(auth, nil),
		application.WithBrokerLogger(quietLogger()),
	)

	assert.True(t, b.Interactive())
	token, err := b.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", token)
	assert.Equal(t, 1, auth.calls)
}

func TestCredentialBroker_ClearDeletesStoredCredential(t *testing.T) {
	store := newFakeCredentialStore()
	store.values["github_token"] = "stored"

	b := application.NewCredentialBroker(
		application.WithCredentialStore(store),
		application.WithBrokerLogger(quietLogger()),
	)
	_, err := b.Credential(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Clear(context.Background()))
	assert.NotContains(t, store.values, "github_token")

	_, err = b.Credential(context.Background())
	require.ErrorIs(t, err, driven.ErrNotAuthenticated)
}

// gatedAuthorizer publishes its prompt and blocks until released.
type gatedAuthorizer struct {
	release chan struct{}
}

func (a *gatedAuthorizer) Authorize(ctx context.Context, prompt func(driven.DevicePrompt)) (string, error) {
	prompt(driven.DevicePrompt{UserCode: "WXYZ-0001", VerificationURI: "https://github.com/login/device"})
	select {
	case <-a.release:
		return "bg-token", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestCredentialBroker_StartAuthenticationRunsOnceInBackground(t *testing.T) {
	auth := &gatedAuthorizer{release: make(chan struct{})}
	b := application.NewCredentialBroker(
		application.WithAuthorizer(auth, nil),
		application.WithBrokerLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.StartAuthentication(ctx, time.Minute))
	// The flow survives cancellation of the request that started it.
	cancel()

	require.ErrorIs(t, b.StartAuthentication(context.Background(), time.Minute), application.ErrAuthInProgress)

	require.Eventually(t, func() bool {
		return b.Status(context.Background()).Pending != nil
	}, time.Second, 5*time.Millisecond)
	status := b.Status(context.Background())
	assert.True(t, status.InProgress)
	assert.Equal(t, "WXYZ-0001", status.Pending.UserCode)

	close(auth.release)
	b.Wait()

	status = b.Status(context.Background())
	assert.True(t, status.Authenticated)
	assert.False(t, status.InProgress)
	assert.Nil(t, status.Pending)
	assert.Equal(t, "oauth", status.Source)
}

func TestCredentialBroker_StartAuthenticationRequiresAuthorizer(t *testing.T) {
	b := application.NewCredentialBroker(application.WithBrokerLogger(quietLogger()))

	err := b.StartAuthentication(context.Background(), time.Minute)
	require.ErrorIs(t, err, driven.ErrNotAuthenticated)
}

func TestCredentialBroker_ShutdownCancelsBackgroundAuthentication(t *testing.T) {
	auth := &gatedAuthorizer{release: make(chan struct{})}
	b := application.NewCredentialBroker(
		application.WithAuthorizer(auth, nil),
		application.WithBrokerLogger(quietLogger()),
	)
	require.NoError(t, b.StartAuthentication(context.Background(), time.Hour))
	require.Eventually(t, func() bool {
		return b.Status(context.Background()).Pending != nil
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))

	status := b.Status(context.Background())
	assert.False(t, status.Authenticated)
	assert.False(t, status.InProgress)
	assert.Nil(t, status.Pending)
}

func TestCredentialBroker_ShutdownWithoutBackgroundAuthentication(t *testing.T) {
	b := application.NewCredentialBroker(application.WithBrokerLogger(quietLogger()))

	require.NoError(t, b.Shutdown(context.Background()))
}
