package driven

import (
	"context"
	"errors"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// ACTIONWATCH_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set ACTIONWATCH_SECRET_KEY")

// CredentialStore persists tokens across restarts, keyed by slot name.
// Implementations encrypt at rest; values cross this boundary as plaintext.
type CredentialStore interface {
	// Set stores or replaces the value in service. Returns
	// ErrEncryptionKeyNotSet when the store cannot encrypt.
	Set(ctx context.Context, service, plaintext string) error
	// Get returns ("", nil) for an empty slot and ErrEncryptionKeyNotSet when
	// the store cannot decrypt.
	Get(ctx context.Context, service string) (string, error)
	// Delete empties the slot.
	Delete(ctx context.Context, service string) error
}
