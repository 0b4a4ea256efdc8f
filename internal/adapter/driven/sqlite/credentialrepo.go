package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo persists the GitHub token obtained by the device flow so the
// monitor survives restarts without prompting again.
//
// Values are sealed with AES-256-GCM as base64(nonce || ciphertext || tag).
// The slot name is the additional authenticated data, so a sealed token copied
// into another slot fails to open.
type CredentialRepo struct {
	db   *DB
	aead cipher.AEAD // nil when no key is configured.
	now  func() time.Time
}

// NewCredentialRepo creates a CredentialRepo. key must be 32 bytes, or nil to
// disable persistence, in which case Set and Get return
// driven.ErrEncryptionKeyNotSet and Delete still works.
func NewCredentialRepo(db *DB, key []byte) (*CredentialRepo, error) {
	r := &CredentialRepo{db: db, now: time.Now}
	if key == nil {
		return r, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	if r.aead, err = cipher.NewGCM(block); err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	return r, nil
}

// Set stores or replaces the token in the given slot.
func (r *CredentialRepo) Set(ctx context.Context, service, plaintext string) error {
	if r.aead == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	nonce := make([]byte, r.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("credential nonce: %w", err)
	}
	sealed := base64.StdEncoding.EncodeToString(r.aead.Seal(nonce, nonce, []byte(plaintext), []byte(service)))

	const query = `
		INSERT INTO credentials (service, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := r.db.Writer.ExecContext(ctx, query, service, sealed, formatTime(r.now())); err != nil {
		return fmt.Errorf("set credential %q: %w", service, err)
	}
	return nil
}

// Get returns the token in the given slot, or "" when the slot is empty.
func (r *CredentialRepo) Get(ctx context.Context, service string) (string, error) {
	if r.aead == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	var sealed string
	err := r.db.Reader.QueryRowContext(ctx, `SELECT value FROM credentials WHERE service = ?`, service).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential %q: %w", service, err)
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode credential %q: %w", service, err)
	}
	n := r.aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("open credential %q: ciphertext too short", service)
	}
	plaintext, err := r.aead.Open(nil, data[:n], data[n:], []byte(service))
	if err != nil {
		// Wrong key or a value moved between slots.
		return "", fmt.Errorf("open credential %q: %w", service, err)
	}
	return string(plaintext), nil
}

// Delete empties the given slot. Deleting an empty slot is not an error.
func (r *CredentialRepo) Delete(ctx context.Context, service string) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM credentials WHERE service = ?`, service); err != nil {
		return fmt.Errorf("delete credential %q: %w", service, err)
	}
	return nil
}
