package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTarget is wrapped by every validation failure of a TargetKey.
var ErrInvalidTarget = errors.New("invalid target")

// TargetKey identifies a watch target. Owner, Repo and Branch together are
// unique within the watch list; every store operation is keyed by this triple.
type TargetKey struct {
	Owner  string
	Repo   string
	Branch string
}

// RepoFullName returns the "owner/repo" form used by the GitHub API.
func (k TargetKey) RepoFullName() string {
	return k.Owner + "/" + k.Repo
}

// String returns "owner/repo@branch".
func (k TargetKey) String() string {
	return k.RepoFullName() + "@" + k.Branch
}

// Validate reports whether every component of the key is present.
func (k TargetKey) Validate() error {
	if strings.TrimSpace(k.Owner) == "" {
		return fmt.Errorf("%w %q: owner is required", ErrInvalidTarget, k.String())
	}
	if strings.TrimSpace(k.Repo) == "" {
		return fmt.Errorf("%w %q: repo is required", ErrInvalidTarget, k.String())
	}
	if strings.TrimSpace(k.Branch) == "" {
		return fmt.Errorf("%w %q: branch is required", ErrInvalidTarget, k.String())
	}
	return nil
}

// ParseTargetKey parses "owner/repo" plus a branch into a TargetKey.
func ParseTargetKey(repoFullName, branch string) (TargetKey, error) {
	parts := strings.SplitN(repoFullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return TargetKey{}, fmt.Errorf("%w: repo name %q is not owner/repo", ErrInvalidTarget, repoFullName)
	}

	key := TargetKey{
		Owner:  strings.TrimSpace(parts[0]),
		Repo:   strings.TrimSpace(parts[1]),
		Branch: strings.TrimSpace(branch),
	}
	if err := key.Validate(); err != nil {
		return TargetKey{}, err
	}
	return key, nil
}

// WatchTarget is a (owner, repo, branch) triple under observation together
// with the last run state that triggered a notification.
type WatchTarget struct {
	ID             int64
	Key            TargetKey
	LastKnownState *RunState // nil until the first notification for this target.
	AddedAt        time.Time
	StateUpdatedAt time.Time // Zero when LastKnownState is nil.
}
