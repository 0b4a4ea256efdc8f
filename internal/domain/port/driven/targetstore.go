package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// Sentinel errors returned by TargetStore implementations.
var (
	// ErrTargetNotFound indicates no target matches the identity triple.
	ErrTargetNotFound = errors.New("watch target not found")

	// ErrTargetAlreadyExists indicates a target with the same triple is already watched.
	ErrTargetAlreadyExists = errors.New("watch target already exists")
)

// TargetStore defines the driven port for the watch list and per-target state.
// Every operation is keyed by the (owner, repo, branch) triple, never by position,
// so list edits and state writes cannot clobber each other.
type TargetStore interface {
	// ListTargets returns all targets with their last known state, ordered by key.
	ListTargets(ctx context.Context) ([]model.WatchTarget, error)
	// GetState returns the last known state for key, or nil if none has been recorded.
	// Returns ErrTargetNotFound if the target is not watched.
	GetState(ctx context.Context, key model.TargetKey) (*model.RunState, error)
	// SetState atomically replaces the last known state for key. It never
	// creates a target; returns ErrTargetNotFound if the target was removed.
	SetState(ctx context.Context, key model.TargetKey, state model.RunState) error
	// AddTarget returns ErrTargetAlreadyExists for a duplicate triple.
	AddTarget(ctx context.Context, target model.WatchTarget) error
	// RemoveTarget returns ErrTargetNotFound if the target does not exist.
	RemoveTarget(ctx context.Context, key model.TargetKey) error
}
