package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// TargetService manages the watch list. It never touches run state: a newly
// added target has no last known state, so the next cycle reports its first
// observation.
type TargetService struct {
	store  driven.TargetStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTargetService creates a TargetService backed by store.
func NewTargetService(store driven.TargetStore, logger *slog.Logger) *TargetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TargetService{store: store, logger: logger, now: time.Now}
}

// Add validates and appends a target. repoFullName must be "owner/repo".
// Returns driven.ErrTargetAlreadyExists when the triple is already watched.
func (s *TargetService) Add(ctx context.Context, repoFullName, branch string) (model.WatchTarget, error) {
	key, err := model.ParseTargetKey(repoFullName, branch)
	if err != nil {
		return model.WatchTarget{}, err
	}

	target := model.WatchTarget{Key: key, AddedAt: s.now().UTC()}
	if err := s.store.AddTarget(ctx, target); err != nil {
		return model.WatchTarget{}, fmt.Errorf("add target %s: %w", key, err)
	}

	s.logger.Info("watch target added", "target", key.String())
	return target, nil
}

// Remove deletes the target with the given identity and its state.
func (s *TargetService) Remove(ctx context.Context, key model.TargetKey) error {
	if err := s.store.RemoveTarget(ctx, key); err != nil {
		return fmt.Errorf("remove target %s: %w", key, err)
	}
	s.logger.Info("watch target removed", "target", key.String())
	return nil
}

// List returns every watched target with its last known state.
func (s *TargetService) List(ctx context.Context) ([]model.WatchTarget, error) {
	targets, err := s.store.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return targets, nil
}

// Find returns the targets whose "owner/repo@branch" form fuzzy-matches
// query, best match first.
func (s *TargetService) Find(ctx context.Context, query string) ([]model.WatchTarget, error) {
	targets, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return targets, nil
	}

	matches := fuzzy.FindFrom(query, targetSource(targets))
	out := make([]model.WatchTarget, 0, len(matches))
	for _, m := range matches {
		out = append(out, targets[m.Index])
	}
	return out, nil
}

// ImportResult counts what Import did.
type ImportResult struct {
	Added   int
	Skipped int // Already watched.
}

// Import adds each key that is not already watched. Invalid keys abort the
// import before anything is written.
func (s *TargetService) Import(ctx context.Context, keys []model.TargetKey) (ImportResult, error) {
	for _, k := range keys {
		if err := k.Validate(); err != nil {
			return ImportResult{}, err
		}
	}

	var res ImportResult
	for _, k := range keys {
		err := s.store.AddTarget(ctx, model.WatchTarget{Key: k, AddedAt: s.now().UTC()})
		switch {
		case err == nil:
			res.Added++
		case errors.Is(err, driven.ErrTargetAlreadyExists):
			res.Skipped++
		default:
			return res, fmt.Errorf("import target %s: %w", k, err)
		}
	}

	s.logger.Info("watch targets imported", "added", res.Added, "skipped", res.Skipped)
	return res, nil
}

// targetSource adapts a target slice to fuzzy.Source.
type targetSource []model.WatchTarget

func (t targetSource) String(i int) string { return t[i].Key.String() }

func (t targetSource) Len() int { return len(t) }
