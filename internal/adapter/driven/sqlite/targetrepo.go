package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TargetStore = (*TargetRepo)(nil)

// TargetRepo is the SQLite implementation of the TargetStore port interface.
// The watch list and each target's last known state live in one row, so a
// state write is a single UPDATE keyed by the identity triple.
type TargetRepo struct {
	db  *DB
	now func() time.Time
}

// NewTargetRepo creates a new TargetRepo backed by the given DB.
func NewTargetRepo(db *DB) *TargetRepo {
	return &TargetRepo{db: db, now: time.Now}
}

const targetColumns = `id, owner, repo, branch, last_run_id, last_status, last_conclusion, added_at, state_updated_at`

// ListTargets returns all targets ordered by owner, repo and branch.
func (r *TargetRepo) ListTargets(ctx context.Context) ([]model.WatchTarget, error) {
	const query = `SELECT ` + targetColumns + ` FROM watch_targets ORDER BY owner, repo, branch`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []model.WatchTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}

	return targets, nil
}

// GetState returns the last known state for key, or nil if none has been recorded.
func (r *TargetRepo) GetState(ctx context.Context, key model.TargetKey) (*model.RunState, error) {
	const query = `SELECT ` + targetColumns + ` FROM watch_targets WHERE owner = ? AND repo = ? AND branch = ?`

	t, err := scanTarget(r.db.Reader.QueryRowContext(ctx, query, key.Owner, key.Repo, key.Branch))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get state %s: %w", key, driven.ErrTargetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}

	return t.LastKnownState, nil
}

// SetState replaces the last known state for key in a single statement. It
// never inserts, so a target removed mid-cycle stays removed.
func (r *TargetRepo) SetState(ctx context.Context, key model.TargetKey, state model.RunState) error {
	const query = `
		UPDATE watch_targets
		SET last_run_id = ?, last_status = ?, last_conclusion = ?, state_updated_at = ?
		WHERE owner = ? AND repo = ? AND branch = ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		state.RunID, string(state.Status), string(state.Conclusion), formatTime(r.now()),
		key.Owner, key.Repo, key.Branch,
	)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("set state %s: %w", key, driven.ErrTargetNotFound)
	}

	return nil
}

// AddTarget inserts a new target with no state. Returns ErrTargetAlreadyExists
// if the triple is already watched.
func (r *TargetRepo) AddTarget(ctx context.Context, target model.WatchTarget) error {
	const query = `INSERT INTO watch_targets (owner, repo, branch, added_at) VALUES (?, ?, ?, ?)`

	addedAt := target.AddedAt
	if addedAt.IsZero() {
		addedAt = r.now()
	}

	key := target.Key
	_, err := r.db.Writer.ExecContext(ctx, query, key.Owner, key.Repo, key.Branch, formatTime(addedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("add target %s: %w", key, driven.ErrTargetAlreadyExists)
		}
		return fmt.Errorf("add target %s: %w", key, err)
	}

	return nil
}

// RemoveTarget deletes the target and its state. Returns ErrTargetNotFound if
// the target does not exist.
func (r *TargetRepo) RemoveTarget(ctx context.Context, key model.TargetKey) error {
	const query = `DELETE FROM watch_targets WHERE owner = ? AND repo = ? AND branch = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, key.Owner, key.Repo, key.Branch)
	if err != nil {
		return fmt.Errorf("remove target %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("remove target %s: %w", key, driven.ErrTargetNotFound)
	}

	return nil
}

func scanTarget(s scanner) (model.WatchTarget, error) {
	var (
		t              model.WatchTarget
		runID          sql.NullInt64
		status         sql.NullString
		conclusion     sql.NullString
		addedAt        string
		stateUpdatedAt sql.NullString
	)

	err := s.Scan(&t.ID, &t.Key.Owner, &t.Key.Repo, &t.Key.Branch,
		&runID, &status, &conclusion, &addedAt, &stateUpdatedAt)
	if err != nil {
		return model.WatchTarget{}, err
	}

	t.AddedAt, err = parseTime(addedAt)
	if err != nil {
		return model.WatchTarget{}, fmt.Errorf("parse added_at: %w", err)
	}

	if runID.Valid {
		t.LastKnownState = &model.RunState{
			RunID:      runID.Int64,
			Status:     model.RunStatus(status.String),
			Conclusion: model.RunConclusion(conclusion.String),
		}
	}

	if stateUpdatedAt.Valid {
		t.StateUpdatedAt, err = parseTime(stateUpdatedAt.String)
		if err != nil {
			return model.WatchTarget{}, fmt.Errorf("parse state_updated_at: %w", err)
		}
	}

	return t, nil
}
