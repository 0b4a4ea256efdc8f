package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
	"github.com/ericfisherdev/actionwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NotificationStore = (*NotificationRepo)(nil)

// NotificationRepo is the SQLite implementation of the NotificationStore port.
type NotificationRepo struct {
	db *DB
}

// NewNotificationRepo creates a new NotificationRepo backed by the given DB.
func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Record inserts n. A ULID is assigned when n.ID is empty and the current time
// when n.CreatedAt is zero.
func (r *NotificationRepo) Record(ctx context.Context, n model.Notification) error {
	const query = `
		INSERT INTO notifications
			(id, owner, repo, branch, run_id, run_name, status, conclusion, url, title, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.ID == "" {
		n.ID = ulid.MustNew(ulid.Timestamp(n.CreatedAt), ulid.DefaultEntropy()).String()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		n.ID, n.Target.Owner, n.Target.Repo, n.Target.Branch,
		n.RunID, n.RunName, string(n.Status), string(n.Conclusion), n.URL,
		n.Title, n.Body, formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record notification for %s run %d: %w", n.Target, n.RunID, err)
	}

	return nil
}

// ListRecent returns up to limit notifications, newest first.
func (r *NotificationRepo) ListRecent(ctx context.Context, limit int) ([]model.Notification, error) {
	const query = `
		SELECT id, owner, repo, branch, run_id, run_name, status, conclusion, url, title, body, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	if limit <= 0 {
		return []model.Notification{}, nil
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return out, nil
}

// Prune deletes all but the newest keep notifications.
func (r *NotificationRepo) Prune(ctx context.Context, keep int) (int64, error) {
	const query = `
		DELETE FROM notifications
		WHERE id NOT IN (
			SELECT id FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?
		)`

	if keep < 0 {
		keep = 0
	}

	result, err := r.db.Writer.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return removed, nil
}

func scanNotification(s scanner) (model.Notification, error) {
	var (
		n          model.Notification
		status     string
		conclusion string
		createdAt  string
	)

	err := s.Scan(&n.ID, &n.Target.Owner, &n.Target.Repo, &n.Target.Branch,
		&n.RunID, &n.RunName, &status, &conclusion, &n.URL, &n.Title, &n.Body, &createdAt)
	if err != nil {
		return model.Notification{}, err
	}

	n.Status = model.RunStatus(status)
	n.Conclusion = model.RunConclusion(conclusion)

	n.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("parse created_at: %w", err)
	}

	return n, nil
}
