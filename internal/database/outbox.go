package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// EnqueueNotification persists a notification decision in the same
// transaction as the state change that caused it.
func (q *queries) EnqueueNotification(ctx context.Context, kind, userID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO notification_outbox (kind, user_id, payload, status, retry_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		kind, userID, string(raw), models.OutboxPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func (db *DB) GetPendingNotifications(ctx context.Context, limit int) ([]models.NotificationTask, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, user_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
		FROM notification_outbox
		WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id ASC LIMIT ?`,
		models.OutboxPending, models.OutboxRetry, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending notifications: %w", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		var t models.NotificationTask
		err := rows.Scan(&t.ID, &t.Kind, &t.UserID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) CompleteNotification(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notification_outbox SET status = ?, last_error = NULL, processed_at = ? WHERE id = ?`,
		models.OutboxCompleted, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete notification: %w", err)
	}
	return nil
}

// FailNotification schedules a retry at nextRetryAt, or marks the task failed when it is nil.
func (db *DB) FailNotification(ctx context.Context, id int64, errMsg string, nextRetryAt *time.Time) error {
	var err error
	if nextRetryAt != nil {
		_, err = db.ExecContext(ctx, `
			UPDATE notification_outbox
			SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1
			WHERE id = ?`, models.OutboxRetry, errMsg, nextRetryAt.UTC(), id)
	} else {
		_, err = db.ExecContext(ctx, `
			UPDATE notification_outbox
			SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ?, retry_count = retry_count + 1
			WHERE id = ?`, models.OutboxFailed, errMsg, time.Now().UTC(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return nil
}

// ListFailedNotifications returns tasks that exhausted their retries, newest first.
func (db *DB) ListFailedNotifications(ctx context.Context) ([]models.NotificationTask, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, user_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
		FROM notification_outbox WHERE status = ? ORDER BY id DESC`, models.OutboxFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed notifications: %w", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		var t models.NotificationTask
		if err := rows.Scan(&t.ID, &t.Kind, &t.UserID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
