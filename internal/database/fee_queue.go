package database

import (
	"context"
	"fmt"
	"time"

	"clinicq/internal/models"
)

func (db *DB) CreateFeeTask(ctx context.Context, task *models.FeeTask) error {
	if task.Status == "" {
		task.Status = models.FeeTaskPending
	}
	query := `INSERT INTO fee_queue (kind, patient_id, amount, reason, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		task.Kind,
		task.PatientID,
		task.Amount,
		task.Reason,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fee task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

const feeTaskColumns = `id, kind, patient_id, amount, reason, status, retry_count, last_error, created_at, processed_at, next_retry_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeeTask(row rowScanner) (*models.FeeTask, error) {
	var t models.FeeTask
	err := row.Scan(
		&t.ID, &t.Kind, &t.PatientID, &t.Amount, &t.Reason, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) GetFeeTask(ctx context.Context, id int64) (*models.FeeTask, error) {
	row := db.QueryRowContext(ctx, `SELECT `+feeTaskColumns+` FROM fee_queue WHERE id = ?`, id)
	task, err := scanFeeTask(row)
	if err != nil {
		return nil, notFound(err, "fee task", id)
	}
	return task, nil
}

func (db *DB) GetPendingFeeTasks(ctx context.Context, limit int) ([]*models.FeeTask, error) {
	query := `SELECT ` + feeTaskColumns + `
              FROM fee_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending fee tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.FeeTask
	for rows.Next() {
		t, err := scanFeeTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) UpdateFeeTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()
	next := utcPtr(nextRetryAt)

	switch status {
	case models.FeeTaskRetry:
		query = `UPDATE fee_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, next, id}
	case models.FeeTaskCompleted, models.FeeTaskFailed:
		query = `UPDATE fee_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, next, now, id}
	default:
		query = `UPDATE fee_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, next, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update fee task status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedFeeTasks(ctx context.Context) ([]*models.FeeTask, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+feeTaskColumns+` FROM fee_queue WHERE status = 'failed' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed fee tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.FeeTask
	for rows.Next() {
		t, err := scanFeeTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
