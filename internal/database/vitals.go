package database

import (
	"context"
	"fmt"
	"time"

	"clinicq/internal/models"
)

func (db *DB) CreateVitalsLog(ctx context.Context, log *models.VitalsLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO vitals_logs (user_name, heart_rate, status, created_at) VALUES (?, ?, ?, ?)`,
		log.UserName, log.HeartRate, log.Status, log.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create vitals log: %w", err)
	}
	if log.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// ListVitalsLogs returns the newest limit entries.
func (db *DB) ListVitalsLogs(ctx context.Context, limit int) ([]*models.VitalsLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_name, heart_rate, status, created_at FROM vitals_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vitals logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.VitalsLog
	for rows.Next() {
		var l models.VitalsLog
		if err := rows.Scan(&l.ID, &l.UserName, &l.HeartRate, &l.Status, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vitals log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
