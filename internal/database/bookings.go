package database

import (
	"context"
	"database/sql"
	"fmt"

	"clinicq/internal/models"
)

// AppendBooking records a confirmation in the booking history.
func (db *DB) AppendBooking(ctx context.Context, record *models.BookingRecord) error {
	var scheduled sql.NullString
	if record.ScheduledTime != "" {
		scheduled = sql.NullString{String: record.ScheduledTime, Valid: true}
	}
	var token sql.NullInt64
	if record.TokenNumber != 0 {
		token = sql.NullInt64{Int64: int64(record.TokenNumber), Valid: true}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO bookings (patient_id, tier, date, scheduled_time, token_number, confirmed_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		record.PatientID, record.Tier, record.Date, scheduled, token, record.ConfirmedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append booking: %w", err)
	}
	return nil
}

// ListBookings returns a patient's confirmations, newest first.
func (db *DB) ListBookings(ctx context.Context, patientID int64) ([]*models.BookingRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT patient_id, tier, date, scheduled_time, token_number, confirmed_at
         FROM bookings WHERE patient_id = ? ORDER BY confirmed_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var records []*models.BookingRecord
	for rows.Next() {
		var (
			r         models.BookingRecord
			scheduled sql.NullString
			token     sql.NullInt64
		)
		if err := rows.Scan(&r.PatientID, &r.Tier, &r.Date, &scheduled, &token, &r.ConfirmedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		r.ScheduledTime = scheduled.String
		r.TokenNumber = int(token.Int64)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// CountBookingsOn counts distinct patients booked for date.
func (db *DB) CountBookingsOn(ctx context.Context, date string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT patient_id) FROM bookings WHERE date = ?`, date,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}
