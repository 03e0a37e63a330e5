package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicq/internal/models"
)

type queryRower interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureLedger(ctx context.Context, q queryRower, patientID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO finance_ledger (patient_id, updated_at) VALUES (?, ?) ON CONFLICT(patient_id) DO NOTHING`,
		patientID, time.Now().UTC())
	return err
}

func loadLedger(ctx context.Context, q queryRower, patientID int64) (*models.Ledger, error) {
	var l models.Ledger
	err := q.QueryRowContext(ctx,
		`SELECT patient_id, total_fee, credit_balance, credit_expiry, updated_at FROM finance_ledger WHERE patient_id = ?`,
		patientID,
	).Scan(&l.PatientID, &l.TotalFee, &l.CreditBalance, &l.CreditExpiry, &l.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "ledger", patientID)
	}
	return &l, nil
}

// GetLedger returns the patient's ledger, opening one with defaults if needed.
func (db *DB) GetLedger(ctx context.Context, patientID int64) (*models.Ledger, error) {
	if err := ensureLedger(ctx, db, patientID); err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return loadLedger(ctx, db, patientID)
}

// AdjustCredit adds amount (which may be negative) to the credit balance,
// flooring at zero. A nil expiry keeps the current one.
func (db *DB) AdjustCredit(ctx context.Context, patientID int64, amount int64, expiry *time.Time) (*models.Ledger, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureLedger(ctx, tx, patientID); err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
        UPDATE finance_ledger
        SET credit_balance = MAX(0, credit_balance + ?),
            credit_expiry = COALESCE(?, credit_expiry),
            updated_at = ?
        WHERE patient_id = ?`,
		amount, utcPtr(expiry), time.Now().UTC(), patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust credit: %w", err)
	}

	ledger, err := loadLedger(ctx, tx, patientID)
	if err != nil {
		return nil, err
	}
	return ledger, tx.Commit()
}

// ApplyCharge records charge and updates the ledger in one transaction. Late
// fees add to the total fee; every other kind is deducted from credit,
// floored at zero, and moves the credit expiry when one is given. A charge
// whose TaskID was already applied leaves the ledger untouched and reports
// applied as false.
func (db *DB) ApplyCharge(ctx context.Context, charge *models.Charge, expiry *time.Time) (ledger *models.Ledger, applied bool, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if charge.TaskID != 0 {
		var existing int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM charges WHERE task_id = ?`, charge.TaskID).Scan(&existing)
		switch {
		case err == nil:
			charge.ID = existing
			ledger, err := loadLedger(ctx, tx, charge.PatientID)
			return ledger, false, err
		case !errors.Is(err, sql.ErrNoRows):
			return nil, false, fmt.Errorf("failed to check charge: %w", err)
		}
	}

	if err := ensureLedger(ctx, tx, charge.PatientID); err != nil {
		return nil, false, fmt.Errorf("failed to open ledger: %w", err)
	}

	now := time.Now().UTC()
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = now
	}

	if charge.Kind == models.ChargeLateFee {
		_, err = tx.ExecContext(ctx,
			`UPDATE finance_ledger SET total_fee = total_fee + ?, updated_at = ? WHERE patient_id = ?`,
			charge.Amount, now, charge.PatientID)
	} else {
		_, err = tx.ExecContext(ctx, `
            UPDATE finance_ledger
            SET credit_balance = MAX(0, credit_balance - ?),
                credit_expiry = COALESCE(?, credit_expiry),
                updated_at = ?
            WHERE patient_id = ?`,
			charge.Amount, utcPtr(expiry), now, charge.PatientID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to update ledger: %w", err)
	}

	var taskID sql.NullInt64
	if charge.TaskID != 0 {
		taskID = sql.NullInt64{Int64: charge.TaskID, Valid: true}
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO charges (task_id, patient_id, kind, amount, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, charge.PatientID, charge.Kind, charge.Amount, charge.Reason, charge.CreatedAt.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("failed to record charge: %w", err)
	}
	if charge.ID, err = result.LastInsertId(); err != nil {
		return nil, false, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if ledger, err = loadLedger(ctx, tx, charge.PatientID); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit charge: %w", err)
	}
	return ledger, true, nil
}

// ChargesBetween lists charges created in [start, end).
func (db *DB) ChargesBetween(ctx context.Context, start, end time.Time) ([]*models.Charge, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, task_id, patient_id, kind, amount, reason, created_at
        FROM charges WHERE created_at >= ? AND created_at < ? ORDER BY created_at`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list charges: %w", err)
	}
	defer rows.Close()

	var charges []*models.Charge
	for rows.Next() {
		var (
			c      models.Charge
			taskID sql.NullInt64
			reason sql.NullString
		)
		if err := rows.Scan(&c.ID, &taskID, &c.PatientID, &c.Kind, &c.Amount, &reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan charge: %w", err)
		}
		c.TaskID = taskID.Int64
		c.Reason = reason.String
		charges = append(charges, &c)
	}
	return charges, rows.Err()
}

// ListPendingCredits returns positive balances that have not expired at now.
func (db *DB) ListPendingCredits(ctx context.Context, now time.Time) ([]*models.PendingCredit, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT l.patient_id, COALESCE(p.name, ''), l.credit_balance, l.credit_expiry
        FROM finance_ledger l LEFT JOIN patients p ON p.id = l.patient_id
        WHERE l.credit_balance > 0 AND l.credit_expiry IS NOT NULL AND l.credit_expiry > ?
        ORDER BY l.credit_expiry`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending credits: %w", err)
	}
	defer rows.Close()

	var credits []*models.PendingCredit
	for rows.Next() {
		var c models.PendingCredit
		if err := rows.Scan(&c.PatientID, &c.PatientName, &c.Amount, &c.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending credit: %w", err)
		}
		c.DaysRemaining = daysUntil(now, c.ExpiresAt)
		credits = append(credits, &c)
	}
	return credits, rows.Err()
}

func daysUntil(now, t time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
