package database

import (
	"context"
	"fmt"
	"time"

	"clinicq/internal/models"
)

// GetOrCreateAccount returns the account for phone, creating it on first login.
func (db *DB) GetOrCreateAccount(ctx context.Context, phone string) (*models.Account, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO accounts (phone_number, created_at) VALUES (?, ?) ON CONFLICT(phone_number) DO NOTHING`,
		phone, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	var account models.Account
	err = db.QueryRowContext(ctx,
		`SELECT id, phone_number, created_at FROM accounts WHERE phone_number = ?`, phone,
	).Scan(&account.ID, &account.PhoneNumber, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

func (db *DB) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	err := db.QueryRowContext(ctx,
		`SELECT id, phone_number, created_at FROM accounts WHERE id = ?`, id,
	).Scan(&account.ID, &account.PhoneNumber, &account.CreatedAt)
	if err != nil {
		return nil, notFound(err, "account", id)
	}
	return &account, nil
}

func (db *DB) CreatePatient(ctx context.Context, patient *models.Patient) error {
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO patients (account_id, name, age, identity_id, identity_type, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		patient.AccountID, patient.Name, patient.Age, patient.IdentityID, patient.IdentityType, patient.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	patient.ID = id
	return nil
}

func (db *DB) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	var p models.Patient
	err := db.QueryRowContext(ctx,
		`SELECT id, account_id, name, age, identity_id, identity_type, created_at FROM patients WHERE id = ?`, id,
	).Scan(&p.ID, &p.AccountID, &p.Name, &p.Age, &p.IdentityID, &p.IdentityType, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "patient", id)
	}
	return &p, nil
}

func (db *DB) ListPatients(ctx context.Context, accountID int64) ([]*models.Patient, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, account_id, name, age, identity_id, identity_type, created_at
         FROM patients WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var patients []*models.Patient
	for rows.Next() {
		var p models.Patient
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.Age, &p.IdentityID, &p.IdentityType, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}

func (db *DB) UpsertMedicalProfile(ctx context.Context, profile *models.MedicalProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx, `
        INSERT INTO medical_profiles (patient_id, blood_group, allergies, conditions, medications, emergency_contact, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(patient_id) DO UPDATE SET
            blood_group = excluded.blood_group,
            allergies = excluded.allergies,
            conditions = excluded.conditions,
            medications = excluded.medications,
            emergency_contact = excluded.emergency_contact,
            updated_at = excluded.updated_at`,
		profile.PatientID, profile.BloodGroup, profile.Allergies, profile.Conditions,
		profile.Medications, profile.EmergencyContact, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save medical profile: %w", err)
	}
	return nil
}

func (db *DB) GetMedicalProfile(ctx context.Context, patientID int64) (*models.MedicalProfile, error) {
	var p models.MedicalProfile
	err := db.QueryRowContext(ctx, `
        SELECT patient_id, blood_group, allergies, conditions, medications, emergency_contact, updated_at
        FROM medical_profiles WHERE patient_id = ?`, patientID,
	).Scan(&p.PatientID, &p.BloodGroup, &p.Allergies, &p.Conditions, &p.Medications, &p.EmergencyContact, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "medical profile", patientID)
	}
	return &p, nil
}
