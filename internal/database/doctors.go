package database

import (
	"context"
	"fmt"

	"clinicq/internal/models"
)

func (db *DB) GetDoctor(ctx context.Context, id int64) (*models.Doctor, error) {
	var d models.Doctor
	err := db.QueryRowContext(ctx, `
        SELECT id, name, speciality, qualification, clinic_name, clinic_address, start_time, end_time,
               booking_window_days, max_patients_per_day, pharmacy_available, wheelchair_accessible
        FROM doctors WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.Speciality, &d.Qualification, &d.ClinicName, &d.ClinicAddress, &d.StartTime, &d.EndTime,
		&d.BookingWindowDays, &d.MaxPatientsPerDay, &d.PharmacyAvailable, &d.WheelchairAccessible)
	if err != nil {
		return nil, notFound(err, "doctor", id)
	}
	return &d, nil
}

func (db *DB) UpsertDoctor(ctx context.Context, d *models.Doctor) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO doctors (id, name, speciality, qualification, clinic_name, clinic_address, start_time, end_time,
                             booking_window_days, max_patients_per_day, pharmacy_available, wheelchair_accessible)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            speciality = excluded.speciality,
            qualification = excluded.qualification,
            clinic_name = excluded.clinic_name,
            clinic_address = excluded.clinic_address,
            start_time = excluded.start_time,
            end_time = excluded.end_time,
            booking_window_days = excluded.booking_window_days,
            max_patients_per_day = excluded.max_patients_per_day,
            pharmacy_available = excluded.pharmacy_available,
            wheelchair_accessible = excluded.wheelchair_accessible`,
		d.ID, d.Name, d.Speciality, d.Qualification, d.ClinicName, d.ClinicAddress, d.StartTime, d.EndTime,
		d.BookingWindowDays, d.MaxPatientsPerDay, d.PharmacyAvailable, d.WheelchairAccessible,
	)
	if err != nil {
		return fmt.Errorf("failed to save doctor: %w", err)
	}
	return nil
}
