package domain

import (
	"context"
	"time"

	"clinicq/internal/models"
)

// StateRepository is the raw key/value backend behind the application state
// store. A missing key reads as (nil, nil).
type StateRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// GetDel reads and removes key in one step.
	GetDel(ctx context.Context, key string) ([]byte, error)
	Incr(ctx context.Context, key string) (int64, error)
}

type AccountRepository interface {
	GetOrCreateAccount(ctx context.Context, phone string) (*models.Account, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	CreatePatient(ctx context.Context, patient *models.Patient) error
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
	ListPatients(ctx context.Context, accountID int64) ([]*models.Patient, error)
	UpsertMedicalProfile(ctx context.Context, profile *models.MedicalProfile) error
	GetMedicalProfile(ctx context.Context, patientID int64) (*models.MedicalProfile, error)
}

type BookingHistory interface {
	AppendBooking(ctx context.Context, record *models.BookingRecord) error
	ListBookings(ctx context.Context, patientID int64) ([]*models.BookingRecord, error)
	CountBookingsOn(ctx context.Context, date string) (int, error)
}

type LedgerRepository interface {
	GetLedger(ctx context.Context, patientID int64) (*models.Ledger, error)
	AdjustCredit(ctx context.Context, patientID int64, amount int64, expiry *time.Time) (*models.Ledger, error)
	ApplyCharge(ctx context.Context, charge *models.Charge, expiry *time.Time) (ledger *models.Ledger, applied bool, err error)
	ChargesBetween(ctx context.Context, start, end time.Time) ([]*models.Charge, error)
	ListPendingCredits(ctx context.Context, now time.Time) ([]*models.PendingCredit, error)
}

type FeeQueue interface {
	CreateFeeTask(ctx context.Context, task *models.FeeTask) error
	GetFeeTask(ctx context.Context, id int64) (*models.FeeTask, error)
	GetPendingFeeTasks(ctx context.Context, limit int) ([]*models.FeeTask, error)
	UpdateFeeTaskStatus(ctx context.Context, id int64, status, lastError string, nextRetryAt *time.Time) error
}

type DoctorRepository interface {
	GetDoctor(ctx context.Context, id int64) (*models.Doctor, error)
	UpsertDoctor(ctx context.Context, doctor *models.Doctor) error
}

type VitalsRepository interface {
	CreateVitalsLog(ctx context.Context, log *models.VitalsLog) error
	ListVitalsLogs(ctx context.Context, limit int) ([]*models.VitalsLog, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// FeeEnqueuer hands a charge to the background fee worker.
type FeeEnqueuer interface {
	EnqueueFee(ctx context.Context, task *models.FeeTask) error
}
