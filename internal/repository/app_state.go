package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"clinicq/internal/domain"
	"clinicq/internal/models"
)

// AppState is the typed application state store. Every key has its own
// accessor; writes overwrite whatever was stored before.
type AppState struct {
	repo   domain.StateRepository
	prefix string
}

func NewAppState(repo domain.StateRepository, prefix string) *AppState {
	return &AppState{repo: repo, prefix: prefix}
}

func (s *AppState) key(parts ...any) string {
	k := s.prefix
	for _, p := range parts {
		k += fmt.Sprintf(":%v", p)
	}
	return k
}

func (s *AppState) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.repo.Set(ctx, key, data)
}

// getJSON decodes key into dst and reports whether it was present.
func (s *AppState) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.repo.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *AppState) SaveBooking(ctx context.Context, record *models.BookingRecord) error {
	return s.setJSON(ctx, s.key("booking", record.PatientID), record)
}

// Booking returns the patient's current booking or nil.
func (s *AppState) Booking(ctx context.Context, patientID int64) (*models.BookingRecord, error) {
	var record models.BookingRecord
	ok, err := s.getJSON(ctx, s.key("booking", patientID), &record)
	if !ok {
		return nil, err
	}
	return &record, nil
}

func (s *AppState) SelectPatient(ctx context.Context, accountID, patientID int64) error {
	return s.setJSON(ctx, s.key("selected_patient", accountID), patientID)
}

func (s *AppState) SelectedPatient(ctx context.Context, accountID int64) (int64, bool, error) {
	var patientID int64
	ok, err := s.getJSON(ctx, s.key("selected_patient", accountID), &patientID)
	return patientID, ok, err
}

func (s *AppState) SaveAccount(ctx context.Context, account *models.Account) error {
	return s.setJSON(ctx, s.key("account", account.ID), account)
}

func (s *AppState) Account(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	ok, err := s.getJSON(ctx, s.key("account", id), &account)
	if !ok {
		return nil, err
	}
	return &account, nil
}

func (s *AppState) SaveDoctorProfile(ctx context.Context, doctor *models.Doctor) error {
	return s.setJSON(ctx, s.key("doctor", doctor.ID), doctor)
}

func (s *AppState) DoctorProfile(ctx context.Context, id int64) (*models.Doctor, error) {
	var doctor models.Doctor
	ok, err := s.getJSON(ctx, s.key("doctor", id), &doctor)
	if !ok {
		return nil, err
	}
	return &doctor, nil
}

// SaveAvailability stores the date -> open map for one month ("2006-01").
func (s *AppState) SaveAvailability(ctx context.Context, doctorID int64, month string, days map[string]bool) error {
	return s.setJSON(ctx, s.key("availability", doctorID, month), days)
}

func (s *AppState) Availability(ctx context.Context, doctorID int64, month string) (map[string]bool, error) {
	days := make(map[string]bool)
	ok, err := s.getJSON(ctx, s.key("availability", doctorID, month), &days)
	if !ok {
		return nil, err
	}
	return days, nil
}

// RaiseSignal stores a one-shot signal. A second raise before it is consumed
// replaces the payload.
func (s *AppState) RaiseSignal(ctx context.Context, name string, payload any) error {
	return s.setJSON(ctx, s.key("signal", name), payload)
}

// ConsumeSignal reads and clears a signal. It reports false when none is set.
func (s *AppState) ConsumeSignal(ctx context.Context, name string, dst any) (bool, error) {
	key := s.key("signal", name)
	data, err := s.repo.GetDel(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if dst == nil {
		return true, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// NextToken increments the per-day token counter.
func (s *AppState) NextToken(ctx context.Context, date string) (int64, error) {
	return s.repo.Incr(ctx, s.key("token", date))
}
