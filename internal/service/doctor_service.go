package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"clinicq/internal/domain"
	"clinicq/internal/models"
	"clinicq/internal/queue"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const monthLayout = "2006-01"

var ErrNoClinicDetails = errors.New("clinic details unavailable")

// DoctorState is the part of the state store the doctor view uses.
type DoctorState interface {
	SaveDoctorProfile(ctx context.Context, doctor *models.Doctor) error
	DoctorProfile(ctx context.Context, id int64) (*models.Doctor, error)
	SaveAvailability(ctx context.Context, doctorID int64, month string, days map[string]bool) error
	Availability(ctx context.Context, doctorID int64, month string) (map[string]bool, error)
	ConsumeSignal(ctx context.Context, name string, dst any) (bool, error)
}

type DoctorService struct {
	doctors  domain.DoctorRepository
	state    DoctorState
	demo     []models.Doctor
	doctorID int64
	location *time.Location
	logger   *zerolog.Logger
}

// NewDoctorService builds the doctor view. demo is the static fallback used
// when a doctor record cannot be read; doctorID is the clinic's own doctor,
// whose calendar gates bookings.
func NewDoctorService(doctors domain.DoctorRepository, state DoctorState, demo []models.Doctor, doctorID int64, location *time.Location, logger *zerolog.Logger) *DoctorService {
	if location == nil {
		location = time.Local
	}
	return &DoctorService{
		doctors:  doctors,
		state:    state,
		demo:     demo,
		doctorID: doctorID,
		location: location,
		logger:   logger,
	}
}

// ClinicDetails returns the doctor's record. On a storage miss or failure it
// falls back to the cached profile, then to demo data; fallback reports
// whether the result came from anywhere but the database.
func (s *DoctorService) ClinicDetails(ctx context.Context, id int64) (doctor *models.Doctor, fallback bool, err error) {
	doctor, err = s.doctors.GetDoctor(ctx, id)
	if err == nil {
		if cacheErr := s.state.SaveDoctorProfile(ctx, doctor); cacheErr != nil {
			s.logger.Warn().Err(cacheErr).Int64("doctor_id", id).Msg("failed to cache doctor profile")
		}
		return doctor, false, nil
	}
	s.logger.Warn().Err(err).Int64("doctor_id", id).Msg("doctor lookup failed, using fallback data")

	if cached, cacheErr := s.state.DoctorProfile(ctx, id); cacheErr == nil && cached != nil {
		return cached, true, nil
	}

	if demo, ok := lo.Find(s.demo, func(d models.Doctor) bool { return d.ID == id }); ok {
		return &demo, true, nil
	}
	if len(s.demo) > 0 {
		demo := s.demo[0]
		demo.ID = id
		return &demo, true, nil
	}
	return nil, false, fmt.Errorf("%w: %v", ErrNoClinicDetails, err)
}

func (s *DoctorService) parseMonth(month string) (time.Time, error) {
	first, err := time.ParseInLocation(monthLayout, month, s.location)
	if err != nil {
		return time.Time{}, &ValidationError{Fields: map[string]string{"month": "month must be YYYY-MM"}}
	}
	return first, nil
}

// Availability lists every day of the month; days never saved are open.
func (s *DoctorService) Availability(ctx context.Context, month string) ([]models.DayAvailability, error) {
	first, err := s.parseMonth(month)
	if err != nil {
		return nil, err
	}
	stored, err := s.state.Availability(ctx, s.doctorID, month)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	var days []models.DayAvailability
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		date := d.Format(models.DateLayout)
		open, ok := stored[date]
		days = append(days, models.DayAvailability{Date: date, IsOpen: !ok || open})
	}
	return days, nil
}

// SetAvailability merges the given days into the month's calendar and saves it.
func (s *DoctorService) SetAvailability(ctx context.Context, month string, updates []models.DayAvailability) ([]models.DayAvailability, error) {
	first, err := s.parseMonth(month)
	if err != nil {
		return nil, err
	}

	errs := fieldErrors{}
	for _, u := range updates {
		d, err := time.ParseInLocation(models.DateLayout, u.Date, s.location)
		if err != nil || d.Year() != first.Year() || d.Month() != first.Month() {
			errs.add("days", fmt.Sprintf("%q is not a date in %s", u.Date, month))
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	current, err := s.Availability(ctx, month)
	if err != nil {
		return nil, err
	}
	calendar := lo.Associate(current, func(d models.DayAvailability) (string, bool) { return d.Date, d.IsOpen })
	for _, u := range updates {
		calendar[u.Date] = u.IsOpen
	}
	if err := s.state.SaveAvailability(ctx, s.doctorID, month, calendar); err != nil {
		return nil, fmt.Errorf("save availability: %w", err)
	}

	days := lo.MapToSlice(calendar, func(date string, open bool) models.DayAvailability {
		return models.DayAvailability{Date: date, IsOpen: open}
	})
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// IsOpen reports whether the clinic takes bookings on date (YYYY-MM-DD).
func (s *DoctorService) IsOpen(ctx context.Context, date string) (bool, error) {
	if len(date) < len(monthLayout) {
		return false, fmt.Errorf("invalid date %q", date)
	}
	stored, err := s.state.Availability(ctx, s.doctorID, date[:len(monthLayout)])
	if err != nil {
		return false, err
	}
	open, ok := stored[date]
	return !ok || open, nil
}

// Alerts returns the pending emergency signal, clearing it. Nil means none.
func (s *DoctorService) Alerts(ctx context.Context) (*queue.EmergencySignal, error) {
	var signal queue.EmergencySignal
	ok, err := s.state.ConsumeSignal(ctx, queue.SignalEmergency, &signal)
	if err != nil {
		return nil, fmt.Errorf("read emergency signal: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &signal, nil
}
