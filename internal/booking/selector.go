package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicq/internal/domain"
	"clinicq/internal/events"
	"clinicq/internal/metrics"
	"clinicq/internal/models"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	ErrTierRequired  = errors.New("tier must be premium or free")
	ErrDateRequired  = errors.New("date is required")
	ErrTimeRequired  = errors.New("time is required for premium bookings")
	ErrInvalidDate   = errors.New("date must look like YYYY-MM-DD")
	ErrInvalidTime   = errors.New("time must look like h:mm AM/PM")
	ErrUnknownSlot   = errors.New("time is not one of the clinic's slots")
	ErrPastDate      = errors.New("date is in the past")
	ErrDateTooFar    = errors.New("date is beyond the booking window")
	ErrClinicClosed  = errors.New("clinic is closed on that date")
	ErrPatientNeeded = errors.New("patient id is required")
)

// Request is what the patient submits from the booking screen.
type Request struct {
	Tier models.Tier `json:"tier"`
	Date string      `json:"date"`
	Time string      `json:"time,omitempty"`
}

// Store persists the current booking record, replacing any previous one.
type Store interface {
	SaveBooking(ctx context.Context, record *models.BookingRecord) error
}

// AvailabilityChecker reports whether the clinic accepts bookings on date.
type AvailabilityChecker interface {
	IsOpen(ctx context.Context, date string) (bool, error)
}

type Options struct {
	Slots      []string
	WindowDays int
	Location   *time.Location
}

type Selector struct {
	store        Store
	history      domain.BookingHistory
	tokens       TokenSource
	availability AvailabilityChecker
	eventBus     domain.EventPublisher
	opts         Options
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewSelector(
	store Store,
	history domain.BookingHistory,
	tokens TokenSource,
	availability AvailabilityChecker,
	eventBus domain.EventPublisher,
	opts Options,
	logger *zerolog.Logger,
) *Selector {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Selector{
		store:        store,
		history:      history,
		tokens:       tokens,
		availability: availability,
		eventBus:     eventBus,
		opts:         opts,
		now:          time.Now,
		logger:       logger,
	}
}

// Slots lists the premium time slots patients can pick from.
func (s *Selector) Slots() []string {
	return append([]string(nil), s.opts.Slots...)
}

// Confirm validates req, assigns a token for free bookings and stores the
// record as the patient's current booking. Nothing is stored on error.
func (s *Selector) Confirm(ctx context.Context, patientID int64, req Request) (*models.BookingRecord, error) {
	record, err := s.build(ctx, patientID, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveBooking(ctx, record); err != nil {
		return nil, fmt.Errorf("save booking: %w", err)
	}

	if s.history != nil {
		if err := s.history.AppendBooking(ctx, record); err != nil {
			s.logger.Warn().Err(err).Int64("patient_id", patientID).Msg("failed to append booking history")
		}
	}

	s.publish(record)
	metrics.IncBooking(string(record.Tier))

	s.logger.Info().
		Int64("patient_id", patientID).
		Str("tier", string(record.Tier)).
		Str("date", record.Date).
		Str("time", record.ScheduledTime).
		Int("token", record.TokenNumber).
		Msg("booking confirmed")

	return record, nil
}

func (s *Selector) build(ctx context.Context, patientID int64, req Request) (*models.BookingRecord, error) {
	if patientID <= 0 {
		return nil, ErrPatientNeeded
	}
	if !req.Tier.Valid() {
		return nil, ErrTierRequired
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		return nil, ErrDateRequired
	}
	if err := s.validateDate(ctx, date); err != nil {
		return nil, err
	}

	record := &models.BookingRecord{
		PatientID:   patientID,
		Tier:        req.Tier,
		Date:        date,
		ConfirmedAt: s.now(),
	}

	switch req.Tier {
	case models.TierPremium:
		slot, err := s.normalizeSlot(req.Time)
		if err != nil {
			return nil, err
		}
		record.ScheduledTime = slot
	case models.TierFree:
		token, err := s.tokens.NextToken(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("assign token: %w", err)
		}
		record.TokenNumber = token
	}

	return record, nil
}

func (s *Selector) validateDate(ctx context.Context, date string) error {
	day, err := time.ParseInLocation(models.DateLayout, date, s.opts.Location)
	if err != nil {
		return ErrInvalidDate
	}

	now := s.now().In(s.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.opts.Location)
	if day.Before(today) {
		return ErrPastDate
	}
	if s.opts.WindowDays > 0 && !day.Before(today.AddDate(0, 0, s.opts.WindowDays)) {
		return ErrDateTooFar
	}

	if s.availability != nil {
		open, err := s.availability.IsOpen(ctx, date)
		if err != nil {
			return fmt.Errorf("check availability: %w", err)
		}
		if !open {
			return ErrClinicClosed
		}
	}
	return nil
}

// normalizeSlot checks the format and, when slots are configured, membership.
// The stored value uses the canonical slot spelling.
func (s *Selector) normalizeSlot(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrTimeRequired
	}
	hour, minute, err := models.ParseSlot(raw)
	if err != nil {
		return "", ErrInvalidTime
	}
	canonical := models.FormatSlot(time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC))

	if len(s.opts.Slots) == 0 {
		return canonical, nil
	}
	slot, ok := lo.Find(s.opts.Slots, func(slot string) bool {
		h, m, err := models.ParseSlot(slot)
		return err == nil && h == hour && m == minute
	})
	if !ok {
		return "", ErrUnknownSlot
	}
	return slot, nil
}

func (s *Selector) publish(record *models.BookingRecord) {
	if s.eventBus == nil {
		return
	}
	payload := events.PatientEventPayload{
		PatientID:   record.PatientID,
		Tier:        string(record.Tier),
		TokenNumber: record.TokenNumber,
		At:          record.ConfirmedAt,
	}
	if err := s.eventBus.PublishJSON(events.EventBookingConfirmed, payload); err != nil {
		s.logger.Warn().Err(err).Int64("patient_id", record.PatientID).Msg("failed to publish booking event")
	}
}
