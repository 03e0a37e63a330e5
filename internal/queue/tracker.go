package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicq/internal/events"
	"clinicq/internal/models"

	"github.com/rs/zerolog"
)

var ErrNoBooking = errors.New("patient has no booking")

// BookingReader loads the patient's current booking; nil means none.
type BookingReader interface {
	Booking(ctx context.Context, patientID int64) (*models.BookingRecord, error)
}

// PatientLookup resolves display details for queue entries.
type PatientLookup interface {
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
}

// Tracker builds the patient's live tracker view.
type Tracker struct {
	bookings BookingReader
	queue    *LiveQueue
	params   Params
	now      func() time.Time
}

func NewTracker(bookings BookingReader, queue *LiveQueue, params Params) *Tracker {
	return &Tracker{bookings: bookings, queue: queue, params: params, now: time.Now}
}

// View returns the reserved time for premium bookings and a fresh estimate
// for free ones.
func (t *Tracker) View(ctx context.Context, patientID int64) (*models.TrackerView, error) {
	record, err := t.bookings.Booking(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if record == nil {
		return nil, ErrNoBooking
	}

	serving := t.queue.CurrentServing()
	view := &models.TrackerView{Booking: *record, CurrentServingToken: serving}

	switch record.Tier {
	case models.TierPremium:
		view.ReservedTime = record.ScheduledTime
	case models.TierFree:
		snapshot := Estimate(record.TokenNumber, serving, t.now(), t.params)
		view.Queue = &snapshot
	}
	return view, nil
}

// EnrollBookings subscribes the queue to confirmed free-tier bookings so
// their tokens show up on the mediator's list. Call the returned func to stop.
func EnrollBookings(ctx context.Context, bus *events.EventBus, q *LiveQueue, patients PatientLookup, logger *zerolog.Logger) func() {
	return bus.Subscribe(events.EventBookingConfirmed, func(event *events.Event) error {
		var payload events.PatientEventPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		if payload.Tier != string(models.TierFree) {
			return nil
		}

		entry := models.QueueEntry{
			PatientID:   payload.PatientID,
			TokenNumber: payload.TokenNumber,
			Tier:        models.TierFree,
		}
		if patients != nil {
			if p, err := patients.GetPatient(ctx, payload.PatientID); err == nil {
				entry.Name = p.Name
				entry.Age = p.Age
			} else {
				logger.Warn().Err(err).Int64("patient_id", payload.PatientID).Msg("patient details unavailable for queue entry")
			}
		}
		_, err := q.Add(entry)
		return err
	})
}

// FlagLateCheckIns marks queue entries late when a check-in runs out of grace.
func FlagLateCheckIns(bus *events.EventBus, q *LiveQueue) func() {
	return bus.Subscribe(events.EventLateFeeApplied, func(event *events.Event) error {
		var payload events.PatientEventPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		q.MarkLate(payload.PatientID)
		return nil
	})
}
