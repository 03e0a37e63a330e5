package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicq/internal/domain"
	"clinicq/internal/events"
	"clinicq/internal/logging"
	"clinicq/internal/models"
	"clinicq/internal/queue"

	"github.com/rs/zerolog"
)

var ErrNoSession = errors.New("no active check-in session")

// Manager owns at most one check-in session per patient.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	bookings queue.BookingReader
	cfg      Config
	clock    Clock
	fees     domain.FeeEnqueuer
	eventBus *events.EventBus
	logger   *zerolog.Logger
}

func NewManager(bookings queue.BookingReader, cfg Config, fees domain.FeeEnqueuer, eventBus *events.EventBus, logger *zerolog.Logger) *Manager {
	if cfg.GracePeriodSeconds <= 0 {
		cfg.GracePeriodSeconds = models.DefaultGracePeriodSeconds
	}
	if cfg.LateFee <= 0 {
		cfg.LateFee = models.DefaultLateFee
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Manager{
		sessions: make(map[int64]*Session),
		bookings: bookings,
		cfg:      cfg,
		clock:    SystemClock,
		fees:     fees,
		eventBus: eventBus,
		logger:   logging.Component(logger, "checkin"),
	}
}

// Start opens a fresh pending session for the patient's current booking,
// discarding any previous session.
func (m *Manager) Start(ctx context.Context, patientID int64) (models.CheckInSnapshot, error) {
	record, err := m.bookings.Booking(ctx, patientID)
	if err != nil {
		return models.CheckInSnapshot{}, fmt.Errorf("load booking: %w", err)
	}
	if record == nil {
		return models.CheckInSnapshot{}, queue.ErrNoBooking
	}

	deps := sessionDeps{clock: m.clock, fees: m.fees, logger: m.logger}
	if m.eventBus != nil {
		deps.eventBus = m.eventBus
	}
	session, err := newSession(*record, m.cfg, deps)
	if err != nil {
		return models.CheckInSnapshot{}, err
	}
	if m.eventBus != nil {
		session.unsubscribe = m.eventBus.Subscribe(events.EventPatientCalled, m.overrideHandler(session))
	}

	m.mu.Lock()
	previous := m.sessions[patientID]
	m.sessions[patientID] = session
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	snap := session.Snapshot()
	m.logger.Info().
		Int64("patient_id", patientID).
		Str("session_id", snap.SessionID).
		Str("tier", string(snap.Tier)).
		Bool("late", snap.IsLate).
		Msg("check-in session started")
	return snap, nil
}

func (m *Manager) overrideHandler(session *Session) events.EventHandler {
	return func(event *events.Event) error {
		var payload events.PatientEventPayload
		if err := event.Decode(&payload); err != nil {
			return err
		}
		if payload.PatientID == session.booking.PatientID {
			session.Override()
		}
		return nil
	}
}

func (m *Manager) session(patientID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[patientID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

func (m *Manager) Get(patientID int64) (models.CheckInSnapshot, error) {
	s, err := m.session(patientID)
	if err != nil {
		return models.CheckInSnapshot{}, err
	}
	return s.Snapshot(), nil
}

func (m *Manager) Arrive(patientID int64) (models.CheckInSnapshot, error) {
	s, err := m.session(patientID)
	if err != nil {
		return models.CheckInSnapshot{}, err
	}
	return s.Arrive()
}

func (m *Manager) GraceCheckIn(patientID int64) (models.CheckInSnapshot, error) {
	s, err := m.session(patientID)
	if err != nil {
		return models.CheckInSnapshot{}, err
	}
	return s.GraceCheckIn()
}

// Override forces success for the patient's session, if one exists.
func (m *Manager) Override(patientID int64) (models.CheckInSnapshot, error) {
	s, err := m.session(patientID)
	if err != nil {
		return models.CheckInSnapshot{}, err
	}
	return s.Override(), nil
}

func (m *Manager) Acknowledge(patientID int64) (models.CheckInSnapshot, error) {
	s, err := m.session(patientID)
	if err != nil {
		return models.CheckInSnapshot{}, err
	}
	return s.Acknowledge()
}

// Abandon tears the session down. A later Start begins again from pending.
func (m *Manager) Abandon(patientID int64) error {
	m.mu.Lock()
	s, ok := m.sessions[patientID]
	delete(m.sessions, patientID)
	m.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	s.Close()
	m.logger.Info().Int64("patient_id", patientID).Msg("check-in session abandoned")
	return nil
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
