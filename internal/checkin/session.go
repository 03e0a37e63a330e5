package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicq/internal/domain"
	"clinicq/internal/events"
	"clinicq/internal/metrics"
	"clinicq/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidTransition = errors.New("transition not allowed from current state")
	ErrGraceExpired      = errors.New("grace period has expired")
	ErrNoLateFee         = errors.New("no late fee to acknowledge")
	ErrSessionClosed     = errors.New("check-in session is closed")
)

// Config holds the check-in constants.
type Config struct {
	GracePeriodSeconds int
	LateFee            int64
	Location           *time.Location
}

// Session is one patient's check-in attempt. All state lives behind mu; the
// grace countdown runs on its own goroutine only while in grace_period.
type Session struct {
	mu sync.Mutex

	id      string
	booking models.BookingRecord
	cfg     Config

	status           models.CheckInStatus
	isLate           bool
	graceRemaining   int
	lateFee          *models.LateFeeNotice
	calledByMediator bool
	startedAt        time.Time
	updatedAt        time.Time
	closed           bool

	stopCountdown context.CancelFunc
	countdown     sync.WaitGroup
	unsubscribe   func()

	clock    Clock
	fees     domain.FeeEnqueuer
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

type sessionDeps struct {
	clock    Clock
	fees     domain.FeeEnqueuer
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func newSession(booking models.BookingRecord, cfg Config, deps sessionDeps) (*Session, error) {
	now := deps.clock.Now()
	s := &Session{
		id:        uuid.NewString(),
		booking:   booking,
		cfg:       cfg,
		status:    models.CheckInPending,
		startedAt: now,
		updatedAt: now,
		clock:     deps.clock,
		fees:      deps.fees,
		eventBus:  deps.eventBus,
		logger:    deps.logger,
	}

	if booking.Tier == models.TierPremium {
		scheduled, err := booking.ScheduledAt(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("resolve scheduled time: %w", err)
		}
		s.isLate = now.After(scheduled)
	}
	return s, nil
}

// Arrive handles "I am here". On-time and free-tier patients succeed at once;
// a late premium patient enters the grace period.
func (s *Session) Arrive() (models.CheckInSnapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.CheckInSnapshot{}, ErrSessionClosed
	}
	if s.status != models.CheckInPending {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrInvalidTransition
	}

	if s.booking.Tier == models.TierFree || !s.isLate {
		s.succeedLocked()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.completed(snap)
		return snap, nil
	}

	s.status = models.CheckInGracePeriod
	s.graceRemaining = s.cfg.GracePeriodSeconds
	s.updatedAt = s.clock.Now()
	s.startCountdownLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Int64("patient_id", s.booking.PatientID).Int("grace_seconds", snap.GraceSecondsRemaining).Msg("grace period started")
	return snap, nil
}

// GraceCheckIn completes check-in while grace time remains.
func (s *Session) GraceCheckIn() (models.CheckInSnapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.CheckInSnapshot{}, ErrSessionClosed
	}
	switch {
	case s.status == models.CheckInLate:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrGraceExpired
	case s.status != models.CheckInGracePeriod || s.graceRemaining <= 0:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrInvalidTransition
	}

	s.succeedLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.completed(snap)
	return snap, nil
}

// Override forces success because the mediator called the patient. It wins
// over the countdown from any state.
func (s *Session) Override() models.CheckInSnapshot {
	s.mu.Lock()
	if s.closed || s.status == models.CheckInSuccess {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.calledByMediator = true
	s.succeedLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info().Int64("patient_id", s.booking.PatientID).Msg("check-in completed by mediator call")
	s.completed(snap)
	return snap
}

// Acknowledge records that the patient has seen the late-fee notice.
func (s *Session) Acknowledge() (models.CheckInSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lateFee == nil {
		return s.snapshotLocked(), ErrNoLateFee
	}
	s.lateFee.Acknowledged = true
	s.updatedAt = s.clock.Now()
	return s.snapshotLocked(), nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() models.CheckInSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close tears the session down. It returns once the countdown goroutine, if
// any, has exited, including a late fee it is still handing to the worker.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.releaseCountdownLocked()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.countdown.Wait()
}

func (s *Session) succeedLocked() {
	s.status = models.CheckInSuccess
	s.updatedAt = s.clock.Now()
	s.releaseCountdownLocked()
}

func (s *Session) startCountdownLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopCountdown = cancel

	ticker := s.clock.NewTicker(time.Second)
	s.countdown.Add(1)
	go s.runCountdown(ctx, ticker)
}

// releaseCountdownLocked cancels the countdown without waiting for it.
func (s *Session) releaseCountdownLocked() {
	if s.stopCountdown == nil {
		return
	}
	s.stopCountdown()
	s.stopCountdown = nil
}

func (s *Session) runCountdown(ctx context.Context, ticker Ticker) {
	defer s.countdown.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.tick(ctx) {
				return
			}
		}
	}
}

// tick decrements the grace counter and reports whether to keep ticking.
func (s *Session) tick(ctx context.Context) bool {
	s.mu.Lock()
	if ctx.Err() != nil || s.status != models.CheckInGracePeriod {
		s.mu.Unlock()
		return false
	}

	s.graceRemaining--
	s.updatedAt = s.clock.Now()
	if s.graceRemaining > 0 {
		s.mu.Unlock()
		return true
	}

	s.graceRemaining = 0
	s.status = models.CheckInLate
	s.lateFee = &models.LateFeeNotice{Amount: s.cfg.LateFee, IssuedAt: s.updatedAt}
	s.releaseCountdownLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.issueLateFee(context.WithoutCancel(ctx), snap)
	return false
}

// issueLateFee runs once per session, right after the transition to late.
func (s *Session) issueLateFee(ctx context.Context, snap models.CheckInSnapshot) {
	metrics.IncCheckIn(string(models.CheckInLate))
	s.logger.Warn().Int64("patient_id", snap.PatientID).Int64("amount", s.cfg.LateFee).Msg("grace period expired, late fee issued")

	if s.fees != nil {
		task := &models.FeeTask{
			Kind:      models.ChargeLateFee,
			PatientID: snap.PatientID,
			Amount:    s.cfg.LateFee,
			Reason:    fmt.Sprintf("missed %s slot on %s", snap.ScheduledTime, s.booking.Date),
		}
		if err := s.fees.EnqueueFee(ctx, task); err != nil {
			s.logger.Error().Err(err).Int64("patient_id", snap.PatientID).Msg("failed to enqueue late fee")
		}
	}

	s.publish(events.EventLateFeeApplied, events.PatientEventPayload{
		PatientID: snap.PatientID,
		Tier:      string(snap.Tier),
		Status:    string(snap.Status),
		Amount:    s.cfg.LateFee,
		Reason:    "grace period expired",
		At:        snap.UpdatedAt,
	})
}

func (s *Session) completed(snap models.CheckInSnapshot) {
	metrics.IncCheckIn(string(models.CheckInSuccess))
	s.publish(events.EventCheckInCompleted, events.PatientEventPayload{
		PatientID:   snap.PatientID,
		Tier:        string(snap.Tier),
		TokenNumber: snap.TokenNumber,
		Status:      string(snap.Status),
		At:          snap.UpdatedAt,
	})
}

func (s *Session) publish(eventType string, payload events.PatientEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish check-in event")
	}
}

func (s *Session) snapshotLocked() models.CheckInSnapshot {
	snap := models.CheckInSnapshot{
		SessionID:             s.id,
		PatientID:             s.booking.PatientID,
		Tier:                  s.booking.Tier,
		ScheduledTime:         s.booking.ScheduledTime,
		TokenNumber:           s.booking.TokenNumber,
		Status:                s.status,
		IsLate:                s.isLate,
		GraceSecondsRemaining: s.graceRemaining,
		CalledByMediator:      s.calledByMediator,
		StartedAt:             s.startedAt,
		UpdatedAt:             s.updatedAt,
	}
	if s.lateFee != nil {
		fee := *s.lateFee
		snap.LateFee = &fee
	}
	return snap
}
