package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinicq/internal/domain"
	"clinicq/internal/events"
	"clinicq/internal/metrics"
	"clinicq/internal/models"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	ErrQueueEmpty   = errors.New("no patient is waiting")
	ErrNotInQueue   = errors.New("patient is not in the queue")
	ErrInvalidEntry = errors.New("queue entry needs a patient id")
)

// SignalStore keeps one-shot signals for the doctor's view.
type SignalStore interface {
	RaiseSignal(ctx context.Context, name string, payload any) error
}

// EmergencySignal is the one-shot payload read by the doctor view.
type EmergencySignal struct {
	Reason   string    `json:"reason"`
	RaisedAt time.Time `json:"raised_at"`
}

const SignalEmergency = "emergency"

type Options struct {
	StartingToken     int
	LateArrivalCharge int64
}

// LiveQueue is the single authority for the serving token and the mediator's
// dispatch list.
type LiveQueue struct {
	mu       sync.RWMutex
	serving  int
	entries  []models.QueueEntry
	opts     Options
	eventBus domain.EventPublisher
	fees     domain.FeeEnqueuer
	signals  SignalStore
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewLiveQueue(opts Options, eventBus domain.EventPublisher, fees domain.FeeEnqueuer, signals SignalStore, logger *zerolog.Logger) *LiveQueue {
	if opts.StartingToken <= 0 {
		opts.StartingToken = models.DefaultStartingToken
	}
	if opts.LateArrivalCharge <= 0 {
		opts.LateArrivalCharge = models.DefaultLateArrivalCharge
	}
	metrics.SetServingToken(opts.StartingToken)
	return &LiveQueue{
		serving:  opts.StartingToken,
		opts:     opts,
		eventBus: eventBus,
		fees:     fees,
		signals:  signals,
		now:      time.Now,
		logger:   logger,
	}
}

// CurrentServing returns the token being served now.
func (q *LiveQueue) CurrentServing() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.serving
}

// Entries returns the dispatch list ordered by token.
func (q *LiveQueue) Entries() []models.QueueEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]models.QueueEntry(nil), q.entries...)
}

// Waiting returns only the entries not yet called.
func (q *LiveQueue) Waiting() []models.QueueEntry {
	return lo.Filter(q.Entries(), func(e models.QueueEntry, _ int) bool {
		return e.Status == models.StatusWaiting
	})
}

// Add enrolls or replaces the patient's entry. A zero token is assigned
// max+1.
func (q *LiveQueue) Add(entry models.QueueEntry) (models.QueueEntry, error) {
	if entry.PatientID <= 0 {
		return models.QueueEntry{}, ErrInvalidEntry
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(entry.PatientID)
	if entry.TokenNumber <= 0 {
		entry.TokenNumber = q.maxTokenLocked() + 1
	}
	if entry.Status == "" {
		entry.Status = models.StatusWaiting
	}
	if entry.IssuedAt.IsZero() {
		entry.IssuedAt = q.now()
	}
	q.entries = append(q.entries, entry)
	q.sortLocked()
	return entry, nil
}

// Remove drops the patient's entry, reporting whether one existed.
func (q *LiveQueue) Remove(patientID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(patientID)
}

// Find returns the patient's entry.
func (q *LiveQueue) Find(patientID int64) (models.QueueEntry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return lo.Find(q.entries, func(e models.QueueEntry) bool { return e.PatientID == patientID })
}

// CallNext marks the lowest waiting token as called and advances the serving
// token to it. The serving token never moves backwards, so calling a token
// below it leaves the serving token where it was. Whoever was called before
// moves into consultation.
func (q *LiveQueue) CallNext(ctx context.Context) (models.QueueEntry, error) {
	q.mu.Lock()
	idx := -1
	for i := range q.entries {
		switch q.entries[i].Status {
		case models.StatusCalled:
			q.entries[i].Status = models.StatusInConsultation
		case models.StatusWaiting:
			if idx == -1 {
				idx = i
			}
		}
	}
	if idx == -1 {
		q.mu.Unlock()
		return models.QueueEntry{}, ErrQueueEmpty
	}
	q.entries[idx].Status = models.StatusCalled
	called := q.entries[idx]
	q.serving = max(q.serving, called.TokenNumber)
	serving := q.serving
	q.mu.Unlock()

	metrics.SetServingToken(serving)
	q.logger.Info().Int64("patient_id", called.PatientID).Int("token", called.TokenNumber).Msg("patient called")

	payload := events.PatientEventPayload{
		PatientID:    called.PatientID,
		PatientName:  called.Name,
		Tier:         string(called.Tier),
		TokenNumber:  called.TokenNumber,
		ServingToken: serving,
		Status:       called.Status,
		At:           q.now(),
	}
	q.publish(events.EventServingAdvanced, payload)
	q.publish(events.EventPatientCalled, payload)
	return called, nil
}

// Advance bumps the serving token by one without touching the list.
func (q *LiveQueue) Advance() int {
	q.mu.Lock()
	q.serving++
	serving := q.serving
	q.mu.Unlock()

	metrics.SetServingToken(serving)
	q.publish(events.EventServingAdvanced, events.PatientEventPayload{ServingToken: serving, At: q.now()})
	return serving
}

// MarkLate flags the patient's entry so the mediator can move it down.
func (q *LiveQueue) MarkLate(patientID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].PatientID == patientID {
			q.entries[i].IsLate = true
			return true
		}
	}
	return false
}

// MoveDown sends a late arrival to the back of the queue with token max+1,
// clears the late flag and queues the late-arrival charge.
func (q *LiveQueue) MoveDown(ctx context.Context, patientID int64) (models.QueueEntry, error) {
	q.mu.Lock()
	idx := lo.IndexOf(lo.Map(q.entries, func(e models.QueueEntry, _ int) int64 { return e.PatientID }), patientID)
	if idx == -1 {
		q.mu.Unlock()
		return models.QueueEntry{}, ErrNotInQueue
	}
	entry := q.entries[idx]
	newToken := q.maxTokenLocked() + 1
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)

	entry.TokenNumber = newToken
	entry.IsLate = false
	entry.Status = models.StatusWaiting
	entry.IssuedAt = q.now()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	if q.fees != nil {
		task := &models.FeeTask{
			Kind:      models.ChargeLateArrival,
			PatientID: patientID,
			Amount:    q.opts.LateArrivalCharge,
			Reason:    fmt.Sprintf("late arrival, moved to token %d", newToken),
		}
		if err := q.fees.EnqueueFee(ctx, task); err != nil {
			return entry, fmt.Errorf("enqueue late-arrival charge: %w", err)
		}
	}

	q.logger.Info().Int64("patient_id", patientID).Int("token", newToken).Msg("late arrival moved down")
	q.publish(events.EventLateArrival, events.PatientEventPayload{
		PatientID:   patientID,
		PatientName: entry.Name,
		TokenNumber: newToken,
		Amount:      q.opts.LateArrivalCharge,
		At:          q.now(),
	})
	return entry, nil
}

// RaiseEmergency alerts the doctor. The signal is cleared when read.
func (q *LiveQueue) RaiseEmergency(ctx context.Context, reason string) (EmergencySignal, error) {
	signal := EmergencySignal{Reason: reason, RaisedAt: q.now()}
	if q.signals != nil {
		if err := q.signals.RaiseSignal(ctx, SignalEmergency, signal); err != nil {
			return signal, fmt.Errorf("raise emergency signal: %w", err)
		}
	}
	q.logger.Warn().Str("reason", reason).Msg("emergency raised")
	q.publish(events.EventEmergencyAlert, events.PatientEventPayload{Reason: reason, At: signal.RaisedAt})
	return signal, nil
}

func (q *LiveQueue) publish(eventType string, payload events.PatientEventPayload) {
	if q.eventBus == nil {
		return
	}
	if err := q.eventBus.PublishJSON(eventType, payload); err != nil {
		q.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish queue event")
	}
}

func (q *LiveQueue) maxTokenLocked() int {
	top := q.serving
	for _, e := range q.entries {
		top = max(top, e.TokenNumber)
	}
	return top
}

func (q *LiveQueue) removeLocked(patientID int64) bool {
	before := len(q.entries)
	q.entries = lo.Reject(q.entries, func(e models.QueueEntry, _ int) bool { return e.PatientID == patientID })
	return len(q.entries) != before
}

func (q *LiveQueue) sortLocked() {
	sort.SliceStable(q.entries, func(i, j int) bool {
		return q.entries[i].TokenNumber < q.entries[j].TokenNumber
	})
}
