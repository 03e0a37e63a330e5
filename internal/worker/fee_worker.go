package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinicq/internal/domain"
	"clinicq/internal/logging"
	"clinicq/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// FeeApplier books a fee task against the patient's ledger.
type FeeApplier interface {
	ApplyFee(ctx context.Context, task *models.FeeTask) (*models.Ledger, error)
}

// FeeWorker drains fee_queue tasks into the finance ledger. Tasks are
// persisted first, then handed over through Redis, an in-memory channel, or
// database polling, in that order of preference.
type FeeWorker struct {
	store         domain.FeeQueue
	applier       FeeApplier
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.FeeTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewFeeWorker builds a worker; redisClient may be nil. keyPrefix namespaces
// the Redis lists.
func NewFeeWorker(store domain.FeeQueue, applier FeeApplier, redisClient *redis.Client, retry RetryPolicy, pollInterval time.Duration, keyPrefix string, logger *zerolog.Logger) *FeeWorker {
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if keyPrefix == "" {
		keyPrefix = "clinicq"
	}

	return &FeeWorker{
		store:         store,
		applier:       applier,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.FeeTask, 128),
		redisQueueKey: keyPrefix + ":fees:queue",
		deadLetterKey: keyPrefix + ":fees:deadletter",
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        logging.Component(logger, "fee_worker"),
	}
}

// EnqueueFee persists the task and schedules it for processing.
func (w *FeeWorker) EnqueueFee(ctx context.Context, task *models.FeeTask) error {
	switch task.Kind {
	case models.ChargeLateFee, models.ChargeLateArrival:
	case "":
		return errors.New("fee kind is required")
	default:
		return fmt.Errorf("unknown fee kind %q", task.Kind)
	}
	if task.PatientID == 0 {
		return errors.New("patient id is required")
	}
	if task.Amount <= 0 {
		return errors.New("fee amount must be positive")
	}

	task.Status = models.FeeTaskPending
	if err := w.store.CreateFeeTask(ctx, task); err != nil {
		return fmt.Errorf("persist fee task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- *task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left to polling")
	}
	return nil
}

// Start runs the processing loop until ctx is done.
func (w *FeeWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("fee worker started")
	defer w.logger.Info().Msg("fee worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingFeeTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending fee tasks")
		}
		if err != nil || len(tasks) == 0 {
			if !w.sleep(ctx) {
				return
			}
			continue
		}

		for _, t := range tasks {
			w.processTask(ctx, t)
		}
	}
}

func (w *FeeWorker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *FeeWorker) tryLocalQueue() (models.FeeTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.FeeTask{}, false
	}
}

func (w *FeeWorker) tryRedis(ctx context.Context) (models.FeeTask, bool) {
	if w.redis == nil {
		return models.FeeTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.FeeTask{}, false
	}
	if len(res) != 2 {
		return models.FeeTask{}, false
	}
	var task models.FeeTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis fee task")
		return models.FeeTask{}, false
	}
	return task, true
}

func (w *FeeWorker) processTask(ctx context.Context, task *models.FeeTask) {
	ledger, err := w.applier.ApplyFee(ctx, task)
	if err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateFeeTaskStatus(ctx, task.ID, models.FeeTaskCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark fee task completed")
	}
	w.logger.Info().
		Int64("task_id", task.ID).
		Int64("patient_id", task.PatientID).
		Str("kind", task.Kind).
		Int64("amount", task.Amount).
		Int64("credit", ledger.CreditBalance).
		Int64("total_fee", ledger.TotalFee).
		Msg("fee applied")
}

func (w *FeeWorker) retryOrFail(ctx context.Context, task *models.FeeTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		if err := w.store.UpdateFeeTaskStatus(ctx, task.ID, models.FeeTaskFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark fee task failed")
		}
		w.logger.Error().Err(cause).Int64("task_id", task.ID).Int("attempts", attempt).Msg("fee task moved to dead letter")
		w.pushDeadLetter(ctx, task)
		return
	}

	next := w.retryPolicy.NextAttemptAt(time.Now(), attempt)
	if err := w.store.UpdateFeeTaskStatus(ctx, task.ID, models.FeeTaskRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark fee task for retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Time("next_retry_at", next).Msg("fee task will be retried")
}

func (w *FeeWorker) pushRedis(ctx context.Context, task *models.FeeTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *FeeWorker) pushDeadLetter(ctx context.Context, task *models.FeeTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push failed")
	}
}

// DeadLetters returns the tasks parked in the Redis dead-letter list, newest first.
func (w *FeeWorker) DeadLetters(ctx context.Context) ([]models.FeeTask, error) {
	if w.redis == nil {
		return nil, nil
	}
	raw, err := w.redis.LRange(ctx, w.deadLetterKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	tasks := make([]models.FeeTask, 0, len(raw))
	for _, r := range raw {
		var t models.FeeTask
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
