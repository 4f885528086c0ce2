package worker

import (
	"context"
	"encoding/json"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "courtbook:notifications:deadletter"

// NotificationWorker drains the notification outbox into a Notifier. Tasks
// that exhaust their retries are marked failed and copied to a redis dead
// letter list when redis is configured.
type NotificationWorker struct {
	outbox       domain.OutboxRepository
	notifier     domain.Notifier
	redis        *redis.Client
	retryPolicy  RetryPolicy
	wake         chan struct{}
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewNotificationWorker(
	outbox domain.OutboxRepository,
	notifier domain.Notifier,
	redisClient *redis.Client,
	retry RetryPolicy,
	pollInterval time.Duration,
	batchSize int,
	logger *zerolog.Logger,
) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	return &NotificationWorker{
		outbox:       outbox,
		notifier:     notifier,
		redis:        redisClient,
		retryPolicy:  retry,
		wake:         make(chan struct{}, models.WorkerQueueSize),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// Wake asks the worker to poll before the next tick. It never blocks.
func (w *NotificationWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start runs until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("Notification worker started")
	if failed, err := w.outbox.ListFailedNotifications(ctx); err == nil && len(failed) > 0 {
		w.logger.Warn().Int("failed_backlog", len(failed)).Msg("Notifications left in failed state")
	}
	defer w.logger.Info().Msg("Notification worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error().Err(err).Msg("Failed to fetch pending notifications")
				break
			}
			if n < w.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of due tasks and returns how many it handled.
func (w *NotificationWorker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.outbox.GetPendingNotifications(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	if err := w.notifier.Notify(ctx, task); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncNotification(models.OutboxCompleted)
	if err := w.outbox.CompleteNotification(ctx, task.ID); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark notification completed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	log := w.logger.With().Int64("task_id", task.ID).Str("kind", task.Kind).Int("attempt", attempt).Logger()

	if w.retryPolicy.Exhausted(attempt) {
		log.Error().Err(cause).Msg("Notification failed permanently")
		metrics.IncNotification(models.OutboxFailed)
		if err := w.outbox.FailNotification(ctx, task.ID, cause.Error(), nil); err != nil {
			log.Error().Err(err).Msg("Failed to mark notification failed")
		}
		w.pushDeadLetter(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	log.Warn().Err(cause).Time("next_retry_at", next).Msg("Notification failed, will retry")
	metrics.IncNotification(models.OutboxRetry)
	if err := w.outbox.FailNotification(ctx, task.ID, cause.Error(), &next); err != nil {
		log.Error().Err(err).Msg("Failed to schedule notification retry")
	}
}

type deadLetter struct {
	Task  models.NotificationTask `json:"task"`
	Error string                  `json:"error"`
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask, cause error) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(deadLetter{Task: *task, Error: cause.Error()})
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to push dead letter")
	}
}

// LogNotifier writes notification decisions to the log. Delivery channels
// plug in by implementing domain.Notifier.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, task *models.NotificationTask) error {
	n.logger.Info().
		Int64("task_id", task.ID).
		Str("kind", task.Kind).
		Str("user_id", task.UserID).
		RawJSON("payload", []byte(task.Payload)).
		Msg("Notify user")
	return nil
}
