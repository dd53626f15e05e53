package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saldo-ledger/saldo/internal/jobs"
	"github.com/saldo-ledger/saldo/internal/ledger/posting"
)

// QueueNotifier delivers entry-posted notifications through the job queue
// so downstream consumers run outside the commit path.
type QueueNotifier struct {
	Client *Client
	Logger *slog.Logger
}

// EntryPosted enqueues the notification. Delivery failures are logged and
// swallowed; the entry is already committed.
func (n QueueNotifier) EntryPosted(ctx context.Context, event posting.EntryPostedEvent) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n.Client == nil {
		logger.Warn("entry posted notification dropped", slog.String("entry_id", event.EntryID))
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("marshal entry posted event", slog.Any("error", err))
		return
	}
	task := asynq.NewTask(TaskEntryPosted, data)
	if _, err := n.Client.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		logger.Error("enqueue entry posted event",
			slog.String("entry_id", event.EntryID),
			slog.Any("error", err),
		)
	}
}

// EntryPostedJob consumes entry-posted notifications from the queue.
type EntryPostedJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEntryPostedJob initialises the entry-posted handler.
func NewEntryPostedJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *EntryPostedJob {
	return &EntryPostedJob{Logger: logger, Metrics: metrics}
}

// Handle processes one entry-posted notification.
func (j *EntryPostedJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("entry posted: handler not configured")
	}
	var event posting.EntryPostedEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskEntryPosted)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	j.logger().Info("entry posted",
		slog.String("entry_id", event.EntryID),
		slog.String("description", event.Description),
		slog.Int("lines", len(event.Lines)),
	)
	return resultErr
}

func (j *EntryPostedJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskEntryPosted))
	}
	return slog.Default().With(slog.String("job", TaskEntryPosted))
}

func (j *EntryPostedJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
