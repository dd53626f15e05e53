package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saldo-ledger/saldo/internal/jobs"
	"github.com/saldo-ledger/saldo/internal/ledger/posting"
)

// EndOfDayJob rebuilds every ledger balance from posted lines and corrects
// drift in one transaction.
type EndOfDayJob struct {
	Engine  *posting.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEndOfDayJob initialises the end-of-day handler.
func NewEndOfDayJob(engine *posting.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *EndOfDayJob {
	return &EndOfDayJob{Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle executes the end-of-day rebuild.
func (j *EndOfDayJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("eod: handler not configured")
	}
	var payload EndOfDayPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskEndOfDay)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting end-of-day rebuild")

	result, err := j.Engine.RunEndOfDay(ctx, posting.EndOfDayOptions{AsOf: payload.AsOf})
	if err != nil {
		resultErr = err
		logger.Error("end-of-day rebuild failed", slog.Any("error", err))
		return resultErr
	}

	for _, c := range result.Corrected {
		logger.Warn("ledger balance corrected",
			slog.String("account_id", c.AccountID),
			slog.Int64("old", int64(c.Old)),
			slog.Int64("new", int64(c.New)),
		)
	}
	j.metrics().AddCorrections(len(result.Corrected))

	logger.Info("completed end-of-day rebuild",
		slog.Int("accounts", result.Accounts),
		slog.Int("corrected", len(result.Corrected)),
		slog.Int("snapshots", result.Snapshots),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *EndOfDayJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskEndOfDay))
	}
	return slog.Default().With(slog.String("job", TaskEndOfDay))
}

func (j *EndOfDayJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
