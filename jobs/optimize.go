package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saldo-ledger/saldo/internal/jobs"
	"github.com/saldo-ledger/saldo/internal/ledger/maintenance"
)

// OptimizeJob vacuums and re-analyzes the ledger tables.
type OptimizeJob struct {
	Maintenance *maintenance.Maintenance
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewOptimizeJob initialises the optimize handler.
func NewOptimizeJob(maint *maintenance.Maintenance, logger *slog.Logger, metrics *jobmetrics.Metrics) *OptimizeJob {
	return &OptimizeJob{Maintenance: maint, Logger: logger, Metrics: metrics}
}

// Handle executes the maintenance run.
func (j *OptimizeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Maintenance == nil {
		return errors.New("optimize: handler not configured")
	}
	var payload OptimizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskOptimize)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting table maintenance")

	if err := j.Maintenance.Optimize(ctx); err != nil {
		resultErr = err
		logger.Error("table maintenance failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed table maintenance", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *OptimizeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOptimize))
	}
	return slog.Default().With(slog.String("job", TaskOptimize))
}

func (j *OptimizeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
