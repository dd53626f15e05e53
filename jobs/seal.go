package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saldo-ledger/saldo/internal/jobs"
	"github.com/saldo-ledger/saldo/internal/ledger/seal"
)

// SealJob extends the hash chain over newly committed entries.
type SealJob struct {
	Sealer  *seal.Sealer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSealJob initialises the seal handler.
func NewSealJob(sealer *seal.Sealer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SealJob {
	return &SealJob{Sealer: sealer, Logger: logger, Metrics: metrics}
}

// Handle executes a seal run.
func (j *SealJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sealer == nil {
		return errors.New("seal: handler not configured")
	}
	var payload SealPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskSeal)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("batch_size", payload.BatchSize))
	logger.Info("starting seal run")

	result, err := j.Sealer.Run(ctx, seal.SealOptions{
		BatchSize:     payload.BatchSize,
		StopOnPending: payload.StopOnPending,
	})
	if err != nil {
		resultErr = err
		logger.Error("seal run failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed seal run",
		slog.Int("sealed", result.Sealed),
		slog.Bool("stopped", result.Stopped),
		slog.Int64("skipped_below_tail", result.SkippedBelowTail),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *SealJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSeal))
	}
	return slog.Default().With(slog.String("job", TaskSeal))
}

func (j *SealJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
