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

// SnapshotJob captures balance snapshots for every active account.
type SnapshotJob struct {
	Engine  *posting.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSnapshotJob initialises the snapshot handler.
func NewSnapshotJob(engine *posting.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotJob {
	return &SnapshotJob{Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle executes the snapshot sweep.
func (j *SnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("snapshot: handler not configured")
	}
	var payload SnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting balance snapshot sweep")

	result, err := j.Engine.RunSnapshot(ctx)
	if err != nil {
		resultErr = err
		logger.Error("snapshot sweep failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed balance snapshot sweep",
		slog.Int("accounts", result.Accounts),
		slog.Int("snapshots", result.Snapshots),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *SnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskSnapshot))
}

func (j *SnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
