package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saldo-ledger/saldo/internal/jobs"
	"github.com/saldo-ledger/saldo/internal/ledger/integrity"
)

// IntegrityJob runs the structural integrity checks over the journal.
type IntegrityJob struct {
	Checker *integrity.Checker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob initialises the integrity handler.
func NewIntegrityJob(checker *integrity.Checker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity checks.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("integrity: handler not configured")
	}
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting integrity checks")

	result, err := j.Checker.Run(ctx)
	if err != nil {
		resultErr = err
		logger.Error("integrity checks failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed integrity checks",
		slog.Bool("ok", result.OK),
		slog.Int("unbalanced_entries", result.UnbalancedEntries),
		slog.Int("drifted_accounts", result.DriftedAccounts),
		slog.Int("broken_running_balance", result.BrokenRunningBalance),
		slog.Int("empty_entries", result.EmptyEntries),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskIntegrity))
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
