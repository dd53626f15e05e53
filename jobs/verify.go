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

// VerifyJob walks the hash chain and reports tampering.
type VerifyJob struct {
	Verifier *seal.Verifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewVerifyJob initialises the verify handler.
func NewVerifyJob(verifier *seal.Verifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *VerifyJob {
	return &VerifyJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle executes a chain verification run.
func (j *VerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errors.New("verify: handler not configured")
	}
	var payload VerifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskVerify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("batch_size", payload.BatchSize))
	logger.Info("starting chain verification")

	result, err := j.Verifier.Run(ctx, seal.VerifyOptions{
		BatchSize:      payload.BatchSize,
		StopAtUnsealed: payload.StopAtUnsealed,
	})
	if err != nil {
		resultErr = err
		logger.Error("chain verification failed", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddTamper(result.Mismatches, result.BrokenLinks)
	if !result.OK {
		logger.Warn("chain verification found tampering",
			slog.Int("mismatches", result.Mismatches),
			slog.Int("broken_links", result.BrokenLinks),
			slog.Int64("first_bad_sequence", result.FirstBadSequence),
		)
	}

	logger.Info("completed chain verification",
		slog.Int("checked", result.Checked),
		slog.Bool("ok", result.OK),
		slog.Bool("stopped", result.Stopped),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *VerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskVerify))
	}
	return slog.Default().With(slog.String("job", TaskVerify))
}

func (j *VerifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
