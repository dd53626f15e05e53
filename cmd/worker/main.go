package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/saldo-ledger/saldo/internal/app"
	jobmetrics "github.com/saldo-ledger/saldo/internal/jobs"
	"github.com/saldo-ledger/saldo/internal/ledger/integrity"
	"github.com/saldo-ledger/saldo/internal/ledger/maintenance"
	"github.com/saldo-ledger/saldo/internal/ledger/posting"
	"github.com/saldo-ledger/saldo/internal/ledger/seal"
	"github.com/saldo-ledger/saldo/internal/platform/db"
	"github.com/saldo-ledger/saldo/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	postingRepo := posting.NewRepository(pool)
	postingService := posting.NewService(postingRepo, nil, logger)

	sealRepo := seal.NewRepository(pool)
	sealer := seal.NewSealer(sealRepo, logger)
	verifier := seal.NewVerifier(sealRepo, logger)

	checker := integrity.NewChecker(integrity.NewRepository(pool), logger)
	maint := maintenance.New(pool, logger, cfg.AllowReset)

	snapshotJob := jobs.NewSnapshotJob(postingService, logger, metrics)
	sealJob := jobs.NewSealJob(sealer, logger, metrics)
	verifyJob := jobs.NewVerifyJob(verifier, logger, metrics)
	integrityJob := jobs.NewIntegrityJob(checker, logger, metrics)
	eodJob := jobs.NewEndOfDayJob(postingService, logger, metrics)
	optimizeJob := jobs.NewOptimizeJob(maint, logger, metrics)
	entryPostedJob := jobs.NewEntryPostedJob(logger, metrics)

	snapshotTask, err := jobs.NewSnapshotTask(jobs.SnapshotPayload{})
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}
	sealTask, err := jobs.NewSealTask(jobs.SealPayload{BatchSize: cfg.SealBatchSize, StopOnPending: true})
	if err != nil {
		logger.Error("build seal task", slog.Any("error", err))
		os.Exit(1)
	}
	verifyTask, err := jobs.NewVerifyTask(jobs.VerifyPayload{BatchSize: cfg.VerifyBatchSize})
	if err != nil {
		logger.Error("build verify task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewIntegrityTask(jobs.IntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	eodTask, err := jobs.NewEndOfDayTask(jobs.EndOfDayPayload{})
	if err != nil {
		logger.Error("build end-of-day task", slog.Any("error", err))
		os.Exit(1)
	}
	optimizeTask, err := jobs.NewOptimizeTask(jobs.OptimizePayload{})
	if err != nil {
		logger.Error("build optimize task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSnapshot, Handler: snapshotJob.Handle},
			{Type: jobs.TaskSeal, Handler: sealJob.Handle},
			{Type: jobs.TaskVerify, Handler: verifyJob.Handle},
			{Type: jobs.TaskIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskEndOfDay, Handler: eodJob.Handle},
			{Type: jobs.TaskOptimize, Handler: optimizeJob.Handle},
			{Type: jobs.TaskEntryPosted, Handler: entryPostedJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "* * * * *", Task: sealTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: snapshotTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: eodTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 0", Task: optimizeTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
