package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/app"
	"github.com/odyssey-erp/consolidate/internal/consol"
	"github.com/odyssey-erp/consolidate/internal/elimination"
	"github.com/odyssey-erp/consolidate/internal/fx"
	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/ledger"
	"github.com/odyssey-erp/consolidate/internal/platform/cache"
	"github.com/odyssey-erp/consolidate/internal/platform/db"
	"github.com/odyssey-erp/consolidate/internal/shared"
	"github.com/odyssey-erp/consolidate/jobs"
)

func main() {
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)

	ledgerRepo := ledger.NewRepository(pool)
	translator := fx.NewTranslator(fx.NewRepository(pool))

	icRepo := intercompany.NewRepository(pool)
	icService := intercompany.NewService(icRepo, auditLogger, logger)
	if tol, err := decimal.NewFromString(cfg.MatchTolerance); err == nil {
		icService.WithTolerance(tol)
	}

	orchestrator := consol.NewOrchestrator(
		ledgerRepo,
		ledgerRepo,
		translator,
		icRepo,
		elimination.NewRepository(pool),
		logger,
	)
	locker := shared.NewRunLocker(redisClient, cfg.ConsolLockTTL)
	consolRepo := consol.NewRepository(pool)
	consolService := consol.NewService(consolRepo, orchestrator, locker, auditLogger, logger)

	runJob := jobs.NewConsolidationRunJob(consolService, logger, nil)
	sweepJob := jobs.NewReconciliationSweepJob(icService, consolRepo, logger, nil)

	sweepTask, err := jobs.NewReconciliationSweepTask("")
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskConsolidationRun, Handler: runJob.Handle},
			{Type: jobs.TaskReconciliationSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
