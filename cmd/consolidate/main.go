package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/consolidate/internal/app"
	"github.com/odyssey-erp/consolidate/internal/audit"
	audithttp "github.com/odyssey-erp/consolidate/internal/audit/http"
	"github.com/odyssey-erp/consolidate/internal/consol"
	consolhttp "github.com/odyssey-erp/consolidate/internal/consol/http"
	"github.com/odyssey-erp/consolidate/internal/elimination"
	"github.com/odyssey-erp/consolidate/internal/fx"
	"github.com/odyssey-erp/consolidate/internal/intercompany"
	intercompanyhttp "github.com/odyssey-erp/consolidate/internal/intercompany/http"
	"github.com/odyssey-erp/consolidate/internal/ledger"
	"github.com/odyssey-erp/consolidate/internal/observability"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	translator := fx.NewTranslator(fx.NewRepository(dbpool))

	icRepo := intercompany.NewRepository(dbpool)
	icService := intercompany.NewService(icRepo, auditLogger, logger)
	if tol, err := decimal.NewFromString(cfg.MatchTolerance); err == nil {
		icService.WithTolerance(tol)
	} else {
		logger.Warn("invalid match tolerance, using default", slog.String("value", cfg.MatchTolerance))
	}

	orchestrator := consol.NewOrchestrator(
		ledgerRepo,
		ledgerRepo,
		translator,
		icRepo,
		elimination.NewRepository(dbpool),
		logger,
	)
	locker := shared.NewRunLocker(redisClient, cfg.ConsolLockTTL)
	consolRepo := consol.NewRepository(dbpool)
	consolService := consol.NewService(consolRepo, orchestrator, locker, auditLogger, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		ConsolHandler:       consolhttp.NewHandler(logger, consolService, jobsClient),
		IntercompanyHandler: intercompanyhttp.NewHandler(logger, icService),
		AuditHandler:        audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
