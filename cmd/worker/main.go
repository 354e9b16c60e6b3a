package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/altamar-retail/altamar-retail/internal/app"
	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/platform/cache"
	"github.com/altamar-retail/altamar-retail/internal/platform/db"
	"github.com/altamar-retail/altamar-retail/internal/shared"
	"github.com/altamar-retail/altamar-retail/jobs"
)

func main() {
	_ = godotenv.Load()

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
		logger.Error("connect postgres", slog.Any("error", err))
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
	idemStore := shared.NewIdempotencyStore(pool)
	ledgerRepo := ledger.NewRepository(pool)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), ledgerRepo, auditLogger, idemStore)
	clientsService := clients.NewService(clients.NewRepository(pool), ledgerRepo, auditLogger, idemStore)

	reconciler := jobs.NewReconciler(inventoryService, clientsService, redisClient, logger)
	cleanup := jobs.NewCleanupRunner(idemStore, logger)

	reconcileTask, err := jobs.NewReconcileTask(time.Now().UTC())
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcile, Handler: reconciler.HandleReconcileTask},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanup.HandleCleanupTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileSchedule, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
