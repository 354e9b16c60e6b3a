package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/altamar-retail/altamar-retail/internal/app"
	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/platform/cache"
	"github.com/altamar-retail/altamar-retail/internal/platform/db"
	"github.com/altamar-retail/altamar-retail/internal/purchasing"
	"github.com/altamar-retail/altamar-retail/internal/sales"
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

	validate := validator.New()
	auditLogger := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)
	ledgerRepo := ledger.NewRepository(pool)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), ledgerRepo, auditLogger, idemStore)
	clientsService := clients.NewService(clients.NewRepository(pool), ledgerRepo, auditLogger, idemStore)
	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), auditLogger, idemStore)
	salesService := sales.NewService(sales.NewRepository(pool), auditLogger, idemStore)

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

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventory.NewHandler(logger, inventoryService, validate),
		PurchasingHandler: purchasing.NewHandler(logger, purchasingService, validate),
		SalesHandler:      sales.NewHandler(logger, salesService, validate),
		ClientsHandler:    clients.NewHandler(logger, clientsService, validate),
		JobHandler:        jobs.NewHandler(inspector, jobsClient, redisClient, logger),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
