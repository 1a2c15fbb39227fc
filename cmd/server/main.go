package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finvolv/case-intake-service/internal/api"
	"github.com/finvolv/case-intake-service/internal/core/services/intake"
	"github.com/finvolv/case-intake-service/internal/infrastructure/cache"
	"github.com/finvolv/case-intake-service/internal/infrastructure/database"
	"github.com/finvolv/case-intake-service/internal/infrastructure/database/repositories"
	"github.com/finvolv/case-intake-service/internal/infrastructure/queue"
	"github.com/finvolv/case-intake-service/internal/infrastructure/rows"
	"github.com/finvolv/case-intake-service/internal/infrastructure/storage"
	"github.com/finvolv/case-intake-service/internal/pkg/config"
	"github.com/finvolv/case-intake-service/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.Initialize(cfg.Environment)
	cfg.LogConfig()

	db, err := database.NewPostgresDB(&cfg.Database, logger.NewServiceLogger("database"))
	if err != nil {
		log.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisCache, err := cache.NewRedisCache(&cfg.Cache, logger.NewServiceLogger("cache"))
	if err != nil {
		log.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisCache.Close()

	queueClient, err := queue.NewAsynqClient(&cfg.Queue, logger.NewServiceLogger("queue"))
	if err != nil {
		log.Error("failed to create queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer queueClient.Close()

	uploadStore, err := storage.NewLocalStorage(&cfg.Storage, logger.NewServiceLogger("storage"))
	if err != nil {
		log.Error("failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}

	runLock := cache.NewRunLock(redisCache,
		time.Duration(cfg.Worker.LockTTLMinutes)*time.Minute,
		logger.NewServiceLogger("runlock"))

	intakeService := intake.NewService(
		repositories.NewBatchRepository(db.DB, logger.NewServiceLogger("batch-repo")),
		repositories.NewBatchErrorRepository(db.DB, logger.NewServiceLogger("ledger-repo")),
		repositories.NewCaseRepository(db.DB, logger.NewServiceLogger("case-repo")),
		runLock,
		uploadStore,
		rows.NewSourceFactory(),
		queueClient,
		logger.NewServiceLogger("intake"),
	)

	router := api.NewRouter(intakeService, func() map[string]interface{} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return db.Health(ctx)
	}, logger.NewServiceLogger("api"))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
