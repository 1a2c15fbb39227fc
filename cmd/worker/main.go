package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finvolv/case-intake-service/internal/core/services/intake"
	"github.com/finvolv/case-intake-service/internal/infrastructure/cache"
	"github.com/finvolv/case-intake-service/internal/infrastructure/database"
	"github.com/finvolv/case-intake-service/internal/infrastructure/database/repositories"
	"github.com/finvolv/case-intake-service/internal/infrastructure/queue"
	"github.com/finvolv/case-intake-service/internal/infrastructure/rows"
	"github.com/finvolv/case-intake-service/internal/infrastructure/storage"
	"github.com/finvolv/case-intake-service/internal/pkg/config"
	"github.com/finvolv/case-intake-service/internal/pkg/logger"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
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

	server, err := queue.NewAsynqServer(&cfg.Queue, logger.NewServiceLogger("worker"))
	if err != nil {
		log.Error("failed to create queue server", slog.Any("error", err))
		os.Exit(1)
	}

	server.HandleFunc(queue.TaskTypeBatchIngest, func(ctx context.Context, task *asynq.Task) error {
		payload, err := queue.ParseBatchIngestPayload(task)
		if err != nil {
			// Malformed payloads never become well-formed: don't retry.
			log.Error("dropping malformed ingest task", slog.Any("error", err))
			return nil
		}

		blog := logger.NewBatchLogger("worker", payload.BatchID.String())
		if err := intakeService.ProcessBatch(ctx, payload.BatchID); err != nil {
			if intake.IsBusy(err) {
				blog.Info("batch already running, leaving task for retry")
			} else {
				blog.Error("batch run failed", slog.Any("error", err))
			}
			return err
		}
		return nil
	})

	// Retention sweep for upload artifacts orphaned by crashed workers.
	scheduler := cron.New()
	retention := time.Duration(cfg.Storage.RetentionHours) * time.Hour
	if _, err := scheduler.AddFunc(cfg.Worker.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := uploadStore.CleanupOldFiles(ctx, retention); err != nil {
			log.Error("retention sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		log.Error("failed to schedule retention sweep", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		server.Shutdown()
	}()

	if err := server.Start(); err != nil {
		log.Error("worker failed", slog.Any("error", err))
		os.Exit(1)
	}
}
