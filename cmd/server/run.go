package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/pinscheduler/configs"
	"github.com/maheshrc27/pinscheduler/internal/api"
	job "github.com/maheshrc27/pinscheduler/internal/jobs"
	"github.com/maheshrc27/pinscheduler/internal/queue"
	"github.com/maheshrc27/pinscheduler/internal/repository"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"github.com/maheshrc27/pinscheduler/pkg/logger"
	"go.uber.org/zap"
)

func run(ctx context.Context, serveHTTP, runWorkers bool) error {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	appLogger, err := logger.NewLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeDB(appLogger, db)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database is unreachable: %w", err)
	}

	policy := queue.RetryPolicy{MaxAttempts: cfg.Queue.MaxAttempts, BackoffBase: cfg.Queue.BackoffBase}
	q, consumer, closeQueue := newQueue(cfg, policy, appLogger)
	defer closeQueue()
	if cfg.Queue.Backend == "memory" && !(serveHTTP && runWorkers) {
		appLogger.Warn("memory queue backend only works with the all command")
	}

	pinRepo := repository.NewPinRepository(db)
	accountRepo := repository.NewPinterestAccountRepository(db)
	attemptRepo := repository.NewPinAttemptRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)

	pinterestService := service.NewPinterestService(*cfg, accountRepo, appLogger.Named("pinterest"))
	pinService := service.NewPinService(pinRepo, accountRepo, attemptRepo, q, appLogger.Named("scheduler"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runWorkers {
		publishJob := job.NewPublishPinJob(pinRepo, attemptRepo, pinterestService, appLogger.Named("worker"))
		refreshJob := job.NewTokenRefreshJob(accountRepo, pinterestService, q, cfg.TokenRefresh.Window, appLogger.Named("token_refresh"))
		job.Register(consumer, publishJob, refreshJob)

		if err := consumer.Start(); err != nil {
			return fmt.Errorf("could not start queue consumer: %w", err)
		}
		defer consumer.Shutdown()

		c, err := refreshJob.Schedule(cfg.TokenRefresh.Schedule)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_REFRESH_SCHEDULE: %w", err)
		}
		defer c.Stop()

		appLogger.Info("workers started",
			zap.String("backend", cfg.Queue.Backend),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("backoff_base", policy.BackoffBase))
	}

	errCh := make(chan error, 1)
	if serveHTTP {
		app := api.NewApp(*cfg, api.Services{
			Pins:      pinService,
			Pinterest: pinterestService,
			Media:     service.NewMediaService(service.NewR2Service(cfg.R2), cfg.R2.PublicURL, appLogger.Named("media")),
			ApiKeys:   service.NewApiKeyService(apiKeyRepo, appLogger.Named("api_key")),
		}, appLogger.Named("http"))

		go func() {
			if err := app.Listen(":" + cfg.Port); err != nil {
				errCh <- err
			}
		}()
		appLogger.Info("server is running", zap.String("addr", "http://localhost:"+cfg.Port))

		defer func() {
			appLogger.Info("shutting down server")
			if err := app.Shutdown(); err != nil {
				appLogger.Error("failed to shut down server", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
}

// newQueue builds the configured queue backend. The memory backend only
// delivers jobs inside the process that queued them.
func newQueue(cfg *config.Config, policy queue.RetryPolicy, log *zap.Logger) (queue.Queue, queue.Consumer, func()) {
	if cfg.Queue.Backend == "memory" {
		mq := queue.NewMemoryQueue(policy, log.Named("queue"))
		return mq, mq, func() {}
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	q := queue.NewAsynqQueue(redisConn, policy, log.Named("queue"))
	server := queue.NewAsynqServer(redisConn, policy, cfg.Queue.Concurrency, log.Named("queue"))
	return q, server, func() {
		if err := q.Close(); err != nil {
			log.Warn("failed to close queue client", zap.Error(err))
		}
	}
}

func closeDB(log *zap.Logger, db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Error("failed to close database", zap.Error(err))
		return
	}
	log.Info("database connection closed")
}
