package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AsynqServer consumes jobs from Redis. asynq leases each task to a single
// worker goroutine, retries failed tasks with the policy's backoff and
// gives up after MaxAttempts.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *zap.Logger
}

func NewAsynqServer(redisConn asynq.RedisConnOpt, policy RetryPolicy, concurrency int, log *zap.Logger) *AsynqServer {
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueuePins:   6,
			QueueTokens: 2,
		},
		// n is the number of retries already made, so the failed attempt is n+1.
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return policy.Backoff(n + 1)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("job attempt failed",
				zap.String("type", task.Type()),
				zap.Int("attempt", retried+1),
				zap.Int("max_attempts", maxRetry+1),
				zap.Error(err))
		}),
		Logger: log.Sugar(),
	})

	return &AsynqServer{
		server: server,
		mux:    asynq.NewServeMux(),
		log:    log,
	}
}

func (s *AsynqServer) Handle(jobType string, h Handler) {
	s.mux.HandleFunc(jobType, func(ctx context.Context, task *asynq.Task) error {
		id, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		err := h.ProcessJob(ctx, &Delivery{
			JobID:       id,
			Type:        task.Type(),
			Payload:     task.Payload(),
			Attempt:     retried + 1,
			MaxAttempts: maxRetry + 1,
		})
		if IsSkipRetry(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	})
}

func (s *AsynqServer) Start() error {
	s.log.Info("starting asynq server")
	return s.server.Start(s.mux)
}

func (s *AsynqServer) Shutdown() {
	s.server.Shutdown()
	s.log.Info("asynq server stopped")
}
