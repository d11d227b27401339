package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AsynqQueue keeps jobs in Redis through asynq. The asynq task id is the
// job id, which gives per-id deduplication and removal.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	policy    RetryPolicy
	log       *zap.Logger
}

func NewAsynqQueue(redisConn asynq.RedisConnOpt, policy RetryPolicy, log *zap.Logger) *AsynqQueue {
	return &AsynqQueue{
		client:    asynq.NewClient(redisConn),
		inspector: asynq.NewInspector(redisConn),
		policy:    policy,
		log:       log,
	}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, job *Job) error {
	task := asynq.NewTask(job.Type, job.Payload)

	delay := job.Delay
	if delay < 0 {
		delay = 0
	}

	opts := []asynq.Option{
		asynq.TaskID(job.ID),
		asynq.Queue(QueueName(job.Type)),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(q.policy.MaxAttempts - 1),
	}

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if isConflict(err) && q.clearFinished(job) {
		info, err = q.client.EnqueueContext(ctx, task, opts...)
	}
	if isConflict(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	if err != nil {
		q.log.Error("enqueue failed", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		return err
	}

	q.log.Info("job scheduled",
		zap.String("job_id", info.ID),
		zap.String("type", info.Type),
		zap.Duration("delay", delay),
		zap.Time("process_at", info.NextProcessAt))
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}

// clearFinished deletes the archived or completed task still holding the id
// of job. asynq keeps such tasks around and rejects the id until they are
// gone. It reports whether the id is free again.
func (q *AsynqQueue) clearFinished(job *Job) bool {
	queueName := QueueName(job.Type)
	info, err := q.inspector.GetTaskInfo(queueName, job.ID)
	if err != nil {
		return false
	}
	if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
		return false
	}
	if err := q.inspector.DeleteTask(queueName, job.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		q.log.Warn("failed to clear finished job", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		return false
	}
	q.log.Info("cleared finished job", zap.String("job_id", job.ID), zap.String("state", info.State.String()))
	return true
}

func (q *AsynqQueue) Remove(ctx context.Context, jobType, jobID string) (bool, error) {
	queueName := QueueName(jobType)

	err := q.inspector.DeleteTask(queueName, jobID)
	switch {
	case err == nil:
		q.log.Info("job removed", zap.String("job_id", jobID), zap.String("type", jobType))
		return true, nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return false, nil
	}

	// asynq refuses to delete a task that a worker holds.
	info, lookupErr := q.inspector.GetTaskInfo(queueName, jobID)
	if lookupErr == nil && info.State == asynq.TaskStateActive {
		return false, fmt.Errorf("%w: %s", ErrJobActive, jobID)
	}
	return false, err
}

func (q *AsynqQueue) Lookup(ctx context.Context, jobType, jobID string) (*JobInfo, error) {
	info, err := q.inspector.GetTaskInfo(QueueName(jobType), jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &JobInfo{
		ID:          info.ID,
		Type:        info.Type,
		State:       info.State.String(),
		ProcessAt:   info.NextProcessAt,
		Retried:     info.Retried,
		MaxAttempts: info.MaxRetry + 1,
	}, nil
}

func (q *AsynqQueue) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.client.Close()
}
