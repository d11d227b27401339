package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryQueue is an in-process Queue and Consumer. Jobs live only as long
// as the process, so it backs tests and single process development runs.
type MemoryQueue struct {
	policy RetryPolicy
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	jobs     map[jobKey]*memoryJob
	handlers map[string]Handler
	started  bool
	closed   bool
}

type jobKey struct {
	jobType string
	id      string
}

type memoryJob struct {
	job       Job
	processAt time.Time
	attempts  int
	active    bool
	timer     *time.Timer
}

func NewMemoryQueue(policy RetryPolicy, log *zap.Logger) *MemoryQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		policy:   policy,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[jobKey]*memoryJob),
		handlers: make(map[string]Handler),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New("memory queue is shut down")
	}

	key := jobKey{jobType: job.Type, id: job.ID}
	if _, ok := q.jobs[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	delay := job.Delay
	if delay < 0 {
		delay = 0
	}
	mj := &memoryJob{job: *job, processAt: time.Now().Add(delay)}
	q.jobs[key] = mj
	if q.started {
		q.arm(key, mj)
	}

	q.log.Debug("job scheduled", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Duration("delay", delay))
	return nil
}

func (q *MemoryQueue) Remove(ctx context.Context, jobType, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobKey{jobType: jobType, id: jobID}
	mj, ok := q.jobs[key]
	if !ok {
		return false, nil
	}
	if mj.active {
		return false, fmt.Errorf("%w: %s", ErrJobActive, jobID)
	}
	if mj.timer != nil {
		mj.timer.Stop()
	}
	delete(q.jobs, key)
	return true, nil
}

func (q *MemoryQueue) Lookup(ctx context.Context, jobType, jobID string) (*JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mj, ok := q.jobs[jobKey{jobType: jobType, id: jobID}]
	if !ok {
		return nil, nil
	}

	state := "scheduled"
	switch {
	case mj.active:
		state = "active"
	case mj.attempts > 0:
		state = "retry"
	}
	return &JobInfo{
		ID:          mj.job.ID,
		Type:        mj.job.Type,
		State:       state,
		ProcessAt:   mj.processAt,
		Retried:     mj.attempts,
		MaxAttempts: q.policy.MaxAttempts,
	}, nil
}

// Len is the number of jobs held, pending or in flight.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *MemoryQueue) Handle(jobType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New("memory queue is shut down")
	}
	if q.started {
		return nil
	}
	q.started = true
	for key, mj := range q.jobs {
		q.arm(key, mj)
	}
	return nil
}

// Shutdown stops timers and waits for in-flight handlers.
func (q *MemoryQueue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	for _, mj := range q.jobs {
		if mj.timer != nil {
			mj.timer.Stop()
		}
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// arm must be called with q.mu held.
func (q *MemoryQueue) arm(key jobKey, mj *memoryJob) {
	if mj.timer != nil {
		mj.timer.Stop()
	}
	mj.timer = time.AfterFunc(time.Until(mj.processAt), func() {
		q.fire(key, mj)
	})
}

func (q *MemoryQueue) fire(key jobKey, mj *memoryJob) {
	q.mu.Lock()
	if q.closed || q.jobs[key] != mj || mj.active {
		q.mu.Unlock()
		return
	}
	h, ok := q.handlers[key.jobType]
	if !ok {
		q.mu.Unlock()
		q.log.Warn("no handler registered, job left pending", zap.String("type", key.jobType), zap.String("job_id", key.id))
		return
	}
	mj.active = true
	mj.attempts++
	d := &Delivery{
		JobID:       mj.job.ID,
		Type:        mj.job.Type,
		Payload:     mj.job.Payload,
		Attempt:     mj.attempts,
		MaxAttempts: q.policy.MaxAttempts,
	}
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	err := h.ProcessJob(q.ctx, d)

	q.mu.Lock()
	defer q.mu.Unlock()
	mj.active = false

	switch {
	case err == nil:
		delete(q.jobs, key)
	case IsSkipRetry(err) || d.Final():
		delete(q.jobs, key)
		q.log.Warn("job dropped", zap.String("job_id", d.JobID), zap.Int("attempt", d.Attempt), zap.Error(err))
	default:
		backoff := q.policy.Backoff(d.Attempt)
		mj.processAt = time.Now().Add(backoff)
		q.log.Warn("job attempt failed, retrying",
			zap.String("job_id", d.JobID),
			zap.Int("attempt", d.Attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !q.closed {
			q.arm(key, mj)
		}
	}
}
