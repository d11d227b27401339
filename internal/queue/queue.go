// Package queue is the delayed job queue used by the scheduler and its
// workers. Jobs are addressed by a caller supplied id, which lets a caller
// replace or remove pending work without a lookup table.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TypePublishPin   = "pin:publish"
	TypeTokenRefresh = "pinterest:token-refresh"
)

const (
	QueuePins   = "pins"
	QueueTokens = "token-refresh"
)

var (
	// ErrDuplicateJob is returned by Enqueue when a job with the same id is
	// still pending. Callers replace a job by removing it first.
	ErrDuplicateJob = errors.New("job with this id already exists")
	// ErrJobActive is returned by Remove when the job is being executed and
	// can no longer be withdrawn.
	ErrJobActive = errors.New("job is being executed")
)

// Job is a unit of delayed work.
type Job struct {
	ID      string
	Type    string
	Payload []byte
	Delay   time.Duration
}

// JobInfo describes a job still held by the queue.
type JobInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	State       string    `json:"state"`
	ProcessAt   time.Time `json:"process_at"`
	Retried     int       `json:"retried"`
	MaxAttempts int       `json:"max_attempts"`
}

// Delivery is one attempt at executing a job.
type Delivery struct {
	JobID       string
	Type        string
	Payload     []byte
	Attempt     int // 1-based
	MaxAttempts int
}

// Final reports whether a failure of this attempt exhausts the job.
func (d *Delivery) Final() bool {
	return d.Attempt >= d.MaxAttempts
}

type Handler interface {
	ProcessJob(ctx context.Context, d *Delivery) error
}

type HandlerFunc func(ctx context.Context, d *Delivery) error

func (f HandlerFunc) ProcessJob(ctx context.Context, d *Delivery) error {
	return f(ctx, d)
}

// Queue is the producer side: add with delay, remove by id, inspect.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Remove withdraws a pending job. It reports false with a nil error
	// when no job with that id is held.
	Remove(ctx context.Context, jobType, jobID string) (bool, error)
	// Lookup returns nil, nil when the job is not held.
	Lookup(ctx context.Context, jobType, jobID string) (*JobInfo, error)
}

// Consumer delivers due jobs to registered handlers. Handlers run
// concurrently, one goroutine per in-flight job.
type Consumer interface {
	Handle(jobType string, h Handler)
	Start() error
	Shutdown()
}

// QueueName maps a job type to the backend queue holding it.
func QueueName(jobType string) string {
	if jobType == TypeTokenRefresh {
		return QueueTokens
	}
	return QueuePins
}

// RetryPolicy bounds the attempts of a job and spaces them out
// exponentially.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BackoffBase: 60 * time.Second}

const maxBackoff = 24 * time.Hour

// Backoff is the wait after the given failed attempt: base, 2*base, 4*base...
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// SkipRetry marks a delivery error as permanent. The queue drops the job
// instead of scheduling another attempt.
func SkipRetry(err error) error {
	if err == nil {
		return nil
	}
	return skipRetryError{err: err}
}

func IsSkipRetry(err error) bool {
	var e skipRetryError
	return errors.As(err, &e)
}

type skipRetryError struct{ err error }

func (e skipRetryError) Error() string { return fmt.Sprintf("skip retry: %v", e.err) }
func (e skipRetryError) Unwrap() error { return e.err }

type PublishPinPayload struct {
	RecordID string `json:"recordId"`
}

type TokenRefreshPayload struct {
	OwnerID           string `json:"ownerId"`
	ExternalAccountID string `json:"externalAccountId"`
}

// NewPublishPinJob builds the job for a pin. The job id is always the pin
// id, so a pin has at most one pending publish job.
func NewPublishPinJob(pinID string, delay time.Duration) (*Job, error) {
	if pinID == "" {
		return nil, errors.New("pin id is empty")
	}
	payload, err := json.Marshal(PublishPinPayload{RecordID: pinID})
	if err != nil {
		return nil, err
	}
	if delay < 0 {
		delay = 0
	}
	return &Job{ID: pinID, Type: TypePublishPin, Payload: payload, Delay: delay}, nil
}

// NewTokenRefreshJob builds a refresh job keyed by the external account id.
func NewTokenRefreshJob(ownerID, externalAccountID string) (*Job, error) {
	if externalAccountID == "" {
		return nil, errors.New("external account id is empty")
	}
	payload, err := json.Marshal(TokenRefreshPayload{OwnerID: ownerID, ExternalAccountID: externalAccountID})
	if err != nil {
		return nil, err
	}
	return &Job{ID: externalAccountID, Type: TypeTokenRefresh, Payload: payload}, nil
}

// Decode unmarshals the delivery payload. A payload that cannot be decoded
// will never succeed, so the error is marked with SkipRetry.
func (d *Delivery) Decode(v any) error {
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return SkipRetry(fmt.Errorf("decode %s payload for job %s: %w", d.Type, d.JobID, err))
	}
	return nil
}
