package job

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/queue"
	"github.com/maheshrc27/pinscheduler/internal/repository/repotest"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"github.com/maheshrc27/pinscheduler/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	// results are returned in order; the last one repeats.
	results []error
}

func (p *fakePublisher) CreatePin(ctx context.Context, pin *models.Pin) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	var err error
	if len(p.results) > 0 {
		i := p.calls - 1
		if i >= len(p.results) {
			i = len(p.results) - 1
		}
		err = p.results[i]
	}
	if err != nil {
		return "", err
	}
	return "ext-" + pin.ID, nil
}

func (p *fakePublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func delivery(t *testing.T, pinID string, attempt int) *queue.Delivery {
	t.Helper()
	payload, err := json.Marshal(queue.PublishPinPayload{RecordID: pinID})
	require.NoError(t, err)
	return &queue.Delivery{JobID: pinID, Type: queue.TypePublishPin, Payload: payload, Attempt: attempt, MaxAttempts: 3}
}

func scheduledPin(id string) *models.Pin {
	return &models.Pin{ID: id, UserID: "user-1", PinterestAccountID: "acc-1", Status: models.PinStatusScheduled}
}

type jobFixture struct {
	pins      *repotest.PinRepository
	attempts  *repotest.PinAttemptRepository
	publisher *fakePublisher
	job       *PublishPinJob
}

func newJobFixture(results ...error) *jobFixture {
	f := &jobFixture{
		pins:      repotest.NewPinRepository(),
		attempts:  repotest.NewPinAttemptRepository(),
		publisher: &fakePublisher{results: results},
	}
	f.job = NewPublishPinJob(f.pins, f.attempts, f.publisher, zap.NewNop())
	return f
}

func (f *jobFixture) pin(t *testing.T, id string) *models.Pin {
	t.Helper()
	pin, err := f.pins.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, pin)
	return pin
}

func TestPublishSuccess(t *testing.T) {
	f := newJobFixture()
	f.pins.Put(scheduledPin("pin-1"))

	require.NoError(t, f.job.ProcessJob(context.Background(), delivery(t, "pin-1", 1)))

	pin := f.pin(t, "pin-1")
	assert.Equal(t, models.PinStatusPosted, pin.Status)
	assert.Equal(t, "ext-pin-1", pin.ExternalPinID)

	attempts, err := f.attempts.ListByPinID(context.Background(), "pin-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "ext-pin-1", attempts[0].ExternalPinID)
	assert.Empty(t, attempts[0].ErrorMessage)
}

func TestPublishSkips(t *testing.T) {
	deleted := scheduledPin("deleted")
	now := time.Now()
	deleted.DeletedAt = &now
	cancelled := scheduledPin("cancelled")
	cancelled.Status = models.PinStatusCancelled

	tests := []struct {
		name   string
		pin    *models.Pin
		status string
	}{
		{"missing", nil, ""},
		{"deleted", deleted, models.PinStatusScheduled},
		{"cancelled", cancelled, models.PinStatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newJobFixture()
			if tt.pin != nil {
				f.pins.Put(tt.pin)
			}

			require.NoError(t, f.job.ProcessJob(context.Background(), delivery(t, tt.name, 1)))
			assert.Equal(t, 0, f.publisher.Calls())
			if tt.pin != nil {
				assert.Equal(t, tt.status, f.pin(t, tt.name).Status)
			}
		})
	}
}

func TestPublishFailureRetriesThenFails(t *testing.T) {
	remote := service.ErrExternal("pinterest.create_pin", "pinterest returned status 503", nil, nil)
	f := newJobFixture(remote)
	f.pins.Put(scheduledPin("pin-1"))
	ctx := context.Background()

	err := f.job.ProcessJob(ctx, delivery(t, "pin-1", 1))
	assert.ErrorIs(t, err, remote)
	assert.Equal(t, models.PinStatusScheduled, f.pin(t, "pin-1").Status)

	require.NoError(t, f.job.ProcessJob(ctx, delivery(t, "pin-1", 3)))
	pin := f.pin(t, "pin-1")
	assert.Equal(t, models.PinStatusFailed, pin.Status)
	assert.Contains(t, pin.LastError, "status 503")

	attempts, err := f.attempts.ListByPinID(ctx, "pin-1")
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestPublishUnknownErrorIsRetried(t *testing.T) {
	f := newJobFixture(errors.New("connection reset"))
	f.pins.Put(scheduledPin("pin-1"))

	err := f.job.ProcessJob(context.Background(), delivery(t, "pin-1", 1))
	require.Error(t, err)
	assert.False(t, queue.IsSkipRetry(err))
}

func TestPublishPermanentErrorFailsImmediately(t *testing.T) {
	f := newJobFixture(service.ErrUnauthorized("pinterest.create_pin", "pinterest account is no longer linked"))
	f.pins.Put(scheduledPin("pin-1"))

	require.NoError(t, f.job.ProcessJob(context.Background(), delivery(t, "pin-1", 1)))
	assert.Equal(t, models.PinStatusFailed, f.pin(t, "pin-1").Status)
}

func TestPublishBadPayload(t *testing.T) {
	f := newJobFixture()

	err := f.job.ProcessJob(context.Background(), &queue.Delivery{JobID: "x", Payload: []byte("{"), Attempt: 1, MaxAttempts: 3})
	assert.True(t, queue.IsSkipRetry(err))

	err = f.job.ProcessJob(context.Background(), &queue.Delivery{JobID: "x", Payload: []byte("{}"), Attempt: 1, MaxAttempts: 3})
	assert.True(t, queue.IsSkipRetry(err))
}

func TestPublishStoreErrorIsRetried(t *testing.T) {
	f := newJobFixture()
	f.pins.Put(scheduledPin("pin-1"))
	f.pins.Err = errors.New("too many connections")

	err := f.job.ProcessJob(context.Background(), delivery(t, "pin-1", 1))
	require.Error(t, err)
	assert.Equal(t, 0, f.publisher.Calls())
}

// unreadablePins fails every read while writes still go through.
type unreadablePins struct {
	*repotest.PinRepository
}

func (r *unreadablePins) GetByID(ctx context.Context, id string) (*models.Pin, error) {
	return nil, errors.New("statement timeout")
}

func TestPublishUnreadablePinFailsOnLastAttempt(t *testing.T) {
	f := newJobFixture()
	f.pins.Put(scheduledPin("pin-1"))
	j := NewPublishPinJob(&unreadablePins{f.pins}, f.attempts, f.publisher, zap.NewNop())
	ctx := context.Background()

	require.Error(t, j.ProcessJob(ctx, delivery(t, "pin-1", 1)))
	assert.Equal(t, models.PinStatusScheduled, f.pin(t, "pin-1").Status)

	require.Error(t, j.ProcessJob(ctx, delivery(t, "pin-1", 3)))
	pin := f.pin(t, "pin-1")
	assert.Equal(t, models.PinStatusFailed, pin.Status)
	assert.Contains(t, pin.LastError, "statement timeout")
	assert.Equal(t, 0, f.publisher.Calls())
}

func TestPublishUnreadableDeletedPinKeepsStatus(t *testing.T) {
	f := newJobFixture()
	deleted := scheduledPin("pin-1")
	now := time.Now()
	deleted.DeletedAt = &now
	f.pins.Put(deleted)
	j := NewPublishPinJob(&unreadablePins{f.pins}, f.attempts, f.publisher, zap.NewNop())

	require.Error(t, j.ProcessJob(context.Background(), delivery(t, "pin-1", 3)))
	assert.Equal(t, models.PinStatusScheduled, f.pin(t, "pin-1").Status)
}

// pipeline wires the scheduler, a started memory queue and the worker.
type pipeline struct {
	*jobFixture
	queue *queue.MemoryQueue
	pinSvc service.PinService
}

func newPipeline(t *testing.T, results ...error) *pipeline {
	t.Helper()
	f := newJobFixture(results...)
	accounts := repotest.NewPinterestAccountRepository(&models.PinterestAccount{ID: "acc-1", UserID: "user-1", PinterestID: "p-1"})
	q := queue.NewMemoryQueue(queue.RetryPolicy{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond}, zap.NewNop())
	q.Handle(queue.TypePublishPin, f.job)
	require.NoError(t, q.Start())
	t.Cleanup(q.Shutdown)

	return &pipeline{
		jobFixture: f,
		queue:      q,
		pinSvc:     service.NewPinService(f.pins, accounts, f.attempts, q, zap.NewNop()),
	}
}

func (p *pipeline) schedule(t *testing.T, in time.Duration) string {
	t.Helper()
	id, err := p.pinSvc.Schedule(context.Background(), "user-1", &transfer.PinSchedule{
		BoardID:     "board-1",
		Title:       "Lemon tart",
		MediaType:   models.MediaTypeImage,
		MediaURL:    "https://cdn.example.com/tart.png",
		ScheduledAt: time.Now().Add(in),
	})
	require.NoError(t, err)
	return id
}

func (p *pipeline) status(id string) string {
	pin, _ := p.pins.GetByID(context.Background(), id)
	if pin == nil {
		return ""
	}
	return pin.Status
}

func TestPipelinePublishesWhenDue(t *testing.T) {
	p := newPipeline(t)

	id := p.schedule(t, 20*time.Millisecond)
	require.Eventually(t, func() bool { return p.status(id) == models.PinStatusPosted }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, p.publisher.Calls())
}

func TestPipelineRetriesUntilFailed(t *testing.T) {
	p := newPipeline(t, service.ErrExternal("pinterest.create_pin", "pinterest returned status 500", nil, nil))

	id := p.schedule(t, 0)
	require.Eventually(t, func() bool { return p.status(id) == models.PinStatusFailed }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, p.publisher.Calls())
}

func TestPipelineSucceedsOnRetry(t *testing.T) {
	p := newPipeline(t, service.ErrExternal("pinterest.create_pin", "timeout", nil, nil), nil)

	id := p.schedule(t, 0)
	require.Eventually(t, func() bool { return p.status(id) == models.PinStatusPosted }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, p.publisher.Calls())

	attempts, err := p.attempts.ListByPinID(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestPipelineCancelledPinNeverPublishes(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	id := p.schedule(t, 50*time.Millisecond)
	require.NoError(t, p.pinSvc.Cancel(ctx, "user-1", id))

	// A stale delivery racing with the cancel must not publish either.
	require.NoError(t, p.job.ProcessJob(ctx, delivery(t, id, 1)))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, p.publisher.Calls())
	assert.Equal(t, models.PinStatusCancelled, p.status(id))
}

func TestPipelineDeletedPinIsSkipped(t *testing.T) {
	p := newPipeline(t)

	id := p.schedule(t, 30*time.Millisecond)
	require.NoError(t, p.pinSvc.Delete(context.Background(), "user-1", id))

	require.Eventually(t, func() bool { return p.queue.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.publisher.Calls())
	assert.Equal(t, models.PinStatusScheduled, p.status(id))
}

func TestPipelineRescheduledPinFiresAtNewTime(t *testing.T) {
	p := newPipeline(t)

	id := p.schedule(t, 30*time.Millisecond)
	require.NoError(t, p.pinSvc.Reschedule(context.Background(), "user-1", id, time.Now().Add(time.Hour)))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, p.publisher.Calls())
	assert.Equal(t, 1, p.queue.Len())
}
