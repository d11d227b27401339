package job

import (
	"context"
	"errors"

	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/queue"
	"github.com/maheshrc27/pinscheduler/internal/repository"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"go.uber.org/zap"
)

// Publisher creates a pin on Pinterest and returns its Pinterest id.
type Publisher interface {
	CreatePin(ctx context.Context, pin *models.Pin) (string, error)
}

// PublishPinJob executes due publish jobs. It re-reads the pin on every
// attempt, so pins deleted or cancelled after their job was queued are
// never published.
type PublishPinJob struct {
	pins      repository.PinRepository
	attempts  repository.PinAttemptRepository
	publisher Publisher
	log       *zap.Logger
}

func NewPublishPinJob(
	pins repository.PinRepository,
	attempts repository.PinAttemptRepository,
	publisher Publisher,
	log *zap.Logger) *PublishPinJob {
	return &PublishPinJob{
		pins:      pins,
		attempts:  attempts,
		publisher: publisher,
		log:       log,
	}
}

func (j *PublishPinJob) ProcessJob(ctx context.Context, d *queue.Delivery) error {
	var payload queue.PublishPinPayload
	if err := d.Decode(&payload); err != nil {
		return err
	}
	if payload.RecordID == "" {
		return queue.SkipRetry(errors.New("publish job without a pin id"))
	}

	log := j.log.With(
		zap.String("pin_id", payload.RecordID),
		zap.Int("attempt", d.Attempt),
		zap.Int("max_attempts", d.MaxAttempts))

	pin, err := j.pins.GetByID(ctx, payload.RecordID)
	if err != nil {
		if d.Final() {
			j.giveUpUnread(ctx, log, payload.RecordID, err)
		}
		return err
	}
	switch {
	case pin == nil:
		log.Info("pin no longer exists, skipping")
		return nil
	case pin.Deleted():
		log.Info("pin was deleted, skipping")
		return nil
	case pin.Status != models.PinStatusScheduled:
		log.Info("pin is not scheduled, skipping", zap.String("status", pin.Status))
		return nil
	}

	externalID, err := j.publisher.CreatePin(ctx, pin)
	j.recordAttempt(ctx, log, pin.ID, d.Attempt, externalID, err)
	if err != nil {
		return j.fail(ctx, log, d, pin, err)
	}

	ok, err := j.pins.Transition(ctx, pin.ID, models.PinStatusScheduled, models.PinStatusPosted,
		repository.StatusChange{ExternalPinID: externalID})
	if err != nil {
		// Another attempt would publish the pin twice.
		log.Error("pin published but its status could not be saved",
			zap.String("external_pin_id", externalID),
			zap.Error(err))
		return queue.SkipRetry(err)
	}
	if !ok {
		log.Warn("pin left the scheduled state while publishing", zap.String("external_pin_id", externalID))
		return nil
	}

	log.Info("pin published", zap.String("external_pin_id", externalID))
	return nil
}

// fail hands a retryable error back to the queue, or marks the pin failed
// once no attempt is left or the error cannot go away by retrying.
func (j *PublishPinJob) fail(ctx context.Context, log *zap.Logger, d *queue.Delivery, pin *models.Pin, cause error) error {
	kind := service.KindOf(cause)
	retryable := kind == service.KindExternalService
	if retryable && !d.Final() {
		log.Warn("publish failed, queue will retry", zap.Error(cause))
		return cause
	}

	log.Error("publish failed, giving up", zap.Stringer("kind", kind), zap.Error(cause))
	ok, err := j.pins.Transition(ctx, pin.ID, models.PinStatusScheduled, models.PinStatusFailed,
		repository.StatusChange{LastError: cause.Error()})
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("pin left the scheduled state before it could be marked failed")
	}
	return nil
}

// giveUpUnread marks a pin failed when its last attempt could not even read
// it. The transition is conditional, so a pin that left scheduled is kept.
func (j *PublishPinJob) giveUpUnread(ctx context.Context, log *zap.Logger, pinID string, cause error) {
	ok, err := j.pins.Transition(ctx, pinID, models.PinStatusScheduled, models.PinStatusFailed,
		repository.StatusChange{LastError: cause.Error()})
	if err != nil {
		log.Error("pin could not be read on its last attempt and may stay scheduled",
			zap.NamedError("read_error", cause),
			zap.Error(err))
		return
	}
	log.Error("pin could not be read on its last attempt",
		zap.Bool("marked_failed", ok),
		zap.Error(cause))
}

func (j *PublishPinJob) recordAttempt(ctx context.Context, log *zap.Logger, pinID string, attempt int, externalID string, cause error) {
	a := &models.PinAttempt{
		PinID:         pinID,
		Attempt:       attempt,
		ExternalPinID: externalID,
	}
	if cause != nil {
		a.ErrorMessage = cause.Error()
	}
	if _, err := j.attempts.Create(ctx, a); err != nil {
		log.Warn("failed to record publish attempt", zap.Error(err))
	}
}
