package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/queue"
	"github.com/maheshrc27/pinscheduler/internal/repository"
	"github.com/maheshrc27/pinscheduler/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PinService schedules pins for publication and keeps every scheduled pin
// paired with exactly one pending publish job, whose id is the pin id.
type PinService interface {
	Schedule(ctx context.Context, userID string, ps *transfer.PinSchedule) (string, error)
	Reschedule(ctx context.Context, userID, pinID string, scheduledAt time.Time) error
	Cancel(ctx context.Context, userID, pinID string) error
	Delete(ctx context.Context, userID, pinID string) error
	Get(ctx context.Context, userID, pinID string) (*models.Pin, error)
	List(ctx context.Context, userID string, filter transfer.PinFilter) ([]*models.Pin, error)
	Update(ctx context.Context, userID, pinID string, u *transfer.PinUpdate) error
	Attempts(ctx context.Context, userID, pinID string) ([]*models.PinAttempt, error)
}

type pinService struct {
	pins     repository.PinRepository
	accounts repository.PinterestAccountRepository
	attempts repository.PinAttemptRepository
	queue    queue.Queue
	log      *zap.Logger
	now      func() time.Time

	// locks serialize reschedule and cancel of the same pin within the process.
	locks [32]sync.Mutex
}

func NewPinService(
	pins repository.PinRepository,
	accounts repository.PinterestAccountRepository,
	attempts repository.PinAttemptRepository,
	q queue.Queue,
	log *zap.Logger) PinService {
	return &pinService{
		pins:     pins,
		accounts: accounts,
		attempts: attempts,
		queue:    q,
		log:      log,
		now:      time.Now,
	}
}

func (s *pinService) lock(pinID string) func() {
	h := fnv.New32a()
	h.Write([]byte(pinID))
	mu := &s.locks[h.Sum32()%uint32(len(s.locks))]
	mu.Lock()
	return mu.Unlock
}

func (s *pinService) Schedule(ctx context.Context, userID string, ps *transfer.PinSchedule) (string, error) {
	const op = "pin.schedule"

	if userID == "" {
		return "", ErrUnauthorized(op, "missing caller identity")
	}
	if err := validateSchedule(op, ps); err != nil {
		return "", err
	}

	account, err := s.account(ctx, userID, ps.AccountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", ErrUnauthorized(op, "no linked pinterest account")
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate pin id: %w", err)
	}

	pin := &models.Pin{
		ID:                 id,
		UserID:             userID,
		PinterestAccountID: account.ID,
		BoardID:            ps.BoardID,
		Title:              ps.Title,
		MediaType:          ps.MediaType,
		Description:        ps.Description,
		Link:               ps.Link,
		RichPinType:        ps.RichPinType,
		Price:              ps.Price,
		Availability:       ps.Availability,
		ScheduledAt:        ps.ScheduledAt,
		Status:             models.PinStatusScheduled,
	}
	if ps.MediaType == models.MediaTypeVideo {
		pin.VideoURL = ps.MediaURL
	} else {
		pin.ImageURL = ps.MediaURL
	}

	// The record must exist before a worker can receive its job.
	if err := s.pins.Create(ctx, pin); err != nil {
		return "", err
	}

	if err := s.enqueue(ctx, pin.ID, pin.ScheduledAt); err != nil {
		if _, delErr := s.pins.SoftDelete(ctx, pin.ID); delErr != nil {
			s.log.Error("failed to roll back unqueued pin", zap.String("pin_id", pin.ID), zap.Error(delErr))
		}
		return "", ErrExternal(op, "failed to queue pin", nil, err)
	}

	s.log.Info("pin scheduled",
		zap.String("pin_id", pin.ID),
		zap.String("user_id", userID),
		zap.Time("scheduled_at", pin.ScheduledAt))
	return pin.ID, nil
}

func (s *pinService) account(ctx context.Context, userID, accountID string) (*models.PinterestAccount, error) {
	if accountID == "" {
		return s.accounts.GetFirstByUserID(ctx, userID)
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil || account == nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, nil
	}
	return account, nil
}

func (s *pinService) enqueue(ctx context.Context, pinID string, scheduledAt time.Time) error {
	job, err := queue.NewPublishPinJob(pinID, scheduledAt.Sub(s.now()))
	if err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, job)
}

// withdraw removes the pending publish job of a pin. A missing job is fine;
// a job already executing is not.
func (s *pinService) withdraw(ctx context.Context, op, pinID string) (bool, error) {
	removed, err := s.queue.Remove(ctx, queue.TypePublishPin, pinID)
	if errors.Is(err, queue.ErrJobActive) {
		return false, ErrNotFound(op, "pin is being published, retry once the attempt finishes")
	}
	if err != nil {
		return false, ErrExternal(op, "failed to remove queued pin", nil, err)
	}
	return removed, nil
}

// restore puts back a job withdrawn by an operation that then failed.
func (s *pinService) restore(ctx context.Context, pin *models.Pin) {
	if err := s.enqueue(ctx, pin.ID, pin.ScheduledAt); err != nil {
		s.log.Error("failed to restore publish job", zap.String("pin_id", pin.ID), zap.Error(err))
	}
}

// revertSchedule puts back the previous time and job of a pin whose new job
// could not be queued.
func (s *pinService) revertSchedule(ctx context.Context, pin *models.Pin) {
	log := s.log.With(zap.String("pin_id", pin.ID))
	ok, err := s.pins.UpdateSchedule(ctx, pin.ID, pin.ScheduledAt)
	if err != nil || !ok {
		log.Error("pin rescheduled without a publish job", zap.Bool("updated", ok), zap.Error(err))
		return
	}
	if err := s.enqueue(ctx, pin.ID, pin.ScheduledAt); err != nil {
		log.Error("pin left without a publish job", zap.Time("scheduled_at", pin.ScheduledAt), zap.Error(err))
	}
}

func (s *pinService) scheduledPin(ctx context.Context, op, userID, pinID string) (*models.Pin, error) {
	pin, err := s.owned(ctx, op, userID, pinID)
	if err != nil {
		return nil, err
	}
	if pin.Status != models.PinStatusScheduled {
		return nil, ErrNotFound(op, "pin is not scheduled")
	}
	return pin, nil
}

func (s *pinService) owned(ctx context.Context, op, userID, pinID string) (*models.Pin, error) {
	if userID == "" {
		return nil, ErrUnauthorized(op, "missing caller identity")
	}
	if pinID == "" {
		return nil, ErrNotFound(op, "pin not found")
	}
	pin, err := s.pins.GetByUserID(ctx, pinID, userID)
	if err != nil {
		return nil, err
	}
	if pin == nil {
		return nil, ErrNotFound(op, "pin not found")
	}
	return pin, nil
}

func (s *pinService) Reschedule(ctx context.Context, userID, pinID string, scheduledAt time.Time) error {
	const op = "pin.reschedule"

	if scheduledAt.IsZero() {
		return ErrInvalid(op, "scheduled_at is required")
	}

	unlock := s.lock(pinID)
	defer unlock()

	pin, err := s.scheduledPin(ctx, op, userID, pinID)
	if err != nil {
		return err
	}

	removed, err := s.withdraw(ctx, op, pin.ID)
	if err != nil {
		return err
	}

	ok, err := s.pins.UpdateSchedule(ctx, pin.ID, scheduledAt)
	if err != nil {
		if removed {
			s.restore(ctx, pin)
		}
		return err
	}
	if !ok {
		return ErrNotFound(op, "pin is not scheduled")
	}

	if err := s.enqueue(ctx, pin.ID, scheduledAt); err != nil {
		s.revertSchedule(ctx, pin)
		return ErrExternal(op, "failed to queue pin", nil, err)
	}

	s.log.Info("pin rescheduled",
		zap.String("pin_id", pin.ID),
		zap.Time("from", pin.ScheduledAt),
		zap.Time("to", scheduledAt))
	return nil
}

func (s *pinService) Cancel(ctx context.Context, userID, pinID string) error {
	const op = "pin.cancel"

	unlock := s.lock(pinID)
	defer unlock()

	pin, err := s.scheduledPin(ctx, op, userID, pinID)
	if err != nil {
		return err
	}

	removed, err := s.withdraw(ctx, op, pin.ID)
	if err != nil {
		return err
	}

	ok, err := s.pins.Transition(ctx, pin.ID, models.PinStatusScheduled, models.PinStatusCancelled, repository.StatusChange{})
	if err != nil {
		if removed {
			s.restore(ctx, pin)
		}
		return err
	}
	if !ok {
		return ErrNotFound(op, "pin is not scheduled")
	}

	s.log.Info("pin cancelled", zap.String("pin_id", pin.ID), zap.Bool("job_removed", removed))
	return nil
}

// Delete soft-deletes a pin in any status. A pending job stays queued; the
// worker skips deleted pins when it fires.
func (s *pinService) Delete(ctx context.Context, userID, pinID string) error {
	const op = "pin.delete"

	pin, err := s.owned(ctx, op, userID, pinID)
	if err != nil {
		return err
	}

	ok, err := s.pins.SoftDelete(ctx, pin.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound(op, "pin not found")
	}

	s.log.Info("pin deleted", zap.String("pin_id", pin.ID), zap.String("status", pin.Status))
	return nil
}

func (s *pinService) Get(ctx context.Context, userID, pinID string) (*models.Pin, error) {
	return s.owned(ctx, "pin.get", userID, pinID)
}

func (s *pinService) List(ctx context.Context, userID string, filter transfer.PinFilter) ([]*models.Pin, error) {
	const op = "pin.list"

	if userID == "" {
		return nil, ErrUnauthorized(op, "missing caller identity")
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, ErrInvalid(op, "unknown status filter")
	}
	if filter.Offset < 0 {
		return nil, ErrInvalid(op, "offset must not be negative")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}

	pins, err := s.pins.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if pins == nil {
		pins = []*models.Pin{}
	}
	return pins, nil
}

func (s *pinService) Update(ctx context.Context, userID, pinID string, u *transfer.PinUpdate) error {
	const op = "pin.update"

	if u == nil || (u.Title == nil && u.Description == nil && u.Link == nil) {
		return ErrInvalid(op, "nothing to update")
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ErrInvalid(op, "title cannot be empty")
	}
	if u.Link != nil && *u.Link != "" && !validURL(*u.Link) {
		return ErrInvalid(op, "link is not a valid url")
	}

	pin, err := s.owned(ctx, op, userID, pinID)
	if err != nil {
		return err
	}

	ok, err := s.pins.UpdateDetails(ctx, pin.ID, u)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound(op, "pin not found")
	}
	return nil
}

func (s *pinService) Attempts(ctx context.Context, userID, pinID string) ([]*models.PinAttempt, error) {
	pin, err := s.owned(ctx, "pin.attempts", userID, pinID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByPinID(ctx, pin.ID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []*models.PinAttempt{}
	}
	return attempts, nil
}

func validateSchedule(op string, ps *transfer.PinSchedule) error {
	if ps == nil {
		return ErrInvalid(op, "pin data is required")
	}
	if ps.BoardID == "" {
		return ErrInvalid(op, "board_id is required")
	}
	if strings.TrimSpace(ps.Title) == "" {
		return ErrInvalid(op, "title is required")
	}
	if ps.MediaType != models.MediaTypeImage && ps.MediaType != models.MediaTypeVideo {
		return ErrInvalid(op, "media_type must be image or video")
	}
	if !validURL(ps.MediaURL) {
		return ErrInvalid(op, "media_url is not a valid url")
	}
	if ps.Link != "" && !validURL(ps.Link) {
		return ErrInvalid(op, "link is not a valid url")
	}
	if ps.ScheduledAt.IsZero() {
		return ErrInvalid(op, "scheduled_at is required")
	}

	switch ps.RichPinType {
	case "", models.RichPinRecipe, models.RichPinArticle, models.RichPinProduct:
	default:
		return ErrInvalid(op, "unknown rich_pin_type")
	}
	if ps.RichPinType == "" && (ps.Price != nil || ps.Availability != "") {
		return ErrInvalid(op, "price and availability need a rich_pin_type")
	}
	if ps.Price != nil && *ps.Price < 0 {
		return ErrInvalid(op, "price must not be negative")
	}
	switch ps.Availability {
	case "", models.AvailabilityInStock, models.AvailabilityOutOfStock, models.AvailabilityPreorder:
	default:
		return ErrInvalid(op, "unknown availability")
	}
	return nil
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validStatus(status string) bool {
	switch status {
	case models.PinStatusScheduled, models.PinStatusPosted, models.PinStatusFailed, models.PinStatusCancelled:
		return true
	}
	return false
}
