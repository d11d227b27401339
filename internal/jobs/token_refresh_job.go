package job

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/pinscheduler/internal/queue"
	"github.com/maheshrc27/pinscheduler/internal/repository"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// TokenRefresher renews the access token of a linked Pinterest account.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, ownerID, pinterestID string) error
}

// TokenRefreshJob finds accounts whose token is about to expire and queues
// a refresh for each; it also executes those refresh jobs.
type TokenRefreshJob struct {
	accounts  repository.PinterestAccountRepository
	refresher TokenRefresher
	queue     queue.Queue
	window    time.Duration
	log       *zap.Logger
}

func NewTokenRefreshJob(
	accounts repository.PinterestAccountRepository,
	refresher TokenRefresher,
	q queue.Queue,
	window time.Duration,
	log *zap.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{
		accounts:  accounts,
		refresher: refresher,
		queue:     q,
		window:    window,
		log:       log,
	}
}

func (c *TokenRefreshJob) ProcessJob(ctx context.Context, d *queue.Delivery) error {
	var payload queue.TokenRefreshPayload
	if err := d.Decode(&payload); err != nil {
		return err
	}

	err := c.refresher.RefreshAccessToken(ctx, payload.OwnerID, payload.ExternalAccountID)
	if err == nil {
		return nil
	}
	if service.KindOf(err) != service.KindExternalService {
		c.log.Error("token refresh cannot succeed",
			zap.String("pinterest_id", payload.ExternalAccountID),
			zap.Error(err))
		return queue.SkipRetry(err)
	}
	return err
}

// Schedule runs RefreshTokens on the given cron spec.
func (c *TokenRefreshJob) Schedule(spec string) (*cron.Cron, error) {
	cr := cron.New()
	if err := cr.AddFunc(spec, c.RefreshTokens); err != nil {
		return nil, err
	}
	cr.Start()
	return cr, nil
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	queued, err := c.ScanExpiring(ctx)
	if err != nil {
		c.log.Error("token refresh scan failed", zap.Error(err))
		return
	}
	if queued > 0 {
		c.log.Info("token refreshes queued", zap.Int("count", queued))
	}
}

// ScanExpiring queues a refresh job for every account whose token expires
// within the window. An account whose refresh is already queued is skipped.
func (c *TokenRefreshJob) ScanExpiring(ctx context.Context) (int, error) {
	accounts, err := c.accounts.ListExpiring(ctx, time.Now().Add(c.window))
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, acc := range accounts {
		job, err := queue.NewTokenRefreshJob(acc.UserID, acc.PinterestID)
		if err != nil {
			c.log.Warn("skipping account", zap.String("account_id", acc.ID), zap.Error(err))
			continue
		}
		err = c.queue.Enqueue(ctx, job)
		if errors.Is(err, queue.ErrDuplicateJob) {
			continue
		}
		if err != nil {
			c.log.Error("failed to queue token refresh", zap.String("pinterest_id", acc.PinterestID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued, nil
}

// Register wires both jobs into a consumer.
func Register(c queue.Consumer, publish *PublishPinJob, refresh *TokenRefreshJob) {
	c.Handle(queue.TypePublishPin, publish)
	c.Handle(queue.TypeTokenRefresh, refresh)
}
