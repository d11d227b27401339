// Package repotest provides in-memory repositories with the same semantics
// as the Postgres ones, for tests of services and workers.
package repotest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/repository"
	"github.com/maheshrc27/pinscheduler/internal/transfer"
)

type PinRepository struct {
	mu   sync.Mutex
	pins map[string]*models.Pin

	// Err, when set, is returned by every method.
	Err error
}

func NewPinRepository() *PinRepository {
	return &PinRepository{pins: make(map[string]*models.Pin)}
}

func clonePin(p *models.Pin) *models.Pin {
	c := *p
	if p.Price != nil {
		price := *p.Price
		c.Price = &price
	}
	if p.DeletedAt != nil {
		deletedAt := *p.DeletedAt
		c.DeletedAt = &deletedAt
	}
	return &c
}

// Put stores a pin as is, bypassing Create.
func (r *PinRepository) Put(p *models.Pin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins[p.ID] = clonePin(p)
}

func (r *PinRepository) Create(ctx context.Context, pin *models.Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.pins[pin.ID]; ok {
		return fmt.Errorf("pin %s already exists", pin.ID)
	}
	now := time.Now()
	pin.CreatedAt, pin.UpdatedAt = now, now
	r.pins[pin.ID] = clonePin(pin)
	return nil
}

func (r *PinRepository) GetByID(ctx context.Context, id string) (*models.Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.pins[id]
	if !ok {
		return nil, nil
	}
	return clonePin(p), nil
}

func (r *PinRepository) GetByUserID(ctx context.Context, id, userID string) (*models.Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.pins[id]
	if !ok || p.UserID != userID || p.DeletedAt != nil {
		return nil, nil
	}
	return clonePin(p), nil
}

func (r *PinRepository) List(ctx context.Context, userID string, filter transfer.PinFilter) ([]*models.Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	var pins []*models.Pin
	for _, p := range r.pins {
		if p.UserID != userID || p.DeletedAt != nil {
			continue
		}
		if filter.BoardID != "" && p.BoardID != filter.BoardID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		pins = append(pins, clonePin(p))
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].CreatedAt.After(pins[j].CreatedAt) })

	if filter.Limit > 0 {
		if filter.Offset >= len(pins) {
			return nil, nil
		}
		end := filter.Offset + filter.Limit
		if end > len(pins) {
			end = len(pins)
		}
		pins = pins[filter.Offset:end]
	}
	return pins, nil
}

func (r *PinRepository) UpdateSchedule(ctx context.Context, id string, scheduledAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	p, ok := r.pins[id]
	if !ok || p.Status != models.PinStatusScheduled || p.DeletedAt != nil {
		return false, nil
	}
	p.ScheduledAt = scheduledAt
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *PinRepository) UpdateDetails(ctx context.Context, id string, u *transfer.PinUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	p, ok := r.pins[id]
	if !ok || p.DeletedAt != nil {
		return false, nil
	}
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Link != nil {
		p.Link = *u.Link
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *PinRepository) Transition(ctx context.Context, id, from, to string, change repository.StatusChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	p, ok := r.pins[id]
	if !ok || p.Status != from || p.DeletedAt != nil {
		return false, nil
	}
	p.Status = to
	if change.ExternalPinID != "" {
		p.ExternalPinID = change.ExternalPinID
	}
	p.LastError = change.LastError
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *PinRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	p, ok := r.pins[id]
	if !ok || p.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	p.DeletedAt = &now
	p.UpdatedAt = now
	return true, nil
}

type PinterestAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*models.PinterestAccount // keyed by row id
}

func NewPinterestAccountRepository(accounts ...*models.PinterestAccount) *PinterestAccountRepository {
	r := &PinterestAccountRepository{accounts: make(map[string]*models.PinterestAccount)}
	for _, acc := range accounts {
		c := *acc
		r.accounts[acc.ID] = &c
	}
	return r
}

func (r *PinterestAccountRepository) Upsert(ctx context.Context, acc *models.PinterestAccount) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.PinterestID == acc.PinterestID {
			id := existing.ID
			c := *acc
			c.ID = id
			c.CreatedAt = existing.CreatedAt
			c.UpdatedAt = time.Now()
			r.accounts[id] = &c
			return id, nil
		}
	}
	c := *acc
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	r.accounts[acc.ID] = &c
	return acc.ID, nil
}

func (r *PinterestAccountRepository) GetByID(ctx context.Context, id string) (*models.PinterestAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *acc
	return &c, nil
}

func (r *PinterestAccountRepository) GetByPinterestID(ctx context.Context, pinterestID string) (*models.PinterestAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.PinterestID == pinterestID {
			c := *acc
			return &c, nil
		}
	}
	return nil, nil
}

func (r *PinterestAccountRepository) GetFirstByUserID(ctx context.Context, userID string) (*models.PinterestAccount, error) {
	accounts, _ := r.ListByUserID(ctx, userID)
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts[0], nil
}

func (r *PinterestAccountRepository) ListByUserID(ctx context.Context, userID string) ([]*models.PinterestAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var accounts []*models.PinterestAccount
	for _, acc := range r.accounts {
		if acc.UserID == userID {
			c := *acc
			accounts = append(accounts, &c)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (r *PinterestAccountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.PinterestAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var accounts []*models.PinterestAccount
	for _, acc := range r.accounts {
		if acc.TokenExpiresAt.Before(before) && acc.RefreshToken != "" {
			c := *acc
			accounts = append(accounts, &c)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (r *PinterestAccountRepository) SetToken(ctx context.Context, pinterestID, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.PinterestID == pinterestID {
			acc.AccessToken = accessToken
			if refreshToken != "" {
				acc.RefreshToken = refreshToken
			}
			acc.TokenExpiresAt = expiresAt
			acc.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("set token for %s: %w", pinterestID, sql.ErrNoRows)
}

type PinAttemptRepository struct {
	mu       sync.Mutex
	attempts []*models.PinAttempt
}

func NewPinAttemptRepository() *PinAttemptRepository {
	return &PinAttemptRepository{}
}

func (r *PinAttemptRepository) Create(ctx context.Context, a *models.PinAttempt) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	c.ID = int64(len(r.attempts) + 1)
	c.CreatedAt = time.Now()
	r.attempts = append(r.attempts, &c)
	return c.ID, nil
}

func (r *PinAttemptRepository) ListByPinID(ctx context.Context, pinID string) ([]*models.PinAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var attempts []*models.PinAttempt
	for _, a := range r.attempts {
		if a.PinID == pinID {
			c := *a
			attempts = append(attempts, &c)
		}
	}
	return attempts, nil
}

type ApiKeyRepository struct {
	mu     sync.Mutex
	nextID int64
	keys   []*models.ApiKey
}

func NewApiKeyRepository() *ApiKeyRepository {
	return &ApiKeyRepository{}
}

func (r *ApiKeyRepository) GetUserIDByKey(ctx context.Context, apiKey string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.ApiKey == apiKey {
			return k.UserID, true, nil
		}
	}
	return "", false, nil
}

func (r *ApiKeyRepository) GetByUserID(ctx context.Context, userID string) ([]*models.ApiKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []*models.ApiKey
	for _, k := range r.keys {
		if k.UserID == userID {
			c := *k
			keys = append(keys, &c)
		}
	}
	return keys, nil
}

func (r *ApiKeyRepository) Create(ctx context.Context, apiKey *models.ApiKey) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := *apiKey
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	r.keys = append(r.keys, &c)
	return c.ID, nil
}

func (r *ApiKeyRepository) Remove(ctx context.Context, id int64, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.keys {
		if k.ID == id && k.UserID == userID {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

var (
	_ repository.PinRepository              = (*PinRepository)(nil)
	_ repository.PinterestAccountRepository = (*PinterestAccountRepository)(nil)
	_ repository.PinAttemptRepository       = (*PinAttemptRepository)(nil)
	_ repository.ApiKeyRepository           = (*ApiKeyRepository)(nil)
)
