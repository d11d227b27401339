package service

import (
	"context"
	"fmt"

	"github.com/maheshrc27/pinscheduler/internal/models"
	"github.com/maheshrc27/pinscheduler/internal/repository"
	"github.com/maheshrc27/pinscheduler/pkg/utils"
	"go.uber.org/zap"
)

const maxApiKeys = 5

type ApiKeyService interface {
	Create(ctx context.Context, userID string) (*models.ApiKey, error)
	List(ctx context.Context, userID string) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (string, error)
	RemoveAPIKey(ctx context.Context, userID string, keyID int64) error
}

type apiKeyService struct {
	k   repository.ApiKeyRepository
	log *zap.Logger
}

func NewApiKeyService(k repository.ApiKeyRepository, log *zap.Logger) ApiKeyService {
	return &apiKeyService{
		k:   k,
		log: log,
	}
}

func (s *apiKeyService) Create(ctx context.Context, userID string) (*models.ApiKey, error) {
	const op = "api_key.create"

	if userID == "" {
		return nil, ErrUnauthorized(op, "missing caller identity")
	}

	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(keys) >= maxApiKeys {
		return nil, ErrInvalid(op, fmt.Sprintf("Only %d API Keys can be created.", maxApiKeys))
	}

	key, err := utils.GenerateAPIKey(24)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	apiKey := &models.ApiKey{
		UserID: userID,
		ApiKey: key,
	}
	apiKey.ID, err = s.k.Create(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	s.log.Info("api key created", zap.String("user_id", userID), zap.Int64("key_id", apiKey.ID))
	return apiKey, nil
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (string, error) {
	const op = "api_key.lookup"

	if apiKey == "" {
		return "", ErrUnauthorized(op, "missing api key")
	}
	userID, ok, err := s.k.GetUserIDByKey(ctx, apiKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnauthorized(op, "invalid api key")
	}
	return userID, nil
}

func (s *apiKeyService) List(ctx context.Context, userID string) ([]*models.ApiKey, error) {
	if userID == "" {
		return nil, ErrUnauthorized("api_key.list", "missing caller identity")
	}
	apiKeys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Keys are only shown in full when created.
	masked := make([]*models.ApiKey, 0, len(apiKeys))
	for _, k := range apiKeys {
		masked = append(masked, k.Masked())
	}
	return masked, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID string, keyID int64) error {
	const op = "api_key.remove"

	if userID == "" {
		return ErrUnauthorized(op, "missing caller identity")
	}
	if keyID <= 0 {
		return ErrInvalid(op, "key id is not valid")
	}

	removed, err := s.k.Remove(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound(op, "Key doesn't exist")
	}
	return nil
}
