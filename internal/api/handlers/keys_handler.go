package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"go.uber.org/zap"
)

type ApiKeyHandler struct {
	s   service.ApiKeyService
	log *zap.Logger
}

func NewApiKeyHandler(service service.ApiKeyService, log *zap.Logger) *ApiKeyHandler {
	return &ApiKeyHandler{s: service, log: log}
}

func (h *ApiKeyHandler) CreateApiKey(c *fiber.Ctx) error {
	key, err := h.s.Create(c.Context(), GetUserID(c))
	if err != nil {
		return Error(c, h.log, err)
	}

	return c.Status(fiber.StatusOK).JSON(key)
}

func (h *ApiKeyHandler) ListKeys(c *fiber.Ctx) error {
	keys, err := h.s.List(c.Context(), GetUserID(c))
	if err != nil {
		return Error(c, h.log, err)
	}

	return c.Status(fiber.StatusOK).JSON(keys)
}

func (h *ApiKeyHandler) RemoveAPIKey(c *fiber.Ctx) error {
	keyID := c.QueryInt("id", 0)
	if keyID <= 0 {
		return badRequest(c, "id is required")
	}

	if err := h.s.RemoveAPIKey(c.Context(), GetUserID(c), int64(keyID)); err != nil {
		return Error(c, h.log, err)
	}

	return success(c)
}
