package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"go.uber.org/zap"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch service.KindOf(err) {
	case service.KindUnauthorized:
		return fiber.StatusUnauthorized
	case service.KindNotFound:
		return fiber.StatusNotFound
	case service.KindInvalid:
		return fiber.StatusBadRequest
	case service.KindConfiguration:
		return fiber.StatusServiceUnavailable
	case service.KindExternalService:
		if service.PayloadOf(err) != nil {
			return fiber.StatusBadGateway
		}
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}

// Error writes the error body for err. Remote payloads are passed through
// under "details".
func Error(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := StatusOf(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}

	body := fiber.Map{"error": service.MessageOf(err)}
	if payload := service.PayloadOf(err); payload != nil {
		if json.Valid(payload) {
			body["details"] = json.RawMessage(payload)
		} else {
			body["details"] = string(payload)
		}
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func success(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}
