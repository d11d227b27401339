package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/pinscheduler/configs"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"github.com/maheshrc27/pinscheduler/pkg/utils"
	"go.uber.org/zap"
)

type AuthMiddleware struct {
	s   service.ApiKeyService
	cfg config.Config
	log *zap.Logger
}

func NewAuthMiddleware(cfg config.Config, service service.ApiKeyService, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{s: service, cfg: cfg, log: log}
}

// AuthMiddleware resolves the caller from an API key (api_key query or
// X-API-Key header) or a session token (cookie or bearer header) and stores
// it in the user_id local.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Query("api_key")
		if apiKey == "" {
			apiKey = c.Get("X-API-Key")
		}
		tokenString := c.Cookies(m.cfg.CookieName)
		if tokenString == "" {
			tokenString = bearerToken(c.Get(fiber.HeaderAuthorization))
		}

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Keys or cookies",
			})
		}

		if apiKey != "" {
			userID, err := m.s.GetUserID(c.Context(), apiKey)
			if err != nil {
				status := fiber.StatusUnauthorized
				if service.KindOf(err) != service.KindUnauthorized {
					m.log.Error("api key lookup failed", zap.Error(err))
					status = fiber.StatusInternalServerError
				}
				return c.Status(status).JSON(fiber.Map{
					"error": service.MessageOf(err),
				})
			}
			c.Locals("user_id", userID)
			return c.Next()
		}

		claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cfg.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1, // Delete cookie
			})

			m.log.Debug("token validation failed", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", claims.UserID)
		return c.Next()
	}
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
