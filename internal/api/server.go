package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	config "github.com/maheshrc27/pinscheduler/configs"
	"github.com/maheshrc27/pinscheduler/internal/api/handlers"
	"github.com/maheshrc27/pinscheduler/internal/api/middleware"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"go.uber.org/zap"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Pins      service.PinService
	Pinterest service.PinterestService
	Media     service.MediaService
	ApiKeys   service.ApiKeyService
}

// NewApp builds the fiber app with every route registered.
func NewApp(cfg config.Config, svc Services, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             int(service.MaxMediaSize) + 1024*1024,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error("unhandled request error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(cfg, svc.ApiKeys, log)

	pinterest := handlers.NewPinterestHandler(svc.Pinterest, cfg, log)
	app.Get("/auth/pinterest", pinterest.AddAccount)
	app.Get("/auth/pinterest/callback", pinterest.Callback)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	pins := handlers.NewPinHandler(svc.Pins, log)
	api.Post("/pins/schedule", pins.SchedulePin)
	api.Get("/pins", pins.ListPins)
	api.Get("/pins/:id", pins.GetPin)
	api.Get("/pins/:id/attempts", pins.ListAttempts)
	api.Patch("/pins/:id", pins.UpdatePin)
	api.Patch("/pins/:id/schedule", pins.ReschedulePin)
	api.Post("/pins/:id/cancel", pins.CancelPin)
	api.Delete("/pins/:id", pins.DeletePin)

	api.Get("/accounts", pinterest.ListAccounts)
	api.Get("/boards", pinterest.ListBoards)

	media := handlers.NewMediaHandler(svc.Media, log)
	api.Post("/media", media.Upload)

	apiKeys := handlers.NewApiKeyHandler(svc.ApiKeys, log)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	return app
}
