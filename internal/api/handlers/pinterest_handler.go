package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/pinscheduler/configs"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"github.com/maheshrc27/pinscheduler/pkg/utils"
	"go.uber.org/zap"
)

// The OAuth state is a short lived token naming the user that started the
// linking flow.
const stateLifetime = 10 * time.Minute

type PinterestHandler struct {
	s   service.PinterestService
	cfg config.Config
	log *zap.Logger
}

func NewPinterestHandler(service service.PinterestService, cfg config.Config, log *zap.Logger) *PinterestHandler {
	return &PinterestHandler{s: service, cfg: cfg, log: log}
}

// AddAccount redirects to the Pinterest consent page. The caller is
// identified by a session token in the state query parameter or the session
// cookie.
func (h *PinterestHandler) AddAccount(c *fiber.Ctx) error {
	token := c.Query("state")
	if token == "" {
		token = c.Cookies(h.cfg.CookieName)
	}

	claims, err := utils.ValidateToken(h.cfg.SecretKey, token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	state, err := utils.GenerateToken(h.cfg.SecretKey, claims.UserID, stateLifetime)
	if err != nil {
		return Error(c, h.log, err)
	}

	authURL, err := h.s.GetAuthURL(state)
	if err != nil {
		return Error(c, h.log, err)
	}
	return c.Redirect(authURL)
}

func (h *PinterestHandler) Callback(c *fiber.Ctx) error {
	if reason := c.Query("error"); reason != "" {
		return badRequest(c, "Pinterest authorization was denied")
	}

	claims, err := utils.ValidateToken(h.cfg.SecretKey, c.Query("state"))
	if err != nil {
		return badRequest(c, "Unable to validate user")
	}

	code := c.Query("code")
	if code == "" {
		return badRequest(c, "Missing authorization code")
	}

	account, err := h.s.Callback(c.Context(), claims.UserID, code)
	if err != nil {
		return Error(c, h.log, err)
	}

	h.log.Info("pinterest account linked",
		zap.String("user_id", claims.UserID),
		zap.String("pinterest_id", account.PinterestID))

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PinterestHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.ListAccounts(c.Context(), GetUserID(c))
	if err != nil {
		return Error(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *PinterestHandler) ListBoards(c *fiber.Ctx) error {
	boards, err := h.s.ListBoards(c.Context(), GetUserID(c), c.Query("accountId"))
	if err != nil {
		return Error(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(boards)
}
