package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"github.com/maheshrc27/pinscheduler/internal/transfer"
	"go.uber.org/zap"
)

type PinHandler struct {
	s   service.PinService
	log *zap.Logger
}

func NewPinHandler(service service.PinService, log *zap.Logger) *PinHandler {
	return &PinHandler{s: service, log: log}
}

func (h *PinHandler) SchedulePin(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var body transfer.PinSchedule
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Unable to parse request body")
	}

	id, err := h.s.Schedule(c.Context(), userID, &body)
	if err != nil {
		return Error(c, h.log, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id": id,
	})
}

func (h *PinHandler) ListPins(c *fiber.Ctx) error {
	userID := GetUserID(c)

	limit := c.QueryInt("limit", 0)
	page := c.QueryInt("page", 1)
	if page < 1 {
		return badRequest(c, "page must be at least 1")
	}
	offset := 0
	if limit > 0 {
		offset = (page - 1) * limit
	}

	pins, err := h.s.List(c.Context(), userID, transfer.PinFilter{
		BoardID: c.Query("board_id"),
		Status:  c.Query("status"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return Error(c, h.log, err)
	}

	return c.Status(fiber.StatusOK).JSON(pins)
}

func (h *PinHandler) GetPin(c *fiber.Ctx) error {
	pin, err := h.s.Get(c.Context(), GetUserID(c), c.Params("id"))
	if err != nil {
		return Error(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(pin)
}

func (h *PinHandler) ListAttempts(c *fiber.Ctx) error {
	attempts, err := h.s.Attempts(c.Context(), GetUserID(c), c.Params("id"))
	if err != nil {
		return Error(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(attempts)
}

func (h *PinHandler) UpdatePin(c *fiber.Ctx) error {
	var body transfer.PinUpdate
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Unable to parse request body")
	}

	if err := h.s.Update(c.Context(), GetUserID(c), c.Params("id"), &body); err != nil {
		return Error(c, h.log, err)
	}
	return success(c)
}

func (h *PinHandler) ReschedulePin(c *fiber.Ctx) error {
	var body transfer.PinReschedule
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Unable to parse request body")
	}

	if err := h.s.Reschedule(c.Context(), GetUserID(c), c.Params("id"), body.ScheduledAt); err != nil {
		return Error(c, h.log, err)
	}
	return success(c)
}

func (h *PinHandler) CancelPin(c *fiber.Ctx) error {
	if err := h.s.Cancel(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return Error(c, h.log, err)
	}
	return success(c)
}

func (h *PinHandler) DeletePin(c *fiber.Ctx) error {
	if err := h.s.Delete(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return Error(c, h.log, err)
	}
	return success(c)
}
