package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/pinscheduler/internal/service"
	"go.uber.org/zap"
)

type MediaHandler struct {
	s   service.MediaService
	log *zap.Logger
}

func NewMediaHandler(service service.MediaService, log *zap.Logger) *MediaHandler {
	return &MediaHandler{s: service, log: log}
}

// Upload stores the multipart "file" field and returns its public URL.
func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file selected")
	}

	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "Unable to read file")
	}
	defer f.Close()

	upload, err := h.s.Upload(c.Context(), GetUserID(c), f)
	if err != nil {
		return Error(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(upload)
}
