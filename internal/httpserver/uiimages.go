package httpserver

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/localai/gateway/internal/storage/blob"
)

// serveUIImage implements GET /ui/images/{filename}, streaming a
// previously persisted generated image back to an allowlisted caller.
func (h *handlers) serveUIImage(c *fiber.Ctx) error {
	filename := c.Params("filename")

	body, info, err := h.container.Images.Store().Get(c.UserContext(), filename)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return writeJSONError(c, fiber.StatusNotFound, "not_found", "image not found")
		}
		return writeJSONError(c, fiber.StatusInternalServerError, "internal_error", err.Error())
	}
	defer body.Close()

	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	_, err = io.Copy(c.Response().BodyWriter(), body)
	return err
}
