package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kbassist/backend/internal/articles"
	"github.com/kbassist/backend/internal/query"
)

const notReadyMessage = "The knowledge base is still loading. Please try again shortly."

// errorStatus maps engine errors to an HTTP status and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, query.ErrInvalidArgument):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, query.ErrEngineNotReady):
		return fiber.StatusServiceUnavailable, notReadyMessage
	case errors.Is(err, articles.ErrMalformedArticle):
		return fiber.StatusUnprocessableEntity, err.Error()
	}
	return fiber.StatusInternalServerError, "Failed to process request"
}

func writeError(c *fiber.Ctx, err error) error {
	status, msg := errorStatus(err)
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "5")
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
