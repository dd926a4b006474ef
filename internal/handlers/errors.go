package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"tides/internal/models"
	"tides/internal/services"
)

// statusFor maps the error taxonomy onto HTTP statuses
func statusFor(err error) int {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrActorUnavailable),
		errors.Is(err, models.ErrStoreUnavailable),
		errors.Is(err, services.ErrInsightsUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Internal errors are logged and
// not echoed to the client.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)

	message := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [API] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "Internal server error"
	}

	body := fiber.Map{"error": message}
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) && validationErr.Field != "" {
		body["field"] = validationErr.Field
	}
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return c.Status(status).JSON(body)
}

// ownerID returns the authenticated owner or writes a 401
func ownerID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
		return "", false
	}
	return userID, true
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
	})
}
