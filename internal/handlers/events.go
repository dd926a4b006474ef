package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tides/internal/models"
	"tides/internal/services"
)

// EventsHandler lets a client push a custom live event to its own listeners
type EventsHandler struct {
	service *services.TideService
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(service *services.TideService) *EventsHandler {
	return &EventsHandler{service: service}
}

// Broadcast delivers an event to every listener of the caller
// POST /api/events
func (h *EventsHandler) Broadcast(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	var event models.LiveEvent
	if err := c.BodyParser(&event); err != nil {
		return badBody(c)
	}

	delivered, err := h.service.Broadcast(c.UserContext(), owner, event)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"delivered": delivered})
}
