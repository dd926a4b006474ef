package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"tides/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	service *services.TideService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.TideService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	sources := h.service.Resolver().Sources()
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"actors":    h.service.Actors().Count(),
		"sources":   ids,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
