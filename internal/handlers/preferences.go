package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tides/internal/services"
)

// PreferencesHandler serves the owner's actor-held preferences
type PreferencesHandler struct {
	service *services.TideService
}

// NewPreferencesHandler creates a new PreferencesHandler
func NewPreferencesHandler(service *services.TideService) *PreferencesHandler {
	return &PreferencesHandler{service: service}
}

// Get retrieves preferences
// GET /api/preferences
func (h *PreferencesHandler) Get(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	prefs, err := h.service.GetPreferences(c.UserContext(), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(prefs)
}

// Update merges preferences. An empty value deletes the key.
// PUT /api/preferences
func (h *PreferencesHandler) Update(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	var updates map[string]string
	if err := c.BodyParser(&updates); err != nil {
		return badBody(c)
	}

	prefs, err := h.service.UpdatePreferences(c.UserContext(), owner, updates)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(prefs)
}
