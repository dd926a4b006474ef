package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tides/internal/logging"
	"tides/internal/models"
	"tides/internal/services"
)

// TideHandler serves the tide REST API
type TideHandler struct {
	service *services.TideService
}

// NewTideHandler creates a new tide handler
func NewTideHandler(service *services.TideService) *TideHandler {
	return &TideHandler{service: service}
}

// Create creates a tide
// POST /api/tides
func (h *TideHandler) Create(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	var req models.CreateTideRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	tide, err := h.service.CreateTide(c.UserContext(), owner, req)
	if err != nil {
		return respondError(c, err)
	}

	logging.WithTide(logging.WithOwner(owner), tide.ID).Info("tide created", "flow_type", tide.FlowType)
	return c.Status(fiber.StatusCreated).JSON(tide)
}

// List lists the owner's tides across all sources
// GET /api/tides?flow_type=daily&active_only=true
func (h *TideHandler) List(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	filter := models.ListFilter{
		FlowType:   models.FlowType(c.Query("flow_type")),
		ActiveOnly: c.QueryBool("active_only", false),
	}
	if filter.FlowType != "" && !filter.FlowType.Valid() {
		return respondError(c, models.NewValidationError("flow_type", "is not a known flow type"))
	}

	entries, err := h.service.ListTides(c.UserContext(), owner, filter)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"tides": entries,
		"count": len(entries),
	})
}

// Get returns one tide document
// GET /api/tides/:id
func (h *TideHandler) Get(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	tide, err := h.service.GetTide(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tide)
}

// Update changes name, description or status
// PATCH /api/tides/:id
func (h *TideHandler) Update(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	var req models.UpdateTideRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	tide, err := h.service.UpdateTide(c.UserContext(), owner, c.Params("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tide)
}

// AddFlowSession records a flow session
// POST /api/tides/:id/flow-sessions
func (h *TideHandler) AddFlowSession(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	var session models.FlowSession
	if err := c.BodyParser(&session); err != nil {
		return badBody(c)
	}

	added, err := h.service.AppendFlowSession(c.UserContext(), owner, c.Params("id"), session)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(added)
}

// AddEnergyUpdate records an energy check-in
// POST /api/tides/:id/energy
func (h *TideHandler) AddEnergyUpdate(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	var update models.EnergyUpdate
	if err := c.BodyParser(&update); err != nil {
		return badBody(c)
	}

	added, err := h.service.AppendEnergyUpdate(c.UserContext(), owner, c.Params("id"), update)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(added)
}

// AddTaskLink links an external task
// POST /api/tides/:id/task-links
func (h *TideHandler) AddTaskLink(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	var link models.TaskLink
	if err := c.BodyParser(&link); err != nil {
		return badBody(c)
	}

	added, err := h.service.AppendTaskLink(c.UserContext(), owner, c.Params("id"), link)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(added)
}

// ListTaskLinks returns the tide's task links
// GET /api/tides/:id/task-links
func (h *TideHandler) ListTaskLinks(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	links, err := h.service.ListTaskLinks(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"task_links": links,
		"count":      len(links),
	})
}

// RemoveTaskLink unlinks a task. Unknown links report removed=false.
// DELETE /api/tides/:id/task-links/:linkId
func (h *TideHandler) RemoveTaskLink(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	removed, err := h.service.RemoveTaskLink(c.UserContext(), owner, c.Params("id"), c.Params("linkId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"removed": removed})
}

// Report summarises the tide
// GET /api/tides/:id/report
func (h *TideHandler) Report(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	report, err := h.service.GetReport(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// Insights asks the prompt runner about the tide's report
// POST /api/tides/:id/insights
func (h *TideHandler) Insights(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	result, err := h.service.Insights(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// RebuildIndex recomputes the owner's index from the tide documents
// POST /api/tides/index/rebuild
func (h *TideHandler) RebuildIndex(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return nil
	}

	count, err := h.service.RebuildIndex(c.UserContext(), owner)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"entries": count})
}
