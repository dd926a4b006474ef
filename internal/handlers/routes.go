package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"tides/internal/middleware"
	"tides/internal/services"
	"tides/pkg/auth"
)

// RouteOptions carries the optional pieces of the route table
type RouteOptions struct {
	TokenAuth      *auth.TokenAuth
	WriteLimiter   *middleware.OwnerWriteLimiter
	WSConnLimiter  fiber.Handler
	AllowedOrigins []string
}

// RegisterRoutes mounts the tides API, the live WebSocket and health on app
func RegisterRoutes(app *fiber.App, service *services.TideService, opts RouteOptions) {
	healthHandler := NewHealthHandler(service)
	tideHandler := NewTideHandler(service)
	preferencesHandler := NewPreferencesHandler(service)
	eventsHandler := NewEventsHandler(service)
	liveHandler := NewLiveHandler(service)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", middleware.AuthMiddleware(opts.TokenAuth))
	if opts.WriteLimiter != nil {
		api.Use(opts.WriteLimiter.Middleware())
	}

	tides := api.Group("/tides")
	tides.Post("/", tideHandler.Create)
	tides.Get("/", tideHandler.List)
	tides.Post("/index/rebuild", tideHandler.RebuildIndex)
	tides.Get("/:id", tideHandler.Get)
	tides.Patch("/:id", tideHandler.Update)
	tides.Post("/:id/flow-sessions", tideHandler.AddFlowSession)
	tides.Post("/:id/energy", tideHandler.AddEnergyUpdate)
	tides.Post("/:id/task-links", tideHandler.AddTaskLink)
	tides.Get("/:id/task-links", tideHandler.ListTaskLinks)
	tides.Delete("/:id/task-links/:linkId", tideHandler.RemoveTaskLink)
	tides.Get("/:id/report", tideHandler.Report)
	tides.Post("/:id/insights", tideHandler.Insights)

	api.Get("/preferences", preferencesHandler.Get)
	api.Put("/preferences", preferencesHandler.Update)
	api.Post("/events", eventsHandler.Broadcast)

	// WebSocket route (requires auth)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if opts.WSConnLimiter != nil {
		app.Use("/ws/tides", opts.WSConnLimiter)
	}
	app.Use("/ws/tides", middleware.AuthMiddleware(opts.TokenAuth))
	app.Get("/ws/tides", websocket.New(liveHandler.Handle, websocket.Config{
		Origins: opts.AllowedOrigins,
	}))
}
