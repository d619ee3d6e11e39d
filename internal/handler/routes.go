package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	ws "github.com/stemsplit/api/internal/websocket"
)

// Routes bundles the handlers mounted by RegisterRoutes
type Routes struct {
	Health   *HealthHandler
	Separate *SeparateHandler
	Queue    *QueueHandler
	Track    *TrackHandler
	Logs     *LogsHandler
	Hub      *ws.Hub
}

func RegisterRoutes(app *fiber.App, r Routes) {
	app.Get("/", r.Health.Index)
	app.Get("/health", r.Health.Health)

	api := app.Group("/apiv1")
	api.Post("/separate", r.Separate.Separate)
	api.Get("/queue", r.Queue.List)
	api.Get("/queue/dead", r.Queue.Dead)
	api.Get("/track/:hash/:part", r.Track.Get)
	api.Get("/remove/:hash/:part", r.Track.Remove)
	api.Delete("/remove/:hash/:part", r.Track.Remove)
	api.Get("/logs", r.Logs.List)

	if r.Hub == nil {
		return
	}
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:hash", websocket.New(func(c *websocket.Conn) {
		r.Hub.HandleConnection(c, c.Params("hash"))
	}))
}
