package internal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	lanternhttp "lantern/internal/http"
)

// publicCORSConfig is the CORS configuration for the public endpoints.
// Beacons arrive cross-origin from arbitrary sites, so this is permissive.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Track            *lanternhttp.CollectHandler
	Metrics          *lanternhttp.CollectHandler
	Events           *lanternhttp.CollectHandler
	Stats            *lanternhttp.StatsHandler
	AnalyticsEnabled bool
}

// MountRoutes registers all application routes on the fiber app.
func MountRoutes(app *fiber.App, h Handlers) {
	app.Use(cors.New(publicCORSConfig))

	noContent := func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}

	// Health check endpoint
	health := lanternhttp.HealthAction(h.AnalyticsEnabled)
	app.Get("/_health", health)
	app.Head("/_health", health)

	// === PUBLIC API ROUTES ===
	app.Post("/x/api/v1/track", h.Track.CollectAction)
	app.Get("/x/api/v1/track", h.Stats.StatsAction)
	app.Options("/x/api/v1/track", noContent)

	app.Post("/x/api/v1/metrics", h.Metrics.CollectAction)
	app.Options("/x/api/v1/metrics", noContent)

	app.Post("/x/api/v1/events", h.Events.CollectAction)
	app.Options("/x/api/v1/events", noContent)
}
