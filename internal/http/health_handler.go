package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Analytics string    `json:"analytics"`
}

// HealthAction handles the health check endpoint.
func HealthAction(analyticsEnabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		analytics := "enabled"
		if !analyticsEnabled {
			analytics = "disabled"
		}

		return c.JSON(HealthStatus{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Analytics: analytics,
		})
	}
}
