package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"lantern/internal/stats"
)

// StatsHandler serves the read-side aggregation endpoint.
type StatsHandler struct {
	service *stats.Service // nil when analytics is disabled
	logger  *slog.Logger
}

// NewStatsHandler creates the aggregation handler. A nil service puts the
// endpoint in disabled mode.
func NewStatsHandler(service *stats.Service, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{service: service, logger: logger}
}

// StatsAction handles GET ?type=daily|pages|countries&days=N.
func (h *StatsHandler) StatsAction(c *fiber.Ctx) error {
	if h.service == nil {
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "disabled": true})
	}

	kind, err := stats.ParseKind(c.Query("type"))
	if err != nil {
		if errors.Is(err, stats.ErrUnknownKind) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	days := c.QueryInt("days", stats.DefaultDays)

	report, err := h.service.Query(c.UserContext(), kind, days)
	if err != nil {
		h.logger.Error("Aggregation query failed",
			slog.String("type", string(kind)),
			slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(report)
}
