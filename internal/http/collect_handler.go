// Package http contains the fiber request handlers for the public
// beacon-ingestion and aggregation endpoints.
package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"lantern/internal/events"
	"lantern/internal/ingest"
)

const errInvalidRequest = "Invalid request"

// CollectHandler accepts beacons for one ingestion endpoint. The three
// endpoints share this handler and differ only in the ingestor's schema
// mapping.
type CollectHandler struct {
	ingestor ingest.Ingestor
	logger   *slog.Logger
}

// NewCollectHandler creates a beacon handler backed by the given ingestor.
func NewCollectHandler(ingestor ingest.Ingestor, logger *slog.Logger) *CollectHandler {
	return &CollectHandler{ingestor: ingestor, logger: logger}
}

// CollectAction handles a POSTed beacon.
func (h *CollectHandler) CollectAction(c *fiber.Ctx) error {
	if !h.ingestor.Enabled() {
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "disabled": true})
	}

	beacon, err := events.DecodeBeacon(c.Body())
	if err != nil {
		h.logger.Debug("Failed to parse beacon", slog.Any("error", err))
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	// Fall back to the request header when the payload carries no UA.
	if beacon.UserAgent == "" {
		ua := c.Get("User-Agent")
		if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
			ua = forwardedUA
		}
		if len(ua) > events.MaxUserAgentLength {
			ua = ua[:events.MaxUserAgentLength]
		}
		beacon.UserAgent = ua
	}

	outcome, err := h.ingestor.Ingest(c.UserContext(), beacon, getClientIP(c))
	if err != nil {
		var vErr *events.ValidationError
		if errors.As(err, &vErr) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": vErr.Error()})
		}

		h.logger.Error("Failed to ingest beacon", slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	switch outcome {
	case ingest.OutcomeIgnored:
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "ignored": true})
	case ingest.OutcomeDisabled:
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "disabled": true})
	default:
		return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
	}
}
