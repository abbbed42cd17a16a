package http

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func runIPRequest(t *testing.T, headers map[string]string) string {
	t.Helper()

	var got string
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got = getClientIP(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	return got
}

func TestGetClientIP(t *testing.T) {
	t.Run("prefers first public IP in X-Forwarded-For", func(t *testing.T) {
		ip := runIPRequest(t, map[string]string{
			"X-Forwarded-For": "10.0.0.5, 49.228.1.1, 203.0.113.9",
		})
		assert.Equal(t, "49.228.1.1", ip)
	})

	t.Run("skips private addresses", func(t *testing.T) {
		ip := runIPRequest(t, map[string]string{
			"X-Forwarded-For": "192.168.1.10, 172.16.0.4",
			"X-Real-IP":       "49.228.1.2",
		})
		assert.Equal(t, "49.228.1.2", ip)
	})

	t.Run("parses RFC 7239 Forwarded header", func(t *testing.T) {
		ip := runIPRequest(t, map[string]string{
			"Forwarded": `for="49.228.1.3";proto=https`,
		})
		assert.Equal(t, "49.228.1.3", ip)
	})

	t.Run("handles IP with port", func(t *testing.T) {
		ip := runIPRequest(t, map[string]string{
			"X-Forwarded-For": "49.228.1.4:52811",
		})
		assert.Equal(t, "49.228.1.4", ip)
	})

	t.Run("falls back to loopback when nothing public is available", func(t *testing.T) {
		ip := runIPRequest(t, nil)
		assert.Equal(t, "127.0.0.1", ip)
	})
}
