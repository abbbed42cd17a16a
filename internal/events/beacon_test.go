package events_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lantern/internal/events"
)

func TestDecodeBeacon(t *testing.T) {
	t.Run("decodes a complete page view beacon", func(t *testing.T) {
		raw := []byte(`{
			"path": "/listing/42",
			"siteUrl": "https://phuket-property.com",
			"sessionId": "abc123",
			"referrer": "https://google.com/",
			"userAgent": "Mozilla/5.0",
			"screenWidth": 1280,
			"screenHeight": 800
		}`)

		b, err := events.DecodeBeacon(raw)
		require.NoError(t, err)

		assert.Equal(t, "/listing/42", b.Path)
		assert.Equal(t, "https://phuket-property.com", b.SiteURL)
		assert.Equal(t, "abc123", b.SessionID)
		assert.Equal(t, "https://google.com/", b.Referrer)
		require.NotNil(t, b.ScreenWidth)
		assert.Equal(t, int64(1280), *b.ScreenWidth)
		require.NotNil(t, b.ScreenHeight)
		assert.Equal(t, int64(800), *b.ScreenHeight)
	})

	t.Run("truncates over-long string fields", func(t *testing.T) {
		longPath := "/" + strings.Repeat("a", 600)
		longUA := strings.Repeat("b", 1200)
		longSession := strings.Repeat("c", 150)

		b, err := events.DecodeBeacon([]byte(`{
			"path": "` + longPath + `",
			"userAgent": "` + longUA + `",
			"sessionId": "` + longSession + `"
		}`))
		require.NoError(t, err)

		assert.Len(t, b.Path, events.MaxPathLength)
		assert.Len(t, b.UserAgent, events.MaxUserAgentLength)
		assert.Len(t, b.SessionID, events.MaxSessionIDLength)
	})

	t.Run("nulls non-string values in string fields", func(t *testing.T) {
		b, err := events.DecodeBeacon([]byte(`{"path":"/x","referrer":42,"sessionId":{"nested":true}}`))
		require.NoError(t, err)

		assert.Equal(t, "", b.Referrer)
		assert.Equal(t, "", b.SessionID)
	})

	t.Run("nulls non-positive screen dimensions", func(t *testing.T) {
		b, err := events.DecodeBeacon([]byte(`{"path":"/x","screenWidth":-5,"screenHeight":"800"}`))
		require.NoError(t, err)

		assert.Nil(t, b.ScreenWidth)
		assert.Nil(t, b.ScreenHeight)
	})

	t.Run("decodes web vitals, nulling negatives and non-numbers", func(t *testing.T) {
		b, err := events.DecodeBeacon([]byte(`{
			"url": "https://example.com/",
			"lcp": 2400.5,
			"cls": 0.04,
			"fid": -1,
			"ttfb": "fast",
			"inp": 180
		}`))
		require.NoError(t, err)

		require.NotNil(t, b.Vitals.LCP)
		assert.InDelta(t, 2400.5, *b.Vitals.LCP, 0.001)
		require.NotNil(t, b.Vitals.CLS)
		assert.InDelta(t, 0.04, *b.Vitals.CLS, 0.001)
		assert.Nil(t, b.Vitals.FID, "negative vitals are nulled")
		assert.Nil(t, b.Vitals.TTFB, "non-numeric vitals are nulled")
		require.NotNil(t, b.Vitals.INP)
		assert.Nil(t, b.Vitals.FCP)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := events.DecodeBeacon([]byte(`{"path":`))
		require.Error(t, err)
	})
}

func TestRequireFields(t *testing.T) {
	t.Run("passes when required fields are present", func(t *testing.T) {
		b := &events.Beacon{Path: "/x"}
		assert.NoError(t, b.RequireFields("path"))
	})

	t.Run("names every missing field", func(t *testing.T) {
		b := &events.Beacon{}
		err := b.RequireFields("path", "sessionId")
		require.Error(t, err)

		var vErr *events.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, []string{"path", "sessionId"}, vErr.Fields)
		assert.Contains(t, err.Error(), "path")
		assert.Contains(t, err.Error(), "sessionId")
	})
}

func TestIsLocalTraffic(t *testing.T) {
	cases := []struct {
		name     string
		beacon   events.Beacon
		expected bool
	}{
		{"localhost site URL", events.Beacon{SiteURL: "http://localhost:4321"}, true},
		{"loopback IP site URL", events.Beacon{SiteURL: "http://127.0.0.1:8080/page"}, true},
		{"localhost page URL", events.Beacon{URL: "http://localhost/page"}, true},
		{"production site URL", events.Beacon{SiteURL: "https://phuket-property.com"}, false},
		{"subdomain containing marker text", events.Beacon{SiteURL: "https://localhost.example.com"}, false},
		{"no URLs at all", events.Beacon{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.beacon.IsLocalTraffic())
		})
	}
}
