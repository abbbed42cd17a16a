// Package events defines the beacon input model and its sanitization rules.
//
// Beacons arrive as untyped JSON from untrusted clients. Decoding maps them
// onto a record of known-safe fields: out-of-contract values are nulled or
// truncated rather than rejected, and only structurally required fields
// (the page path or URL) can fail a request.
package events

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// WebVitals holds browser-reported page performance timings. A nil field
// means the client did not report that metric or sent garbage for it.
type WebVitals struct {
	LCP  *float64
	CLS  *float64
	FID  *float64
	FCP  *float64
	TTFB *float64
	INP  *float64
}

// Beacon is a sanitized analytics event as submitted by a client.
type Beacon struct {
	Path      string
	URL       string
	SiteURL   string
	Referrer  string
	SessionID string
	UserAgent string
	Browser   string

	ScreenWidth  *int64
	ScreenHeight *int64

	Vitals WebVitals
	Bounce *bool
}

// ValidationError reports required fields missing from a beacon.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Fields, ", "))
}

// DecodeBeacon parses a raw JSON payload into a Beacon, applying the
// per-field sanitization rules. Only malformed JSON is an error; individual
// bad fields are coerced to their null value.
func DecodeBeacon(raw []byte) (*Beacon, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	b := &Beacon{
		Path:      sanitizeString(payload["path"], MaxPathLength),
		URL:       sanitizeString(payload["url"], MaxSiteURLLength),
		SiteURL:   sanitizeString(payload["siteUrl"], MaxSiteURLLength),
		Referrer:  sanitizeString(payload["referrer"], MaxReferrerLength),
		SessionID: sanitizeString(payload["sessionId"], MaxSessionIDLength),
		UserAgent: sanitizeString(payload["userAgent"], MaxUserAgentLength),
		Browser:   sanitizeString(payload["browser"], MaxSessionIDLength),

		ScreenWidth:  sanitizePositiveInt(payload["screenWidth"]),
		ScreenHeight: sanitizePositiveInt(payload["screenHeight"]),

		Vitals: WebVitals{
			LCP:  sanitizeMetric(payload["lcp"]),
			CLS:  sanitizeMetric(payload["cls"]),
			FID:  sanitizeMetric(payload["fid"]),
			FCP:  sanitizeMetric(payload["fcp"]),
			TTFB: sanitizeMetric(payload["ttfb"]),
			INP:  sanitizeMetric(payload["inp"]),
		},

		Bounce: sanitizeBool(payload["bounce"]),
	}

	return b, nil
}

// RequireFields validates that the named beacon fields are present,
// returning a ValidationError listing every missing one.
func (b *Beacon) RequireFields(fields ...string) error {
	var missing []string
	for _, field := range fields {
		switch field {
		case "path":
			if b.Path == "" {
				missing = append(missing, "path")
			}
		case "url":
			if b.URL == "" {
				missing = append(missing, "url")
			}
		case "sessionId":
			if b.SessionID == "" {
				missing = append(missing, "sessionId")
			}
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// ReportingURL returns the URL that identifies where the beacon came from:
// the explicit site URL when present, else the page URL.
func (b *Beacon) ReportingURL() string {
	if b.SiteURL != "" {
		return b.SiteURL
	}
	return b.URL
}

// IsLocalTraffic reports whether the beacon's reporting URL points at a
// loopback host. Such beacons are acknowledged but never persisted.
func (b *Beacon) IsLocalTraffic() bool {
	reporting := b.ReportingURL()
	if reporting == "" {
		return false
	}

	if parsed, err := url.Parse(reporting); err == nil && parsed.Hostname() != "" {
		host := strings.ToLower(parsed.Hostname())
		for _, marker := range loopbackHosts {
			if host == marker {
				return true
			}
		}
		return false
	}

	// Unparseable reporting URLs fall back to a substring check.
	lowered := strings.ToLower(reporting)
	for _, marker := range loopbackHosts {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// sanitizeString accepts only string values, truncated to max characters.
// Anything else collapses to "".
func sanitizeString(v interface{}, max int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	if len(s) > max {
		return s[:max]
	}
	return s
}

// sanitizePositiveInt accepts only positive finite numbers.
func sanitizePositiveInt(v interface{}) *int64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil
	}
	n := int64(f)
	return &n
}

// sanitizeMetric accepts only non-negative finite numbers.
func sanitizeMetric(v interface{}) *float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil
	}
	return &f
}

func sanitizeBool(v interface{}) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}
