package events

// Field length limits applied during beacon sanitization. Values beyond
// these are truncated, never rejected.
const (
	MaxPathLength      = 500
	MaxReferrerLength  = 500
	MaxSiteURLLength   = 500
	MaxUserAgentLength = 1000
	MaxSessionIDLength = 100
)

// Loopback hostname markers that flag local development traffic.
var loopbackHosts = []string{"localhost", "127.0.0.1"}
