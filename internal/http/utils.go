package http

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Proxy headers checked for the originating client IP, in preference order.
var clientIPHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// getClientIP extracts the best public client IP from proxy headers,
// falling back to the socket address. Loopback is the last resort so that
// local development still produces a parseable address.
func getClientIP(c *fiber.Ctx) string {
	if ip := firstPublicIP(strings.Split(c.Get("X-Forwarded-For"), ",")); ip != "" {
		return ip
	}

	for _, header := range clientIPHeaders {
		if ip := firstPublicIP([]string{c.Get(header)}); ip != "" {
			return ip
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := firstPublicIP(forwardedForValues(forwarded)); ip != "" {
			return ip
		}
	}

	if ip := firstPublicIP([]string{c.IP()}); ip != "" {
		return ip
	}

	return "127.0.0.1"
}

// firstPublicIP returns the first candidate that parses as a public IP.
func firstPublicIP(candidates []string) string {
	for _, raw := range candidates {
		clean := cleanIPCandidate(raw)
		if clean == "" {
			continue
		}
		ip := net.ParseIP(clean)
		if ip == nil || isPrivateIP(ip) {
			continue
		}
		return ip.String()
	}
	return ""
}

// cleanIPCandidate strips quoting, brackets, ports and zone identifiers.
func cleanIPCandidate(raw string) string {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, `"`)
	if clean == "" {
		return ""
	}

	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		clean = host
	}

	clean = strings.TrimPrefix(clean, "[")
	clean = strings.TrimSuffix(clean, "]")
	return clean
}

var privateIPBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",     // RFC 1918
		"172.16.0.0/12",  // RFC 1918
		"192.168.0.0/16", // RFC 1918
		"100.64.0.0/10",  // RFC 6598 CGNAT
		"fc00::/7",       // RFC 4193 Unique Local Addresses
		"fe80::/10",      // RFC 4291 Link-Local
		"::1/128",        // Loopback
		"127.0.0.0/8",    // Loopback
		"0.0.0.0/8",      // "This host"
		"::/128",         // Unspecified
	}

	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, _ := net.ParseCIDR(cidr)
		blocks = append(blocks, block)
	}
	return blocks
}()

func isPrivateIP(ip net.IP) bool {
	for _, block := range privateIPBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// forwardedForValues extracts the for= members of an RFC 7239 header.
func forwardedForValues(header string) []string {
	var candidates []string
	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				candidates = append(candidates, strings.TrimPrefix(part, "for="))
			}
		}
	}
	return candidates
}
