// Package geo resolves visitor IP addresses to ISO country codes.
//
// Resolution prefers a local GeoLite2 database when one is configured and
// present on disk; otherwise it falls back to an external HTTP geolocation
// service bounded by a hard client timeout. Every failure mode degrades to
// an empty country code, never an error.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"

	"lantern/internal/config"
)

// Resolver maps a client IP to a lowercase ISO alpha-2 country code,
// or "" when the country cannot be determined.
type Resolver interface {
	Country(ctx context.Context, ipAddress string) string
}

// Service is the production resolver.
type Service struct {
	mu         sync.RWMutex
	db         *geoip2.Reader
	dbPath     string
	apiURL     string
	httpClient *http.Client
	countries  *gountries.Query
	logger     *slog.Logger
}

// NewService builds a resolver from configuration. A missing GeoLite2
// database is not an error; the HTTP fallback covers it.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	s := &Service{
		dbPath: cfg.GeoDBPath,
		apiURL: cfg.GeoAPIURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.GeoTimeoutSeconds) * time.Second,
		},
		countries: gountries.New(),
		logger:    logger,
	}
	s.db = s.openDatabase()
	return s
}

func (s *Service) openDatabase() *geoip2.Reader {
	if s.dbPath == "" {
		s.logger.Debug("GeoLite2 database path not configured")
		return nil
	}

	if _, err := os.Stat(s.dbPath); os.IsNotExist(err) {
		s.logger.Info("GeoLite2 database not found - using HTTP geolocation fallback",
			slog.String("path", s.dbPath),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		s.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", s.dbPath),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(s.dbPath)
	if err != nil {
		s.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", s.dbPath),
			slog.Any("error", err))
		return nil
	}

	s.logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", s.dbPath))
	return db
}

// Reload reopens the GeoLite2 database from disk.
// Call this after downloading a new database file.
func (s *Service) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
	}
	s.db = s.openDatabase()
}

// Country resolves an IP to a lowercase ISO alpha-2 code, or "" on any
// failure (unparseable IP, lookup miss, network error, timeout).
func (s *Service) Country(ctx context.Context, ipAddress string) string {
	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		s.logger.Debug("Failed to parse IP address", slog.String("ip_address", ipAddress))
		return ""
	}

	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()

	if db != nil {
		return s.lookupLocal(db, ip)
	}
	return s.lookupRemote(ctx, ip.String())
}

func (s *Service) lookupLocal(db *geoip2.Reader, ip net.IP) string {
	record, err := db.Country(ip)
	if err != nil {
		s.logger.Debug("GeoLite2 lookup failed",
			slog.String("ip_address", ip.String()),
			slog.Any("error", err))
		return ""
	}
	return s.normalize(record.Country.IsoCode)
}

func (s *Service) lookupRemote(ctx context.Context, ipAddress string) string {
	url := fmt.Sprintf(s.apiURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.Debug("Failed to build geolocation request", slog.Any("error", err))
		return ""
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Timeouts and network errors both degrade to an unknown country.
		s.logger.Debug("Geolocation request failed",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("Geolocation service returned non-success status",
			slog.Int("status", resp.StatusCode))
		return ""
	}

	var payload struct {
		CountryCode string `json:"countryCode"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Debug("Failed to decode geolocation response", slog.Any("error", err))
		return ""
	}

	return s.normalize(payload.CountryCode)
}

// normalize validates a country code through the gountries dataset and
// lowercases it. Invalid or placeholder codes collapse to "".
func (s *Service) normalize(code string) string {
	if code == "" || code == "--" {
		return ""
	}
	country, err := s.countries.FindCountryByAlpha(code)
	if err != nil {
		s.logger.Debug("Unrecognized country code", slog.String("code", code))
		return ""
	}
	return strings.ToLower(country.Alpha2)
}
