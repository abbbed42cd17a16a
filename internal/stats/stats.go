// Package stats implements the read-side aggregation queries over the
// remote store: per-day traffic, per-page statistics and country
// breakdowns for a clamped lookback window.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"lantern/internal/pipeline"
)

// Kind selects the aggregation report.
type Kind string

// Available report kinds.
const (
	KindDaily     Kind = "daily"
	KindPages     Kind = "pages"
	KindCountries Kind = "countries"
)

// Lookback window bounds, in days.
const (
	MinDays     = 1
	MaxDays     = 365
	DefaultDays = 30
)

// ErrUnknownKind is returned for unrecognized report types.
var ErrUnknownKind = fmt.Errorf("unknown report type")

// ClampDays bounds a requested lookback window to [MinDays, MaxDays].
// Non-positive requests fall back to the default window.
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days < MinDays {
		return MinDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// ParseKind validates a report type string. Empty selects the daily report.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindDaily, nil
	case KindDaily, KindPages, KindCountries:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// DailyStat is one day of traffic, most recent first.
type DailyStat struct {
	Date           string `json:"date"`
	Views          int64  `json:"views"`
	UniqueSessions int64  `json:"uniqueSessions"`
}

// PageStat is one page's traffic within the window, by volume.
type PageStat struct {
	Path           string  `json:"path"`
	Views          int64   `json:"views"`
	UniqueSessions int64   `json:"uniqueSessions"`
	BounceRate     float64 `json:"bounceRate"`
}

// CountryStat is one country's traffic within the window, by volume.
type CountryStat struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Views          int64  `json:"views"`
	UniqueSessions int64  `json:"uniqueSessions"`
}

// Report is one aggregation response. Exactly one data slice is populated,
// matching Kind.
type Report struct {
	Kind      Kind          `json:"type"`
	Days      int           `json:"days"`
	Daily     []DailyStat   `json:"daily,omitempty"`
	Pages     []PageStat    `json:"pages,omitempty"`
	Countries []CountryStat `json:"countries,omitempty"`
}

// Service executes aggregation queries through the pipeline client.
type Service struct {
	store     pipeline.Executor
	countries *gountries.Query
	caser     cases.Caser
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the read-side service.
func NewService(store pipeline.Executor, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		countries: gountries.New(),
		caser:     cases.Upper(language.AmericanEnglish),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Query runs one aggregation report over the clamped lookback window.
// The entire window's aggregate is returned in one response; no pagination.
func (s *Service) Query(ctx context.Context, kind Kind, days int) (*Report, error) {
	days = ClampDays(days)
	cutoff := s.now().AddDate(0, 0, -days).Unix()
	report := &Report{Kind: kind, Days: days}

	var err error
	switch kind {
	case KindDaily:
		report.Daily, err = s.daily(ctx, cutoff)
	case KindPages:
		report.Pages, err = s.pages(ctx, cutoff)
	case KindCountries:
		report.Countries, err = s.byCountry(ctx, cutoff)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) daily(ctx context.Context, cutoff int64) ([]DailyStat, error) {
	results, err := s.store.Execute(ctx, []pipeline.Stmt{{
		SQL: `SELECT date(created_at, 'unixepoch') AS day,
				COUNT(*) AS views,
				COUNT(DISTINCT session_id) AS unique_sessions
			FROM page_views
			WHERE created_at >= ?
			GROUP BY day
			ORDER BY day DESC`,
		Args: []pipeline.Value{pipeline.Integer(cutoff)},
	}})
	if err != nil {
		return nil, fmt.Errorf("daily aggregation failed: %w", err)
	}

	stats := []DailyStat{}
	for _, row := range firstResultRows(results) {
		if len(row) < 3 {
			continue
		}
		stat := DailyStat{}
		stat.Date, _ = row[0].Text()
		stat.Views, _ = row[1].Int()
		stat.UniqueSessions, _ = row[2].Int()
		stats = append(stats, stat)
	}
	return stats, nil
}

func (s *Service) pages(ctx context.Context, cutoff int64) ([]PageStat, error) {
	results, err := s.store.Execute(ctx, []pipeline.Stmt{{
		SQL: `SELECT path,
				COUNT(*) AS views,
				COUNT(DISTINCT session_id) AS unique_sessions,
				AVG(CASE WHEN bounce = 1 THEN 1.0 WHEN bounce = 0 THEN 0.0 END) AS bounce_rate
			FROM page_views
			WHERE created_at >= ?
			GROUP BY path
			ORDER BY views DESC`,
		Args: []pipeline.Value{pipeline.Integer(cutoff)},
	}})
	if err != nil {
		return nil, fmt.Errorf("pages aggregation failed: %w", err)
	}

	stats := []PageStat{}
	for _, row := range firstResultRows(results) {
		if len(row) < 4 {
			continue
		}
		stat := PageStat{}
		stat.Path, _ = row[0].Text()
		stat.Views, _ = row[1].Int()
		stat.UniqueSessions, _ = row[2].Int()
		if rate, ok := row[3].Float(); ok {
			stat.BounceRate = rate
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

func (s *Service) byCountry(ctx context.Context, cutoff int64) ([]CountryStat, error) {
	results, err := s.store.Execute(ctx, []pipeline.Stmt{{
		SQL: `SELECT s.country,
				COUNT(*) AS views,
				COUNT(DISTINCT pv.session_id) AS unique_sessions
			FROM page_views pv
			JOIN sessions s ON s.session_id = pv.session_id
			WHERE pv.created_at >= ?
			GROUP BY s.country
			ORDER BY views DESC`,
		Args: []pipeline.Value{pipeline.Integer(cutoff)},
	}})
	if err != nil {
		return nil, fmt.Errorf("country aggregation failed: %w", err)
	}

	stats := []CountryStat{}
	for _, row := range firstResultRows(results) {
		if len(row) < 3 {
			continue
		}
		stat := CountryStat{}
		stat.Code, _ = row[0].Text()
		stat.Name = s.countryName(stat.Code)
		stat.Views, _ = row[1].Int()
		stat.UniqueSessions, _ = row[2].Int()
		stats = append(stats, stat)
	}
	return stats, nil
}

// countryName resolves a display name for an ISO code, falling back to the
// uppercased code for anything the dataset does not know.
func (s *Service) countryName(code string) string {
	if code == "" {
		return "Unknown"
	}
	country, err := s.countries.FindCountryByAlpha(code)
	if err != nil {
		return s.caser.String(code)
	}
	return country.Name.Common
}

func firstResultRows(results []pipeline.Result) []pipeline.Row {
	if len(results) == 0 {
		return nil
	}
	return results[0].Rows
}
