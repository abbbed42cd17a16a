// Package ingest normalizes validated beacons into remote store writes.
//
// A single Service handles every ingestion endpoint; the differences
// between the historical handler variants (two-table session tracking,
// conflict-upsert metrics, flattened metrics rows) live in Mapping
// implementations, not in separate code paths.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lantern/internal/events"
	"lantern/internal/geo"
	"lantern/internal/pipeline"
	"lantern/internal/pkg/useragent"
	"lantern/internal/visitors"
)

// Outcome describes what happened to a beacon.
type Outcome int

const (
	// OutcomePersisted means the beacon was written to the remote store.
	OutcomePersisted Outcome = iota
	// OutcomeIgnored means the beacon was acknowledged but dropped
	// (local development traffic).
	OutcomeIgnored
	// OutcomeDisabled means analytics is not configured; nothing was written.
	OutcomeDisabled
)

// Ingestor accepts sanitized beacons.
type Ingestor interface {
	Enabled() bool
	Ingest(ctx context.Context, beacon *events.Beacon, clientIP string) (Outcome, error)
}

// Disabled is the explicit no-op ingestor used when no remote store is
// configured. Beacons are acknowledged and discarded.
type Disabled struct{}

// Enabled reports false; the service runs without persistence.
func (Disabled) Enabled() bool { return false }

// Ingest acknowledges the beacon without any outbound call.
func (Disabled) Ingest(context.Context, *events.Beacon, string) (Outcome, error) {
	return OutcomeDisabled, nil
}

// Identity carries the pseudonymous fingerprints derived from a beacon.
type Identity struct {
	SessionFP   string
	UserAgentFP string
	Browser     string
}

// SessionState is what the store already knows about a session.
type SessionState struct {
	Known     bool
	Country   string
	CreatedAt time.Time
	PageCount int64
}

// HasCountry reports whether the stored session already resolved a country.
func (s SessionState) HasCountry() bool {
	return s.Known && s.Country != ""
}

// Mapping translates a beacon into the SQL statements of one schema variant.
type Mapping interface {
	Name() string
	RequiredFields() []string
	// SessionQuery returns the session lookup statement, or false when the
	// mapping writes without reading first.
	SessionQuery(id Identity) (pipeline.Stmt, bool)
	// NeedsGeo reports whether a geolocation lookup should run given the
	// stored session state.
	NeedsGeo(state SessionState) bool
	// Statements builds the write batch for one beacon.
	Statements(b *events.Beacon, id Identity, state SessionState, country string, now time.Time) []pipeline.Stmt
}

// Service is the enabled ingestor. One instance per endpoint, sharing the
// store and resolver, differing only in mapping.
type Service struct {
	store   pipeline.Executor
	geo     geo.Resolver
	salt    string
	mapping Mapping
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an ingestion service for the given schema mapping.
func NewService(store pipeline.Executor, resolver geo.Resolver, salt string, mapping Mapping, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		geo:     resolver,
		salt:    salt,
		mapping: mapping,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports true; writes reach the remote store.
func (s *Service) Enabled() bool { return true }

// Ingest validates, enriches and persists one beacon.
//
// The session read and the write batch are separate pipeline calls, so two
// concurrent beacons for a brand-new session can both observe "no session"
// and insert duplicate rows. The pipeline endpoint offers no transaction
// spanning calls; this data-quality caveat is accepted.
func (s *Service) Ingest(ctx context.Context, b *events.Beacon, clientIP string) (Outcome, error) {
	if err := b.RequireFields(s.mapping.RequiredFields()...); err != nil {
		return 0, err
	}

	if b.IsLocalTraffic() {
		s.logger.Debug("Ignoring local development beacon",
			slog.String("mapping", s.mapping.Name()),
			slog.String("reporting_url", b.ReportingURL()))
		return OutcomeIgnored, nil
	}

	id := s.identity(b)

	state := SessionState{}
	if query, ok := s.mapping.SessionQuery(id); ok {
		results, err := s.store.Execute(ctx, []pipeline.Stmt{query})
		if err != nil {
			return 0, fmt.Errorf("session lookup failed: %w", err)
		}
		state = sessionStateFromResults(results)
	}

	// Session-level country caching: once a session carries a country the
	// lookup is skipped and the stored value is reused.
	country := state.Country
	if s.mapping.NeedsGeo(state) {
		country = s.geo.Country(ctx, clientIP)
		if country == "" && state.Country != "" {
			country = state.Country
		}
	}

	now := s.now()
	stmts := s.mapping.Statements(b, id, state, country, now)
	if _, err := s.store.Execute(ctx, stmts); err != nil {
		return 0, fmt.Errorf("failed to persist beacon: %w", err)
	}

	s.logger.Debug("Beacon persisted",
		slog.String("mapping", s.mapping.Name()),
		slog.String("session", id.SessionFP),
		slog.String("country", country),
		slog.Bool("known_session", state.Known))
	return OutcomePersisted, nil
}

// identity derives the pseudonymous fingerprints for a beacon. The raw
// session id and user agent never reach the store.
func (s *Service) identity(b *events.Beacon) Identity {
	id := Identity{Browser: b.Browser}
	if b.SessionID != "" {
		id.SessionFP = visitors.Fingerprint(b.SessionID, s.salt)
	}
	if b.UserAgent != "" {
		id.UserAgentFP = visitors.Fingerprint(b.UserAgent, s.salt)
	}
	if id.Browser == "" {
		id.Browser = useragent.BrowserFamily(b.UserAgent)
	}
	return id
}

func sessionStateFromResults(results []pipeline.Result) SessionState {
	state := SessionState{}
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return state
	}

	row := results[0].Rows[0]
	state.Known = true
	if len(row) > 0 {
		state.Country, _ = row[0].Text()
	}
	if len(row) > 1 {
		if createdAt, ok := row[1].Int(); ok {
			state.CreatedAt = time.Unix(createdAt, 0).UTC()
		}
	}
	if len(row) > 2 {
		state.PageCount, _ = row[2].Int()
	}
	return state
}
