package ingest

import (
	"time"

	"lantern/internal/events"
	"lantern/internal/pipeline"
)

// SessionsMapping is the session/page-view schema: a sessions row keyed by
// session fingerprint plus an append-only page_views row per beacon. The
// session row is routed through an explicit read (insert when absent,
// in-place update when present).
type SessionsMapping struct{}

func (SessionsMapping) Name() string { return "sessions" }

func (SessionsMapping) RequiredFields() []string { return []string{"path"} }

func (SessionsMapping) SessionQuery(id Identity) (pipeline.Stmt, bool) {
	return pipeline.Stmt{
		SQL:  "SELECT country, created_at, page_count FROM sessions WHERE session_id = ?",
		Args: []pipeline.Value{pipeline.Text(id.SessionFP)},
	}, true
}

// NeedsGeo skips the lookup once the stored session carries a country.
func (SessionsMapping) NeedsGeo(state SessionState) bool {
	return !state.HasCountry()
}

func (SessionsMapping) Statements(b *events.Beacon, id Identity, state SessionState, country string, now time.Time) []pipeline.Stmt {
	epoch := now.Unix()
	var stmts []pipeline.Stmt

	if !state.Known {
		stmts = append(stmts, pipeline.Stmt{
			SQL: `INSERT INTO sessions
				(session_id, site_url, first_page, last_page, user_agent_hash, country,
				 screen_width, screen_height, page_count, duration_seconds, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
			Args: []pipeline.Value{
				pipeline.Text(id.SessionFP),
				pipeline.TextOrNull(b.ReportingURL()),
				pipeline.Text(b.Path),
				pipeline.Text(b.Path),
				pipeline.TextOrNull(id.UserAgentFP),
				pipeline.TextOrNull(country),
				pipeline.IntegerOrNull(b.ScreenWidth),
				pipeline.IntegerOrNull(b.ScreenHeight),
				pipeline.Integer(epoch),
				pipeline.Integer(epoch),
			},
		})
	} else {
		// Country only moves from null to a value, never the reverse.
		duration := int64(0)
		if !state.CreatedAt.IsZero() {
			duration = epoch - state.CreatedAt.Unix()
		}
		stmts = append(stmts, pipeline.Stmt{
			SQL: `UPDATE sessions SET
				country = COALESCE(country, ?),
				last_page = ?,
				user_agent_hash = COALESCE(user_agent_hash, ?),
				screen_width = COALESCE(screen_width, ?),
				screen_height = COALESCE(screen_height, ?),
				page_count = page_count + 1,
				duration_seconds = ?,
				updated_at = ?
				WHERE session_id = ?`,
			Args: []pipeline.Value{
				pipeline.TextOrNull(country),
				pipeline.Text(b.Path),
				pipeline.TextOrNull(id.UserAgentFP),
				pipeline.IntegerOrNull(b.ScreenWidth),
				pipeline.IntegerOrNull(b.ScreenHeight),
				pipeline.Integer(duration),
				pipeline.Integer(epoch),
				pipeline.Text(id.SessionFP),
			},
		})
	}

	stmts = append(stmts, pipeline.Stmt{
		SQL: `INSERT INTO page_views (session_id, path, referrer, bounce, created_at)
			VALUES (?, ?, ?, ?, ?)`,
		Args: []pipeline.Value{
			pipeline.TextOrNull(id.SessionFP),
			pipeline.Text(b.Path),
			pipeline.TextOrNull(b.Referrer),
			boolOrNull(b.Bounce),
			pipeline.Integer(epoch),
		},
	})

	return stmts
}

// UpsertMapping is the web-vitals schema: a sessions row maintained with a
// single atomic insert-or-on-conflict-update (null columns only) plus a
// pageviews row carrying the vital measurements.
type UpsertMapping struct{}

func (UpsertMapping) Name() string { return "upsert" }

func (UpsertMapping) RequiredFields() []string { return []string{"url"} }

// SessionQuery declines: the conflict clause replaces the read.
func (UpsertMapping) SessionQuery(Identity) (pipeline.Stmt, bool) {
	return pipeline.Stmt{}, false
}

func (UpsertMapping) NeedsGeo(SessionState) bool { return true }

func (UpsertMapping) Statements(b *events.Beacon, id Identity, _ SessionState, country string, now time.Time) []pipeline.Stmt {
	epoch := now.Unix()
	return []pipeline.Stmt{
		{
			SQL: `INSERT INTO sessions
				(session_id, site_url, first_page, last_page, user_agent_hash, browser, country,
				 screen_width, screen_height, page_count, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
				ON CONFLICT(session_id) DO UPDATE SET
					last_page = excluded.last_page,
					browser = COALESCE(sessions.browser, excluded.browser),
					country = COALESCE(sessions.country, excluded.country),
					screen_width = COALESCE(sessions.screen_width, excluded.screen_width),
					screen_height = COALESCE(sessions.screen_height, excluded.screen_height),
					page_count = sessions.page_count + 1,
					updated_at = excluded.updated_at`,
			Args: []pipeline.Value{
				pipeline.Text(id.SessionFP),
				pipeline.TextOrNull(b.ReportingURL()),
				pipeline.Text(b.URL),
				pipeline.Text(b.URL),
				pipeline.TextOrNull(id.UserAgentFP),
				pipeline.TextOrNull(id.Browser),
				pipeline.TextOrNull(country),
				pipeline.IntegerOrNull(b.ScreenWidth),
				pipeline.IntegerOrNull(b.ScreenHeight),
				pipeline.Integer(epoch),
				pipeline.Integer(epoch),
			},
		},
		{
			SQL: `INSERT INTO pageviews
				(session_id, url, referrer, browser, lcp, cls, fid, fcp, ttfb, inp, bounce, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			Args: []pipeline.Value{
				pipeline.TextOrNull(id.SessionFP),
				pipeline.Text(b.URL),
				pipeline.TextOrNull(b.Referrer),
				pipeline.TextOrNull(id.Browser),
				pipeline.FloatOrNull(b.Vitals.LCP),
				pipeline.FloatOrNull(b.Vitals.CLS),
				pipeline.FloatOrNull(b.Vitals.FID),
				pipeline.FloatOrNull(b.Vitals.FCP),
				pipeline.FloatOrNull(b.Vitals.TTFB),
				pipeline.FloatOrNull(b.Vitals.INP),
				boolOrNull(b.Bounce),
				pipeline.Integer(epoch),
			},
		},
	}
}

// FlatMapping is the single-table schema: one denormalized metrics row per
// beacon, no session bookkeeping at all.
type FlatMapping struct{}

func (FlatMapping) Name() string { return "flat" }

func (FlatMapping) RequiredFields() []string { return []string{"url"} }

func (FlatMapping) SessionQuery(Identity) (pipeline.Stmt, bool) {
	return pipeline.Stmt{}, false
}

func (FlatMapping) NeedsGeo(SessionState) bool { return true }

func (FlatMapping) Statements(b *events.Beacon, id Identity, _ SessionState, country string, now time.Time) []pipeline.Stmt {
	return []pipeline.Stmt{
		{
			SQL: `INSERT INTO metrics
				(session_id, site_url, url, referrer, user_agent_hash, browser, country,
				 screen_width, screen_height, lcp, cls, fid, fcp, ttfb, inp, bounce, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			Args: []pipeline.Value{
				pipeline.TextOrNull(id.SessionFP),
				pipeline.TextOrNull(b.ReportingURL()),
				pipeline.Text(b.URL),
				pipeline.TextOrNull(b.Referrer),
				pipeline.TextOrNull(id.UserAgentFP),
				pipeline.TextOrNull(id.Browser),
				pipeline.TextOrNull(country),
				pipeline.IntegerOrNull(b.ScreenWidth),
				pipeline.IntegerOrNull(b.ScreenHeight),
				pipeline.FloatOrNull(b.Vitals.LCP),
				pipeline.FloatOrNull(b.Vitals.CLS),
				pipeline.FloatOrNull(b.Vitals.FID),
				pipeline.FloatOrNull(b.Vitals.FCP),
				pipeline.FloatOrNull(b.Vitals.TTFB),
				pipeline.FloatOrNull(b.Vitals.INP),
				boolOrNull(b.Bounce),
				pipeline.Integer(now.Unix()),
			},
		},
	}
}

func boolOrNull(b *bool) pipeline.Value {
	if b == nil {
		return pipeline.Null()
	}
	if *b {
		return pipeline.Integer(1)
	}
	return pipeline.Integer(0)
}
