package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lantern/internal/events"
	"lantern/internal/ingest"
	"lantern/internal/testsupport"
	"lantern/internal/visitors"
)

const testSalt = "test-salt"

func pageViewBeacon() *events.Beacon {
	return &events.Beacon{
		Path:      "/listing/42",
		SiteURL:   "https://phuket-property.com",
		SessionID: "abc123",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
}

func metricsBeacon() *events.Beacon {
	lcp := 2400.0
	return &events.Beacon{
		URL:       "https://phuket-property.com/listing/42",
		SessionID: "abc123",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		Vitals:    events.WebVitals{LCP: &lcp},
	}
}

func TestSessionsMappingIngest(t *testing.T) {
	t.Run("new session inserts session and page view rows", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		store.QueueResponse(testsupport.EmptySessionResult())
		resolver := &testsupport.StaticResolver{Code: "th"}

		svc := ingest.NewService(store, resolver, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())
		outcome, err := svc.Ingest(context.Background(), pageViewBeacon(), "49.228.1.1")
		require.NoError(t, err)
		assert.Equal(t, ingest.OutcomePersisted, outcome)

		require.Equal(t, 2, store.CallCount(), "one lookup call, one write batch")

		lookup := store.Batches[0]
		require.Len(t, lookup, 1)
		assert.Contains(t, lookup[0].SQL, "SELECT country")

		writes := store.Batches[1]
		require.Len(t, writes, 2)
		assert.Contains(t, writes[0].SQL, "INSERT INTO sessions")
		assert.Contains(t, writes[1].SQL, "INSERT INTO page_views")

		// Both rows reference the hashed fingerprint, never the raw id.
		fp := visitors.Fingerprint("abc123", testSalt)
		assert.Equal(t, fp, writes[0].Args[0].Value)
		assert.Equal(t, fp, writes[1].Args[0].Value)
		for _, stmt := range writes {
			for _, arg := range stmt.Args {
				if s, ok := arg.Value.(string); ok {
					assert.NotEqual(t, "abc123", s, "raw session id must not be persisted")
				}
			}
		}

		assert.Equal(t, 1, resolver.Calls())
	})

	t.Run("known session without country updates in place and resolves country", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		createdAt := time.Now().UTC().Add(-90 * time.Second).Unix()
		store.QueueResponse(testsupport.SessionRowResult("", createdAt, 2))
		resolver := &testsupport.StaticResolver{Code: "th"}

		svc := ingest.NewService(store, resolver, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())
		_, err := svc.Ingest(context.Background(), pageViewBeacon(), "49.228.1.1")
		require.NoError(t, err)

		writes := store.Batches[1]
		require.Len(t, writes, 2)
		assert.Contains(t, writes[0].SQL, "UPDATE sessions")
		assert.Contains(t, writes[0].SQL, "page_count = page_count + 1")
		assert.Contains(t, writes[0].SQL, "duration_seconds")
		assert.Equal(t, 1, resolver.Calls())

		// Elapsed duration recomputed from the original timestamp.
		duration := writes[0].Args[5]
		durationStr, ok := duration.Value.(string)
		require.True(t, ok)
		assert.NotEqual(t, "0", durationStr)
	})

	t.Run("known session with country skips the geolocation lookup", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		store.QueueResponse(testsupport.SessionRowResult("th", time.Now().Unix(), 2))
		resolver := &testsupport.StaticResolver{Code: "de"}

		svc := ingest.NewService(store, resolver, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())
		_, err := svc.Ingest(context.Background(), pageViewBeacon(), "49.228.1.1")
		require.NoError(t, err)

		assert.Equal(t, 0, resolver.Calls(), "resolved country must be reused")

		// The stored country travels into the COALESCE update unchanged.
		writes := store.Batches[1]
		assert.Equal(t, "th", writes[0].Args[0].Value)
	})

	t.Run("missing path is rejected before any store call", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		resolver := &testsupport.StaticResolver{}

		svc := ingest.NewService(store, resolver, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())
		b := pageViewBeacon()
		b.Path = ""
		_, err := svc.Ingest(context.Background(), b, "49.228.1.1")

		var vErr *events.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, []string{"path"}, vErr.Fields)
		assert.Equal(t, 0, store.CallCount())
	})

	t.Run("local traffic is ignored without store calls", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		resolver := &testsupport.StaticResolver{}

		svc := ingest.NewService(store, resolver, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())
		b := pageViewBeacon()
		b.SiteURL = "http://localhost:4321"
		outcome, err := svc.Ingest(context.Background(), b, "127.0.0.1")
		require.NoError(t, err)

		assert.Equal(t, ingest.OutcomeIgnored, outcome)
		assert.Equal(t, 0, store.CallCount())
	})

	t.Run("geolocation failure degrades to null country", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		store.QueueResponse(testsupport.EmptySessionResult())
		resolver := &testsupport.StaticResolver{Code: ""}

		svc := ingest.NewService(store, resolver, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())
		outcome, err := svc.Ingest(context.Background(), pageViewBeacon(), "49.228.1.1")
		require.NoError(t, err, "request succeeds despite geo failure")
		assert.Equal(t, ingest.OutcomePersisted, outcome)

		writes := store.Batches[1]
		country := writes[0].Args[5]
		assert.Equal(t, "null", countryType(country.Type))
	})

	t.Run("store failure surfaces the downstream diagnostic", func(t *testing.T) {
		store := &testsupport.FakeStore{Err: errors.New("no such table: sessions")}
		resolver := &testsupport.StaticResolver{Code: "th"}

		svc := ingest.NewService(store, resolver, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())
		_, err := svc.Ingest(context.Background(), pageViewBeacon(), "49.228.1.1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such table: sessions")
	})
}

func countryType(t string) string {
	if t == "" {
		return "null"
	}
	return t
}

func TestUpsertMappingIngest(t *testing.T) {
	t.Run("single batch with conflict upsert and vitals insert", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		resolver := &testsupport.StaticResolver{Code: "th"}

		svc := ingest.NewService(store, resolver, testSalt, ingest.UpsertMapping{}, testsupport.NewLogger())
		outcome, err := svc.Ingest(context.Background(), metricsBeacon(), "49.228.1.1")
		require.NoError(t, err)
		assert.Equal(t, ingest.OutcomePersisted, outcome)

		require.Equal(t, 1, store.CallCount(), "no read-before-write in upsert variant")
		batch := store.Batches[0]
		require.Len(t, batch, 2)
		assert.Contains(t, batch[0].SQL, "ON CONFLICT(session_id) DO UPDATE")
		assert.Contains(t, batch[0].SQL, "COALESCE(sessions.country, excluded.country)")
		assert.Contains(t, batch[1].SQL, "INSERT INTO pageviews")

		assert.Equal(t, 1, resolver.Calls(), "upsert variant always resolves")
	})

	t.Run("derives browser family from user agent when not supplied", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		svc := ingest.NewService(store, &testsupport.StaticResolver{}, testSalt, ingest.UpsertMapping{}, testsupport.NewLogger())

		_, err := svc.Ingest(context.Background(), metricsBeacon(), "49.228.1.1")
		require.NoError(t, err)

		batch := store.Batches[0]
		assert.Equal(t, "firefox", batch[0].Args[5].Value)
	})

	t.Run("trusts a client-supplied browser value", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		svc := ingest.NewService(store, &testsupport.StaticResolver{}, testSalt, ingest.UpsertMapping{}, testsupport.NewLogger())

		b := metricsBeacon()
		b.Browser = "arc"
		_, err := svc.Ingest(context.Background(), b, "49.228.1.1")
		require.NoError(t, err)

		batch := store.Batches[0]
		assert.Equal(t, "arc", batch[0].Args[5].Value)
	})

	t.Run("missing url is rejected", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		svc := ingest.NewService(store, &testsupport.StaticResolver{}, testSalt, ingest.UpsertMapping{}, testsupport.NewLogger())

		b := metricsBeacon()
		b.URL = ""
		_, err := svc.Ingest(context.Background(), b, "49.228.1.1")

		var vErr *events.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, []string{"url"}, vErr.Fields)
		assert.Equal(t, 0, store.CallCount())
	})
}

func TestFlatMappingIngest(t *testing.T) {
	t.Run("single denormalized insert", func(t *testing.T) {
		store := &testsupport.FakeStore{}
		resolver := &testsupport.StaticResolver{Code: "th"}

		svc := ingest.NewService(store, resolver, testSalt, ingest.FlatMapping{}, testsupport.NewLogger())
		outcome, err := svc.Ingest(context.Background(), metricsBeacon(), "49.228.1.1")
		require.NoError(t, err)
		assert.Equal(t, ingest.OutcomePersisted, outcome)

		require.Equal(t, 1, store.CallCount())
		batch := store.Batches[0]
		require.Len(t, batch, 1)
		assert.Contains(t, batch[0].SQL, "INSERT INTO metrics")
		require.Len(t, batch[0].Args, 17)
	})
}

func TestDisabledIngestor(t *testing.T) {
	svc := ingest.Disabled{}
	assert.False(t, svc.Enabled())

	outcome, err := svc.Ingest(context.Background(), pageViewBeacon(), "49.228.1.1")
	require.NoError(t, err)
	assert.Equal(t, ingest.OutcomeDisabled, outcome)
}

func TestFingerprintsAreOpaque(t *testing.T) {
	store := &testsupport.FakeStore{}
	store.QueueResponse(testsupport.EmptySessionResult())
	svc := ingest.NewService(store, &testsupport.StaticResolver{}, testSalt, ingest.SessionsMapping{}, testsupport.NewLogger())

	b := pageViewBeacon()
	_, err := svc.Ingest(context.Background(), b, "49.228.1.1")
	require.NoError(t, err)

	for _, stmt := range store.Statements() {
		for _, arg := range stmt.Args {
			if s, ok := arg.Value.(string); ok {
				assert.False(t, strings.Contains(s, b.UserAgent), "raw user agent must not be persisted")
			}
		}
	}
}
