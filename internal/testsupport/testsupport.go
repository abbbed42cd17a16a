// Package testsupport provides shared fakes for exercising the ingestion
// and read paths without a remote store.
package testsupport

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"lantern/internal/pipeline"
)

// NewLogger returns a silent logger for tests.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FakeStore implements pipeline.Executor in memory. Responses are served
// from a FIFO queue, one entry per Execute call; when the queue is empty an
// empty result set is returned.
type FakeStore struct {
	mu        sync.Mutex
	Batches   [][]pipeline.Stmt
	Responses [][]pipeline.Result
	Err       error
}

// Execute records the batch and serves the next queued response.
func (f *FakeStore) Execute(_ context.Context, stmts []pipeline.Stmt) ([]pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	f.Batches = append(f.Batches, stmts)

	if len(f.Responses) == 0 {
		return []pipeline.Result{{}}, nil
	}
	next := f.Responses[0]
	f.Responses = f.Responses[1:]
	return next, nil
}

// QueueResponse appends one Execute call's results to the response queue.
func (f *FakeStore) QueueResponse(results []pipeline.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, results)
}

// CallCount returns how many Execute calls were made.
func (f *FakeStore) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Batches)
}

// Statements returns every recorded statement across all batches, in order.
func (f *FakeStore) Statements() []pipeline.Stmt {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []pipeline.Stmt
	for _, batch := range f.Batches {
		all = append(all, batch...)
	}
	return all
}

// SessionRowResult builds the result of a session lookup returning one row
// of (country, created_at, page_count).
func SessionRowResult(country string, createdAt, pageCount int64) []pipeline.Result {
	countryCell := pipeline.Cell{Type: pipeline.TypeNull}
	if country != "" {
		countryCell = pipeline.Cell{Type: pipeline.TypeText, Value: country}
	}
	return []pipeline.Result{{
		Columns: []string{"country", "created_at", "page_count"},
		Rows: []pipeline.Row{{
			countryCell,
			{Type: pipeline.TypeInteger, Value: strconv.FormatInt(createdAt, 10)},
			{Type: pipeline.TypeInteger, Value: strconv.FormatInt(pageCount, 10)},
		}},
	}}
}

// EmptySessionResult builds the result of a session lookup finding no row.
func EmptySessionResult() []pipeline.Result {
	return []pipeline.Result{{Columns: []string{"country", "created_at", "page_count"}}}
}

// StaticResolver implements geo.Resolver with a fixed answer and a call
// counter for asserting lookup-skip behavior.
type StaticResolver struct {
	mu    sync.Mutex
	Code  string
	calls int
}

// Country returns the configured code and counts the call.
func (r *StaticResolver) Country(context.Context, string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.Code
}

// Calls returns how many lookups were issued.
func (r *StaticResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
