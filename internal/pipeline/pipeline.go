// Package pipeline implements the HTTP client for the remote store's
// batch SQL endpoint. Each call ships one or more parameterized statements
// and returns per-statement row results synchronously.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// Value types accepted by the pipeline endpoint.
const (
	TypeNull    = "null"
	TypeText    = "text"
	TypeInteger = "integer"
	TypeFloat   = "float"
)

// Value is a typed SQL statement argument.
type Value struct {
	Type  string
	Value interface{}
}

// Null returns a null-typed argument.
func Null() Value {
	return Value{Type: TypeNull}
}

// Text returns a text-typed argument.
func Text(s string) Value {
	return Value{Type: TypeText, Value: s}
}

// TextOrNull returns a text argument, or null for the empty string.
func TextOrNull(s string) Value {
	if s == "" {
		return Null()
	}
	return Text(s)
}

// Integer returns an integer-typed argument. The wire protocol transports
// integers as decimal strings to avoid JSON number precision loss.
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Value: strconv.FormatInt(n, 10)}
}

// IntegerOrNull returns an integer argument, or null when the pointer is nil.
func IntegerOrNull(n *int64) Value {
	if n == nil {
		return Null()
	}
	return Integer(*n)
}

// Float returns a float-typed argument.
func Float(f float64) Value {
	return Value{Type: TypeFloat, Value: f}
}

// FloatOrNull returns a float argument, or null when the pointer is nil.
func FloatOrNull(f *float64) Value {
	if f == nil {
		return Null()
	}
	return Float(*f)
}

// MarshalJSON encodes the value in the pipeline wire shape.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Type == TypeNull || v.Type == "" {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{Type: TypeNull})
	}
	return json.Marshal(struct {
		Type  string      `json:"type"`
		Value interface{} `json:"value"`
	}{Type: v.Type, Value: v.Value})
}

// Stmt is one parameterized SQL statement.
type Stmt struct {
	SQL  string
	Args []Value
}

// Cell is one column value in a result row.
type Cell struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// IsNull reports whether the cell carries no value.
func (c Cell) IsNull() bool {
	return c.Type == TypeNull || c.Type == ""
}

// Text returns the cell as a string.
func (c Cell) Text() (string, bool) {
	s, ok := c.Value.(string)
	return s, ok && !c.IsNull()
}

// Int returns the cell as an int64. Integer cells arrive as decimal
// strings; float cells are truncated.
func (c Cell) Int() (int64, bool) {
	if c.IsNull() {
		return 0, false
	}
	switch v := c.Value.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Float returns the cell as a float64.
func (c Cell) Float() (float64, bool) {
	if c.IsNull() {
		return 0, false
	}
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Row is one result row.
type Row []Cell

// Result holds the rows returned by one statement.
type Result struct {
	Columns []string
	Rows    []Row
}

// Executor executes a batch of statements against the remote store.
// Implemented by Client; test doubles implement it in-memory.
type Executor interface {
	Execute(ctx context.Context, stmts []Stmt) ([]Result, error)
}

// Client talks to the remote store's pipeline endpoint.
type Client struct {
	url        string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a pipeline client for the given endpoint URL.
// The HTTP client is optional; the default has no explicit timeout and
// inherits the platform default.
func NewClient(url, authToken string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:        url,
		authToken:  authToken,
		httpClient: httpClient,
		logger:     logger,
	}
}

// wire shapes

type requestBody struct {
	Requests []pipelineRequest `json:"requests"`
}

type pipelineRequest struct {
	Type string    `json:"type"`
	Stmt *wireStmt `json:"stmt,omitempty"`
}

type wireStmt struct {
	SQL  string  `json:"sql"`
	Args []Value `json:"args"`
}

type responseBody struct {
	Results []pipelineResult `json:"results"`
}

type pipelineResult struct {
	Type     string         `json:"type"`
	Response *innerResponse `json:"response,omitempty"`
	Error    *wireError     `json:"error,omitempty"`
}

type innerResponse struct {
	Type   string      `json:"type"`
	Result *wireResult `json:"result,omitempty"`
}

type wireResult struct {
	Cols []struct {
		Name string `json:"name"`
	} `json:"cols"`
	Rows [][]Cell `json:"rows"`
}

type wireError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Execute sends the statements as a single pipeline call and returns one
// result per statement. A SQL-level error embedded in a 200 response fails
// the whole batch with the downstream diagnostic.
func (c *Client) Execute(ctx context.Context, stmts []Stmt) ([]Result, error) {
	if len(stmts) == 0 {
		return nil, nil
	}

	body := requestBody{}
	for _, stmt := range stmts {
		args := stmt.Args
		if args == nil {
			args = []Value{}
		}
		body.Requests = append(body.Requests, pipelineRequest{
			Type: "execute",
			Stmt: &wireStmt{SQL: stmt.SQL, Args: args},
		})
	}
	body.Requests = append(body.Requests, pipelineRequest{Type: "close"})

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipeline request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Pipeline request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncateForLog(raw)))
		return nil, fmt.Errorf("pipeline request failed with status %d: %s", resp.StatusCode, truncateForLog(raw))
	}

	var decoded responseBody
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline response: %w", err)
	}

	results := make([]Result, 0, len(stmts))
	for i, pr := range decoded.Results {
		if pr.Type == "error" {
			msg := "unknown pipeline error"
			if pr.Error != nil {
				msg = pr.Error.Message
			}
			return nil, fmt.Errorf("statement %d failed: %s", i, msg)
		}
		if pr.Response == nil || pr.Response.Result == nil {
			continue // close acknowledgement
		}

		res := Result{}
		for _, col := range pr.Response.Result.Cols {
			res.Columns = append(res.Columns, col.Name)
		}
		for _, row := range pr.Response.Result.Rows {
			res.Rows = append(res.Rows, Row(row))
		}
		results = append(results, res)
	}

	return results, nil
}

func truncateForLog(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
