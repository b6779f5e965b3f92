package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/render"
	"github.com/joescharf/codereview/internal/review"
	"github.com/joescharf/codereview/internal/store"
)

const reviewText = `## Summary
One helper.

## Performance
- main.go: the loop is O(n^2) time.
`

var alice = models.Requester{UserID: "alice", Role: models.RoleUser}

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type fakeReviewer struct{}

func (fakeReviewer) Review(_ context.Context, _ string, rc llm.RequestConfig) (*models.RawReviewResponse, error) {
	return &models.RawReviewResponse{
		Text:    reviewText,
		Usage:   models.TokenUsage{Prompt: 10, Completion: 20, Total: 30},
		ModelID: rc.ModelID,
	}, nil
}

type fakePinger bool

func (f fakePinger) Ping(context.Context) bool { return bool(f) }

func newTestServer(t *testing.T, req models.Requester) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"), store.Config{Logger: logger})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	in, err := ingest.New(ingest.Config{})
	require.NoError(t, err)
	p := review.NewPipeline(in, review.NewBuilder(review.PromptConfig{}), fakeReviewer{},
		render.NewRenderer(render.Config{}), s,
		review.Config{ModelID: "test-model", MaxTokens: 1000, Timeout: time.Second}, logger)

	return NewServer(p, s, fakePinger(true), req, "test"), s
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target), "failed to parse result JSON: %s", text)
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))
	return path
}

func reviewFile(t *testing.T, srv *Server) reportOut {
	t.Helper()
	result, err := srv.handleReviewFiles(context.Background(),
		callToolReq("review_files", map[string]any{"paths": []any{writeSource(t)}}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out reportOut
	resultJSON(t, result, &out)
	return out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t, alice)
	require.NotNil(t, srv.MCPServer())
}

func TestReviewFiles(t *testing.T) {
	srv, _ := newTestServer(t, alice)
	out := reviewFile(t, srv)

	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "alice", out.Owner)
	assert.Equal(t, []string{"main.go"}, out.Files)
	assert.Equal(t, 30, out.Tokens.Total)
	require.Len(t, out.Estimates, 1)
	assert.Equal(t, "main.go", out.Estimates[0].File)
	assert.Equal(t, string(models.ComplexityQuadratic), out.Estimates[0].Time)
}

func TestReviewFiles_Errors(t *testing.T) {
	srv, _ := newTestServer(t, alice)
	ctx := context.Background()

	result, err := srv.handleReviewFiles(ctx, callToolReq("review_files", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleReviewFiles(ctx, callToolReq("review_files",
		map[string]any{"paths": []any{"/nonexistent/x.go"}}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	bad := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("hello"), 0o644))
	result, err = srv.handleReviewFiles(ctx, callToolReq("review_files",
		map[string]any{"paths": []any{bad}}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unsupported")
}

func TestReviewFiles_Anonymous(t *testing.T) {
	srv, _ := newTestServer(t, models.Requester{})
	result, err := srv.handleReviewFiles(context.Background(),
		callToolReq("review_files", map[string]any{"paths": []any{writeSource(t)}}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListAndGetReport(t *testing.T) {
	srv, _ := newTestServer(t, alice)
	ctx := context.Background()

	result, err := srv.handleListReports(ctx, callToolReq("list_reports", nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))

	created := reviewFile(t, srv)

	result, err = srv.handleListReports(ctx, callToolReq("list_reports",
		map[string]any{"query": "main.go", "limit": float64(5)}))
	require.NoError(t, err)
	var list []reportOut
	resultJSON(t, result, &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Empty(t, list[0].Review)

	result, err = srv.handleGetReport(ctx, callToolReq("get_report", map[string]any{"id": created.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var got reportOut
	resultJSON(t, result, &got)
	assert.Equal(t, reviewText, got.Review)
}

func TestListReports_InvalidSort(t *testing.T) {
	srv, _ := newTestServer(t, alice)
	result, err := srv.handleListReports(context.Background(),
		callToolReq("list_reports", map[string]any{"sort": "size"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetReport_NotVisible(t *testing.T) {
	srv, s := newTestServer(t, alice)
	created := reviewFile(t, srv)

	bob := NewServer(srv.pipeline, s, nil, models.Requester{UserID: "bob", Role: models.RoleUser}, "")
	result, err := bob.handleGetReport(context.Background(), callToolReq("get_report", map[string]any{"id": created.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")

	result, err = bob.handleGetReport(context.Background(), callToolReq("get_report", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDeleteReport(t *testing.T) {
	srv, _ := newTestServer(t, alice)
	ctx := context.Background()
	created := reviewFile(t, srv)

	result, err := srv.handleDeleteReport(ctx, callToolReq("delete_report", map[string]any{"id": created.ID}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), created.ID)

	result, err = srv.handleDeleteReport(ctx, callToolReq("delete_report", map[string]any{"id": created.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestPingLLM(t *testing.T) {
	srv, _ := newTestServer(t, alice)
	ctx := context.Background()

	result, err := srv.handlePingLLM(ctx, callToolReq("ping_llm", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"reachable":true}`, resultText(t, result))

	srv.pinger = fakePinger(false)
	result, err = srv.handlePingLLM(ctx, callToolReq("ping_llm", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"reachable":false}`, resultText(t, result))

	srv.pinger = nil
	result, err = srv.handlePingLLM(ctx, callToolReq("ping_llm", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"reachable":false}`, resultText(t, result))
}
