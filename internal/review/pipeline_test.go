package review

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/render"
	"github.com/joescharf/codereview/internal/store"
)

var (
	alice = models.Requester{UserID: "alice", Role: models.RoleUser}
	bob   = models.Requester{UserID: "bob", Role: models.RoleUser}
)

// fakeReviewer returns a fixed response without network I/O.
type fakeReviewer struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeReviewer) Review(_ context.Context, _ string, rc llm.RequestConfig) (*models.RawReviewResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.RawReviewResponse{
		Text:    f.text,
		Usage:   models.TokenUsage{Prompt: 200, Completion: 100, Total: 300},
		ModelID: rc.ModelID,
	}, nil
}

type harness struct {
	pipeline *Pipeline
	store    *store.SQLiteStore
}

func newHarness(t *testing.T, r Reviewer) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.NewSQLiteStore(filepath.Join(dir, "reports.db"), store.Config{
		ReportsDir: filepath.Join(dir, "reports"),
		Logger:     logger,
	})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	in, err := ingest.New(ingest.Config{})
	require.NoError(t, err)

	p := NewPipeline(in, NewBuilder(PromptConfig{}), r,
		render.NewRenderer(render.Config{IncludeExcerpts: true}), s,
		Config{ModelID: "test-model", MaxTokens: 4000, Temperature: 0.3, Timeout: 5 * time.Second},
		logger)
	return &harness{pipeline: p, store: s}
}

func (h *harness) documents(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.store.ReportsDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func rawFiles() []ingest.RawFile {
	return []ingest.RawFile{
		{Name: "a.py", Data: []byte("def total(xs):\n    return sum(xs)\n")},
		{Name: "b.js", Data: []byte("function find(xs, y) {\n  for (const a of xs) for (const b of xs) if (a + b === y) return true;\n  return false;\n}\n")},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := json.Marshal(map[string]any{
			"id":      "gen-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": canonicalReview},
			}},
			"usage": map[string]any{"prompt_tokens": 200, "completion_tokens": 100, "total_tokens": 300},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	client, err := llm.NewClient(llm.Config{
		Provider: llm.ProviderOpenAI,
		BaseURL:  srv.URL + "/",
		APIKey:   "test-key",
		Backoff:  time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	h := newHarness(t, client)
	ctx := context.Background()

	res, err := h.pipeline.Run(ctx, alice, rawFiles())
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	r := res.Report
	assert.Equal(t, "a.py,b.js", r.Files)
	assert.Equal(t, "alice", r.OwnerID)
	assert.Equal(t, 300, r.Metadata.TokenUsage.Total)
	assert.Equal(t, "test-model", r.Metadata.ModelID)
	assert.Equal(t, 2, r.Metadata.FileCount)
	assert.Len(t, r.Metadata.RunID, 26)
	assert.Equal(t, canonicalReview, r.ReviewContent)

	for _, s := range models.AllSections() {
		assert.NotEmpty(t, res.Parsed.Sections[s], "section %s", s)
	}
	require.Len(t, res.Estimates, 2)
	assert.Equal(t, "a.py", res.Estimates[0].File)
	assert.Equal(t, "b.js", res.Estimates[1].File)
	assert.Equal(t, models.ComplexityLinearithm, res.Estimates[0].Time)

	pdf, err := os.ReadFile(r.PDFPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(pdf[:5]))

	got, err := h.store.Get(ctx, r.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = h.store.Get(ctx, r.ID, bob)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_ValidationErrorStopsBeforeModel(t *testing.T) {
	rev := &fakeReviewer{text: canonicalReview}
	h := newHarness(t, rev)

	raw := append(rawFiles(), ingest.RawFile{Name: "notes.txt", Data: []byte("x")})
	_, err := h.pipeline.Run(context.Background(), alice, raw)

	var verr *ingest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ingest.KindUnsupportedExtension, verr.Kind)
	assert.Zero(t, rev.calls.Load())
	assert.Empty(t, h.documents(t))
}

func TestRun_PromptTooLarge(t *testing.T) {
	rev := &fakeReviewer{text: canonicalReview}
	h := newHarness(t, rev)
	h.pipeline.builder = NewBuilder(PromptConfig{MaxTokens: 10})

	_, err := h.pipeline.Run(context.Background(), alice, rawFiles())
	var tooLarge *PromptTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Zero(t, rev.calls.Load())
}

func TestRun_LLMFailureWritesNothing(t *testing.T) {
	rev := &fakeReviewer{err: &llm.Error{Kind: llm.KindUnavailable, Attempts: 3, StatusCode: 429}}
	h := newHarness(t, rev)

	_, err := h.pipeline.Run(context.Background(), alice, rawFiles())
	assert.True(t, llm.IsKind(err, llm.KindUnavailable))
	assert.Empty(t, h.documents(t))

	n, err := h.store.Count(context.Background(), models.Requester{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_RenderFailureWritesNothing(t *testing.T) {
	rev := &fakeReviewer{text: "## Potential Bugs\n変数名が不明確です\n"}
	h := newHarness(t, rev)

	_, err := h.pipeline.Run(context.Background(), alice, rawFiles())
	var rerr *render.RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Empty(t, h.documents(t))
}

func TestRun_RequiresRequester(t *testing.T) {
	h := newHarness(t, &fakeReviewer{text: canonicalReview})
	_, err := h.pipeline.Run(context.Background(), models.Requester{Role: models.RoleUser}, rawFiles())
	assert.True(t, errors.Is(err, ErrAnonymous))
}

func TestRun_UnstructuredResponse(t *testing.T) {
	h := newHarness(t, &fakeReviewer{text: "Looks good to me."})

	res, err := h.pipeline.Run(context.Background(), alice, rawFiles())
	require.NoError(t, err)
	assert.Equal(t, "Looks good to me.", res.Parsed.Other)
	for _, e := range res.Estimates {
		assert.Equal(t, models.ComplexityUnknown, e.Time)
	}
}

func TestRerender(t *testing.T) {
	h := newHarness(t, &fakeReviewer{text: canonicalReview})
	ctx := context.Background()

	res, err := h.pipeline.Run(ctx, alice, rawFiles())
	require.NoError(t, err)

	_, err = h.pipeline.Rerender(ctx, bob, res.Report.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err := h.pipeline.Rerender(ctx, alice, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Report.ID, updated.ID)
	assert.False(t, updated.UpdatedAt.Before(res.Report.UpdatedAt))
	assert.Equal(t, []string{res.Report.ID + ".pdf"}, h.documents(t))
}

func TestNewRequest_SnapshotsFilesAndParameters(t *testing.T) {
	h := newHarness(t, &fakeReviewer{text: canonicalReview})
	files := []models.SourceFile{{Name: "a.py", Language: models.LanguagePython, Content: "x = 1", SizeBytes: 5}}

	rr := h.pipeline.newRequest(files)
	files[0].Name = "changed.py"

	assert.Equal(t, "a.py", rr.Files[0].Name)
	assert.Equal(t, "test-model", rr.ModelID)
	assert.Equal(t, 4000, rr.MaxTokens)
	assert.InDelta(t, 0.3, rr.Temperature, 1e-9)

	rc := h.pipeline.requestConfig(rr)
	assert.Equal(t, llm.RequestConfig{ModelID: "test-model", MaxTokens: 4000, Temperature: 0.3, Timeout: 5 * time.Second}, rc)
}
