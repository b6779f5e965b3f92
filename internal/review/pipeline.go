// Package review turns source files into a stored review report: prompt
// assembly, response parsing, complexity estimation and the pipeline that
// runs them in order.
package review

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/render"
	"github.com/joescharf/codereview/internal/store"
)

// ErrAnonymous is returned when a run has no requester identity.
var ErrAnonymous = errors.New("requester user id is required")

// Reviewer sends a prompt to the model.
type Reviewer interface {
	Review(ctx context.Context, prompt string, rc llm.RequestConfig) (*models.RawReviewResponse, error)
}

// Config holds the generation parameters for each run.
type Config struct {
	ModelID     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Pipeline runs ingest, prompt, model, parse, analyze, render and store in
// sequence. It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	ingestor *ingest.Ingestor
	builder  *Builder
	reviewer Reviewer
	parser   *Parser
	analyzer *Analyzer
	renderer *render.Renderer
	store    store.Store
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline wires the stages together.
func NewPipeline(in *ingest.Ingestor, b *Builder, r Reviewer, rn *render.Renderer, s store.Store, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		ingestor: in,
		builder:  b,
		reviewer: r,
		parser:   NewParser(),
		analyzer: NewAnalyzer(),
		renderer: rn,
		store:    s,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Result is the outcome of a successful run.
type Result struct {
	Report    *models.Report              `json:"report"`
	Parsed    models.ParsedReview         `json:"parsed"`
	Estimates []models.ComplexityEstimate `json:"estimates"`
	Cached    bool                        `json:"cached,omitempty"`
}

func newRunID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// newRequest snapshots the validated files and generation parameters
// for one run.
func (p *Pipeline) newRequest(files []models.SourceFile) models.ReviewRequest {
	return models.ReviewRequest{
		Files:       slices.Clone(files),
		ModelID:     p.cfg.ModelID,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}
}

func (p *Pipeline) requestConfig(rr models.ReviewRequest) llm.RequestConfig {
	return llm.RequestConfig{
		ModelID:     rr.ModelID,
		MaxTokens:   rr.MaxTokens,
		Temperature: rr.Temperature,
		Timeout:     p.cfg.Timeout,
	}
}

// Run reviews raw files for the requester and stores the report. Errors
// keep their stage type: *ingest.ValidationError, *PromptTooLargeError,
// *llm.Error, *render.RenderError or *store.StorageError.
func (p *Pipeline) Run(ctx context.Context, req models.Requester, raw []ingest.RawFile) (*Result, error) {
	if req.UserID == "" {
		return nil, ErrAnonymous
	}
	start := p.now()
	runID := newRunID(start)
	log := p.logger.With("run_id", runID, "user", req.UserID)

	files, err := p.ingestor.Ingest(raw)
	if err != nil {
		log.Info("review rejected", "error", err)
		return nil, err
	}
	rr := p.newRequest(files)
	log.Info("review started", "files", len(rr.Files), "model", rr.ModelID)

	prompt, err := p.builder.Build(rr.Files)
	if err != nil {
		log.Info("prompt rejected", "error", err)
		return nil, err
	}
	log.Debug("prompt built", "estimated_tokens", EstimateTokens(prompt))

	resp, err := p.reviewer.Review(ctx, prompt, p.requestConfig(rr))
	if err != nil {
		log.Error("llm review failed", "error", err)
		return nil, fmt.Errorf("review %s: %w", runID, err)
	}

	parsed := p.parser.Parse(resp.Text)
	estimates := p.analyzer.Analyze(parsed, rr.Files)

	created := p.now().UTC()
	doc, err := p.renderer.Render(parsed, estimates, render.Metadata{
		Files:     fileNames(rr.Files),
		ModelID:   resp.ModelID,
		CreatedAt: created,
		Usage:     resp.Usage,
		RunID:     runID,
	}, rr.Files)
	if err != nil {
		log.Error("render failed", "error", err)
		return nil, err
	}

	report := &models.Report{
		OwnerID:       req.UserID,
		Files:         models.JoinFileNames(rr.Files),
		ReviewContent: resp.Text,
		CreatedAt:     created,
		Metadata: models.ReportMetadata{
			ModelID:    resp.ModelID,
			TokenUsage: resp.Usage,
			RunID:      runID,
			LatencyMS:  resp.LatencyMS,
			FileCount:  len(rr.Files),
		},
	}
	// Storage runs to completion once rendering has succeeded.
	if _, err := p.store.Create(context.WithoutCancel(ctx), report, doc); err != nil {
		log.Error("store failed", "error", err)
		return nil, err
	}

	log.Info("review stored",
		"report_id", report.ID,
		"total_tokens", resp.Usage.Total,
		"cached", resp.Cached,
		"elapsed", p.now().Sub(start).Round(time.Millisecond))
	return &Result{Report: report, Parsed: parsed, Estimates: estimates, Cached: resp.Cached}, nil
}

// Rerender rebuilds the document of a stored report from its review text.
// Source content is not persisted, so the new document has no excerpts.
func (p *Pipeline) Rerender(ctx context.Context, req models.Requester, id string) (*models.Report, error) {
	r, err := p.store.Get(ctx, id, req)
	if err != nil {
		return nil, err
	}

	names := r.FileList()
	files := make([]models.SourceFile, len(names))
	for i, n := range names {
		files[i] = models.SourceFile{Name: n, Language: models.LanguageForName(n)}
	}
	parsed := p.parser.Parse(r.ReviewContent)
	estimates := p.analyzer.Analyze(parsed, files)

	doc, err := p.renderer.Render(parsed, estimates, render.Metadata{
		Files:     names,
		ModelID:   r.Metadata.ModelID,
		CreatedAt: r.CreatedAt,
		Usage:     r.Metadata.TokenUsage,
		RunID:     r.Metadata.RunID,
	}, files)
	if err != nil {
		return nil, err
	}

	updated, err := p.store.ReplaceDocument(context.WithoutCancel(ctx), id, req, doc)
	if err != nil {
		return nil, err
	}
	p.logger.Info("report re-rendered", "report_id", id, "user", req.UserID)
	return updated, nil
}

func fileNames(files []models.SourceFile) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
