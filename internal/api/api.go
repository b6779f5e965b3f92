package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/access"
	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/review"
	"github.com/joescharf/codereview/internal/store"
)

const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"

	// DefaultMaxUploadBytes bounds a whole multipart review upload.
	DefaultMaxUploadBytes = 32 << 20
)

// Pinger reports whether the LLM endpoint is reachable.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Server provides the REST API handlers.
type Server struct {
	pipeline  *review.Pipeline
	store     store.Store
	pinger    Pinger
	maxUpload int64
	logger    *slog.Logger
}

// NewServer creates a new API server.
// The pinger may be nil if no LLM endpoint is configured.
func NewServer(p *review.Pipeline, s store.Store, pinger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:  p,
		store:     s,
		pinger:    pinger,
		maxUpload: DefaultMaxUploadBytes,
		logger:    logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/reviews", s.createReview)

	mux.HandleFunc("GET /api/v1/reports", s.listReports)
	mux.HandleFunc("GET /api/v1/reports/{id}", s.getReport)
	mux.HandleFunc("GET /api/v1/reports/{id}/pdf", s.downloadReport)
	mux.HandleFunc("POST /api/v1/reports/{id}/rerender", s.rerenderReport)
	mux.HandleFunc("DELETE /api/v1/reports/{id}", s.deleteReport)

	mux.HandleFunc("GET /api/v1/ping", s.ping)
	mux.HandleFunc("GET /api/v1/stats", s.stats)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+headerUserID+", "+headerRole)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requester reads the identity set by the fronting auth layer.
func requester(r *http.Request) (models.Requester, error) {
	id := strings.TrimSpace(r.Header.Get(headerUserID))
	if id == "" {
		return models.Requester{}, fmt.Errorf("missing %s header", headerUserID)
	}
	role, err := access.ParseRole(r.Header.Get(headerRole))
	if err != nil {
		return models.Requester{}, err
	}
	return models.Requester{UserID: id, Role: role}, nil
}

func (s *Server) withRequester(w http.ResponseWriter, r *http.Request) (models.Requester, bool) {
	req, err := requester(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return req, false
	}
	return req, true
}

// statusFor maps pipeline and store errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr     *ingest.ValidationError
		tooLarge *review.PromptTooLargeError
		lerr     *llm.Error
		maxBytes *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		if verr.Kind == ingest.KindTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.As(err, &tooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case llm.IsKind(err, llm.KindTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &lerr):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrAnonymous):
		return http.StatusUnauthorized
	}
	// Render and storage failures are server faults.
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// --- Reviews ---

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	req, ok := s.withRequester(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.fail(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with files: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var raw []ingest.RawFile
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("open %s: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		raw = append(raw, ingest.RawFile{Name: fh.Filename, Data: data})
	}

	res, err := s.pipeline.Run(r.Context(), req, raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- Reports ---

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func parseQuery(r *http.Request) (store.Query, error) {
	v := r.URL.Query()
	q := store.Query{
		Text:   v.Get("q"),
		SortBy: store.SortField(v.Get("sort")),
		Order:  store.SortOrder(v.Get("order")),
	}
	switch q.SortBy {
	case "", store.SortByDate, store.SortByFilename:
	default:
		return q, fmt.Errorf("invalid sort: %s (use: date, filename)", q.SortBy)
	}
	switch q.Order {
	case "", store.OrderAsc, store.OrderDesc:
	default:
		return q, fmt.Errorf("invalid order: %s (use: asc, desc)", q.Order)
	}

	var err error
	if q.Since, err = parseTime(v.Get("since")); err != nil {
		return q, fmt.Errorf("invalid since: %w", err)
	}
	if q.Until, err = parseTime(v.Get("until")); err != nil {
		return q, fmt.Errorf("invalid until: %w", err)
	}
	if l := v.Get("limit"); l != "" {
		if q.Limit, err = strconv.Atoi(l); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("invalid limit: %s", l)
		}
	}
	return q, nil
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	req, ok := s.withRequester(w, r)
	if !ok {
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reports, err := s.store.Search(r.Context(), req, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.withRequester(w, r)
	if !ok {
		return
	}
	report, err := s.store.Get(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.withRequester(w, r)
	if !ok {
		return
	}
	data, report, err := s.store.ReadDocument(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="code-review-%s.pdf"`, report.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) rerenderReport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.withRequester(w, r)
	if !ok {
		return
	}
	report, err := s.pipeline.Rerender(r.Context(), req, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.withRequester(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), r.PathValue("id"), req); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Service ---

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	if s.pinger == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"reachable": false, "error": "llm not configured"})
		return
	}
	if !s.pinger.Ping(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"reachable": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reachable": true})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	req, ok := s.withRequester(w, r)
	if !ok {
		return
	}
	if req.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
