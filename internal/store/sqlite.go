package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/codereview/internal/access"
	"github.com/joescharf/codereview/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const reportColumns = `id, owner_id, files, pdf_path, review_content, metadata, created_at, updated_at`

// Config configures a SQLiteStore.
type Config struct {
	// ReportsDir holds the PDF documents. Defaults to a "reports"
	// directory next to the database.
	ReportsDir string
	// MinFreeBytes refuses writes when the reports volume has less free
	// space than this plus the document size. Zero disables the check.
	MinFreeBytes uint64
	Logger       *slog.Logger
}

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO)
// for rows and plain files for documents.
type SQLiteStore struct {
	db         *sql.DB
	dbPath     string
	reportsDir string
	minFree    uint64
	logger     *slog.Logger
	now        func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string, cfg Config) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	reportsDir := cfg.ReportsDir
	if reportsDir == "" {
		reportsDir = filepath.Join(dir, "reports")
	}
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single connection
	// serializes all DB access through Go's connection pool, preventing
	// "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteStore{
		db:         db,
		dbPath:     dbPath,
		reportsDir: reportsDir,
		minFree:    cfg.MinFreeBytes,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReportsDir returns the directory documents are written to.
func (s *SQLiteStore) ReportsDir() string {
	return s.reportsDir
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(sc rowScanner) (*models.Report, error) {
	r := &models.Report{}
	var meta string
	if err := sc.Scan(&r.ID, &r.OwnerID, &r.Files, &r.PDFPath, &r.ReviewContent, &meta, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
	}
	r.Metadata.CreatedAt = r.CreatedAt
	r.Metadata.UpdatedAt = r.UpdatedAt
	return r, nil
}

func (s *SQLiteStore) getRow(ctx context.Context, id string) (*models.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return r, nil
}

func (s *SQLiteStore) ensureSpace(size int) error {
	if s.minFree == 0 {
		return nil
	}
	free, err := freeBytes(s.reportsDir)
	if err != nil {
		return fmt.Errorf("check free space: %w", err)
	}
	if free < s.minFree+uint64(size) {
		return fmt.Errorf("insufficient free space on reports volume: %d bytes free, need %d", free, s.minFree+uint64(size))
	}
	return nil
}

// --- Reports ---

// Create writes the document and then inserts the row in one transaction.
// On any failure the document is removed, so no row ever points at a
// missing file and no file outlives a failed insert.
func (s *SQLiteStore) Create(ctx context.Context, r *models.Report, pdf []byte) (string, error) {
	if r.OwnerID == "" {
		return "", &StorageError{Op: "create", Err: errors.New("owner id is required")}
	}
	if len(pdf) == 0 {
		return "", &StorageError{Op: "create", Err: errors.New("document is empty")}
	}
	if err := s.ensureSpace(len(pdf)); err != nil {
		return "", &StorageError{Op: "create", Err: err}
	}

	id := uuid.NewString()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.CreatedAt
	meta := r.Metadata
	meta.CreatedAt = r.CreatedAt
	meta.UpdatedAt = r.UpdatedAt
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", &StorageError{Op: "create", Err: fmt.Errorf("encode metadata: %w", err)}
	}

	path, err := writeFileAtomic(s.reportsDir, id+".pdf", pdf)
	if err != nil {
		return "", &StorageError{Op: "create", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(path)
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &StorageError{Op: "create", Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.OwnerID, r.Files, path, r.ReviewContent, string(metaJSON), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return "", &StorageError{Op: "create", Err: fmt.Errorf("insert report: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return "", &StorageError{Op: "create", Err: fmt.Errorf("commit: %w", err)}
	}
	committed = true

	r.ID = id
	r.PDFPath = path
	r.Metadata = meta
	return id, nil
}

// Get returns the report if the requester may see it.
func (s *SQLiteStore) Get(ctx context.Context, id string, req models.Requester) (*models.Report, error) {
	r, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanView(req, r.OwnerID) {
		return nil, notFound(id)
	}
	if !fileExists(r.PDFPath) {
		s.logger.Warn("report document missing", "id", r.ID, "path", r.PDFPath)
		return nil, &StorageError{Op: "get", Err: fmt.Errorf("%w: %s", ErrCorrupt, r.PDFPath)}
	}
	return r, nil
}

// ReadDocument returns the PDF bytes of a visible report.
func (s *SQLiteStore) ReadDocument(ctx context.Context, id string, req models.Requester) ([]byte, *models.Report, error) {
	r, err := s.Get(ctx, id, req)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(r.PDFPath)
	if err != nil {
		return nil, nil, &StorageError{Op: "read", Err: err}
	}
	return data, r, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search lists the reports visible to the requester. Rows whose document
// is missing are skipped.
func (s *SQLiteStore) Search(ctx context.Context, req models.Requester, q Query) ([]*models.Report, error) {
	var where []string
	var args []any

	if req.Role != models.RoleAdmin {
		where = append(where, "owner_id = ?")
		args = append(args, req.UserID)
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		where = append(where, `(files LIKE ? ESCAPE '\' OR review_content LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, q.Until.UTC())
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderClause(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, &StorageError{Op: "search", Err: fmt.Errorf("scan report: %w", err)}
		}
		if !access.CanView(req, r.OwnerID) {
			continue
		}
		if !fileExists(r.PDFPath) {
			s.logger.Warn("skipping report with missing document", "id", r.ID, "path", r.PDFPath)
			continue
		}
		reports = append(reports, r)
		if q.Limit > 0 && len(reports) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}
	return reports, nil
}

func orderClause(q Query) string {
	dir := "DESC"
	col := "created_at"
	if q.SortBy == SortByFilename {
		col = "files COLLATE NOCASE"
		dir = "ASC"
	}
	switch q.Order {
	case OrderAsc:
		dir = "ASC"
	case OrderDesc:
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, id %s", col, dir, dir)
}

// Delete removes the row and its document together. The document is moved
// aside first and restored if the row delete does not commit.
func (s *SQLiteStore) Delete(ctx context.Context, id string, req models.Requester) error {
	r, err := s.getRow(ctx, id)
	if err != nil {
		return err
	}
	if !access.CanDelete(req, r.OwnerID) {
		return notFound(id)
	}
	if err := s.deleteReport(ctx, r); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

func (s *SQLiteStore) deleteReport(ctx context.Context, r *models.Report) error {
	aside, moved, err := moveAside(r.PDFPath, ".deleting")
	if err != nil {
		return fmt.Errorf("move document: %w", err)
	}
	restore := func() {
		if moved {
			_ = os.Rename(aside, r.PDFPath)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		restore()
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", r.ID); err != nil {
		restore()
		return fmt.Errorf("delete row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		restore()
		return fmt.Errorf("commit: %w", err)
	}

	if moved {
		if err := os.Remove(aside); err != nil {
			s.logger.Warn("remove deleted document", "id", r.ID, "path", aside, "error", err)
		}
	}
	return nil
}

// ReplaceDocument swaps in a regenerated document and bumps updated_at.
// The previous document is restored if any step fails.
func (s *SQLiteStore) ReplaceDocument(ctx context.Context, id string, req models.Requester, pdf []byte) (*models.Report, error) {
	r, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanDelete(req, r.OwnerID) {
		return nil, notFound(id)
	}
	if len(pdf) == 0 {
		return nil, &StorageError{Op: "replace", Err: errors.New("document is empty")}
	}
	if err := s.ensureSpace(len(pdf)); err != nil {
		return nil, &StorageError{Op: "replace", Err: err}
	}

	backup, hadOld, err := moveAside(r.PDFPath, ".bak")
	if err != nil {
		return nil, &StorageError{Op: "replace", Err: fmt.Errorf("back up document: %w", err)}
	}
	restore := func() {
		_ = os.Remove(r.PDFPath)
		if hadOld {
			_ = os.Rename(backup, r.PDFPath)
		}
	}

	if _, err := writeFileAtomic(filepath.Dir(r.PDFPath), filepath.Base(r.PDFPath), pdf); err != nil {
		restore()
		return nil, &StorageError{Op: "replace", Err: err}
	}

	updated := s.now().UTC()
	meta := r.Metadata
	meta.UpdatedAt = updated
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		restore()
		return nil, &StorageError{Op: "replace", Err: fmt.Errorf("encode metadata: %w", err)}
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE reports SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(metaJSON), updated, r.ID,
	); err != nil {
		restore()
		return nil, &StorageError{Op: "replace", Err: fmt.Errorf("update report: %w", err)}
	}

	if hadOld {
		if err := os.Remove(backup); err != nil {
			s.logger.Warn("remove document backup", "id", r.ID, "path", backup, "error", err)
		}
	}
	r.UpdatedAt = updated
	r.Metadata = meta
	return r, nil
}

// --- Maintenance ---

// Count returns the number of reports the requester may see.
func (s *SQLiteStore) Count(ctx context.Context, req models.Requester) (int, error) {
	var n int
	var err error
	if req.Role == models.RoleAdmin {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports WHERE owner_id = ?", req.UserID).Scan(&n)
	}
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// Stats reports totals, the date range, and disk usage.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&st.Total); err != nil {
		return nil, &StorageError{Op: "stats", Err: err}
	}
	if st.Total > 0 {
		var oldest, newest time.Time
		if err := s.db.QueryRowContext(ctx, "SELECT created_at FROM reports ORDER BY created_at ASC LIMIT 1").Scan(&oldest); err != nil {
			return nil, &StorageError{Op: "stats", Err: err}
		}
		if err := s.db.QueryRowContext(ctx, "SELECT created_at FROM reports ORDER BY created_at DESC LIMIT 1").Scan(&newest); err != nil {
			return nil, &StorageError{Op: "stats", Err: err}
		}
		st.Oldest = &oldest
		st.Newest = &newest
	}

	for _, p := range []string{s.dbPath, s.dbPath + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			st.DBSizeBytes += info.Size()
		}
	}
	st.ReportsBytes = dirSize(s.reportsDir)
	if free, err := freeBytes(s.reportsDir); err == nil {
		st.FreeBytes = free
	} else {
		s.logger.Warn("read free space", "dir", s.reportsDir, "error", err)
	}
	return st, nil
}

// Cleanup deletes reports created more than olderThan ago, documents
// included, and returns how many were removed.
func (s *SQLiteStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE created_at < ? ORDER BY created_at`, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "cleanup", Err: err}
	}
	var stale []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			_ = rows.Close()
			return 0, &StorageError{Op: "cleanup", Err: err}
		}
		stale = append(stale, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, &StorageError{Op: "cleanup", Err: err}
	}

	removed := 0
	for _, r := range stale {
		if err := s.deleteReport(ctx, r); err != nil {
			return removed, &StorageError{Op: "cleanup", Err: err}
		}
		removed++
	}
	return removed, nil
}
