package store

import (
	"context"
	"time"

	"github.com/joescharf/codereview/internal/models"
)

// SortField selects the ordering of search results.
type SortField string

const (
	SortByDate     SortField = "date"
	SortByFilename SortField = "filename"
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Query specifies filters for searching reports. Zero values disable a
// filter. Date sorting defaults to newest first, filename sorting to A-Z.
type Query struct {
	Text   string
	SortBy SortField
	Order  SortOrder
	Since  time.Time
	Until  time.Time
	Limit  int
}

// Stats summarizes the report store.
type Stats struct {
	Total        int        `json:"total"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
	DBSizeBytes  int64      `json:"db_size_bytes"`
	ReportsBytes int64      `json:"reports_bytes"`
	FreeBytes    uint64     `json:"free_bytes"`
}

// Store defines report persistence. Lookups by a requester who may not
// see a report fail exactly like lookups of a missing id.
type Store interface {
	// Reports
	Create(ctx context.Context, r *models.Report, pdf []byte) (string, error)
	Get(ctx context.Context, id string, req models.Requester) (*models.Report, error)
	ReadDocument(ctx context.Context, id string, req models.Requester) ([]byte, *models.Report, error)
	Search(ctx context.Context, req models.Requester, q Query) ([]*models.Report, error)
	Delete(ctx context.Context, id string, req models.Requester) error
	ReplaceDocument(ctx context.Context, id string, req models.Requester, pdf []byte) (*models.Report, error)

	// Maintenance
	Count(ctx context.Context, req models.Requester) (int, error)
	Stats(ctx context.Context) (*Stats, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
