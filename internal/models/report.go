package models

import (
	"strings"
	"time"
)

// Role is the access tier of a requester.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Requester is an already-authenticated caller.
type Requester struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// ReportMetadata is the structured metadata persisted alongside a report.
type ReportMetadata struct {
	ModelID    string     `json:"model_id"`
	TokenUsage TokenUsage `json:"token_usage"`
	RunID      string     `json:"run_id,omitempty"`
	LatencyMS  int64      `json:"latency_ms,omitempty"`
	FileCount  int        `json:"file_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Report is the persisted result of one successful pipeline run.
type Report struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Files         string         `json:"files"`
	PDFPath       string         `json:"pdf_path"`
	ReviewContent string         `json:"review_content"`
	Metadata      ReportMetadata `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// FileList splits the comma-joined Files column.
func (r *Report) FileList() []string {
	if r.Files == "" {
		return nil
	}
	parts := strings.Split(r.Files, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinFileNames builds the Files column from source files in order.
func JoinFileNames(files []SourceFile) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}
