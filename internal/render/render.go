// Package render lays out a parsed review as a paginated PDF report.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/joescharf/codereview/internal/models"
)

// Defaults for Config zero values.
const (
	DefaultExcerptChars = 2000
	DefaultExcerptLines = 50
	DefaultTitle        = "Code Review Report"
)

const (
	fontFamily = "Helvetica"
	monoFamily = "Courier"
	lineHeight = 5.0
)

// Config controls document layout.
type Config struct {
	Title           string
	IncludeExcerpts bool
	ExcerptChars    int
	ExcerptLines    int
}

// Metadata is the run information printed in the report header.
type Metadata struct {
	Files     []string
	ModelID   string
	CreatedAt time.Time
	Usage     models.TokenUsage
	RunID     string
}

// Renderer produces report documents. It performs no file I/O.
type Renderer struct {
	cfg      Config
	compress bool
}

// NewRenderer creates a Renderer, applying defaults for zero values.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = DefaultExcerptChars
	}
	if cfg.ExcerptLines <= 0 {
		cfg.ExcerptLines = DefaultExcerptLines
	}
	return &Renderer{cfg: cfg, compress: true}
}

// doc wraps fpdf and remembers the first text encoding failure.
type doc struct {
	*fpdf.Fpdf
	err error
}

func (d *doc) text(s string) string {
	if d.err != nil {
		return ""
	}
	out, err := encodeText(s)
	if err != nil {
		d.err = err
		return ""
	}
	return out
}

// Render lays out the review. Excerpts are included for files that carry
// content when the renderer is configured to show them.
func (r *Renderer) Render(parsed models.ParsedReview, estimates []models.ComplexityEstimate, meta Metadata, files []models.SourceFile) ([]byte, error) {
	d := &doc{Fpdf: fpdf.New("P", "mm", "A4", "")}
	d.SetCompression(r.compress)
	d.SetMargins(15, 15, 15)
	d.SetAutoPageBreak(true, 18)
	d.AliasNbPages("{nb}")
	if !meta.CreatedAt.IsZero() {
		d.SetCreationDate(meta.CreatedAt)
	}
	d.SetTitle(r.cfg.Title, true)
	d.SetCreator("codereview", true)
	d.SetFooterFunc(func() {
		d.SetY(-15)
		d.SetFont(fontFamily, "I", 8)
		d.SetTextColor(128, 128, 128)
		d.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", d.PageNo()), "", 0, "C", false, 0, "")
	})

	d.AddPage()
	r.header(d, meta)
	for _, s := range models.AllSections() {
		r.section(d, s.Title(), parsed.Sections[s], "No issues reported")
	}
	if parsed.Other != "" {
		r.section(d, "Other Notes", parsed.Other, "")
	}
	r.complexity(d, estimates)
	if r.cfg.IncludeExcerpts {
		r.excerpts(d, files)
	}

	if d.err != nil {
		return nil, &RenderError{Op: "text", Err: d.err}
	}
	if d.Err() {
		return nil, &RenderError{Op: "layout", Err: d.Error()}
	}
	var buf bytes.Buffer
	if err := d.Output(&buf); err != nil {
		return nil, &RenderError{Op: "output", Err: err}
	}
	return buf.Bytes(), nil
}

func (r *Renderer) header(d *doc, meta Metadata) {
	d.SetFont(fontFamily, "B", 18)
	d.SetTextColor(0, 0, 0)
	d.CellFormat(0, 12, d.text(r.cfg.Title), "", 1, "C", false, 0, "")
	d.Ln(4)

	created := meta.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	rows := [][2]string{
		{"Generated", created.UTC().Format("2006-01-02 15:04:05 MST")},
		{"Files Reviewed", strings.Join(meta.Files, ", ")},
		{"Model Used", meta.ModelID},
		{"Prompt Tokens", fmt.Sprintf("%d", meta.Usage.Prompt)},
		{"Completion Tokens", fmt.Sprintf("%d", meta.Usage.Completion)},
		{"Total Tokens", fmt.Sprintf("%d", meta.Usage.Total)},
	}
	if meta.RunID != "" {
		rows = append(rows, [2]string{"Run ID", meta.RunID})
	}

	d.SetFillColor(235, 235, 235)
	for _, row := range rows {
		d.SetFont(fontFamily, "B", 10)
		d.CellFormat(45, 7, d.text(row[0]), "1", 0, "L", true, 0, "")
		d.SetFont(fontFamily, "", 10)
		d.MultiCell(0, 7, d.text(row[1]), "1", "L", false)
	}
	d.Ln(6)
}

func (r *Renderer) heading(d *doc, title string) {
	d.SetFont(fontFamily, "B", 13)
	d.SetTextColor(20, 60, 120)
	d.CellFormat(0, 8, d.text(title), "B", 1, "L", false, 0, "")
	d.SetTextColor(0, 0, 0)
	d.Ln(2)
}

func (r *Renderer) section(d *doc, title, body, empty string) {
	r.heading(d, title)
	if strings.TrimSpace(body) == "" {
		d.SetFont(fontFamily, "I", 10)
		d.MultiCell(0, lineHeight, d.text(empty), "", "L", false)
		d.Ln(4)
		return
	}

	inFence := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			d.SetFont(monoFamily, "", 8)
			d.MultiCell(0, 4, d.text(line), "", "L", false)
			continue
		}
		text, isHeading := plainLine(line)
		if text == "" {
			d.Ln(2)
			continue
		}
		if isHeading {
			d.SetFont(fontFamily, "B", 11)
		} else {
			d.SetFont(fontFamily, "", 10)
		}
		d.MultiCell(0, lineHeight, d.text(text), "", "L", false)
	}
	d.Ln(4)
}

func (r *Renderer) excerpts(d *doc, files []models.SourceFile) {
	first := true
	for _, f := range files {
		if f.Content == "" {
			continue
		}
		if first {
			d.AddPage()
			r.heading(d, "Code Excerpts")
			first = false
		}
		d.SetFont(fontFamily, "B", 10)
		d.CellFormat(0, 6, d.text(fmt.Sprintf("%s (%s)", f.Name, f.Language)), "", 1, "L", false, 0, "")

		text, truncated := excerpt(f.Content, r.cfg.ExcerptChars, r.cfg.ExcerptLines)
		d.SetFont(monoFamily, "", 8)
		d.SetFillColor(245, 245, 245)
		d.MultiCell(0, 3.8, d.text(text), "1", "L", true)
		if truncated {
			d.SetFont(fontFamily, "I", 8)
			d.CellFormat(0, 5, "... (truncated)", "", 1, "L", false, 0, "")
		}
		d.Ln(4)
	}
}
