package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/output"
	"github.com/joescharf/codereview/internal/review"
	"github.com/joescharf/codereview/internal/store"
)

var (
	reportSort      string
	reportOrder     string
	reportLimit     int
	reportSince     string
	reportUntil     string
	reportOutput    string
	reportForce     bool
	reportOlderThan time.Duration
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Aliases: []string{"reports"},
	Short:   "Browse and manage stored review reports",
	Long: `Browse and manage stored review reports.

Running bare 'codereview report' is the same as 'codereview report list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportListRun(cmd.Context(), "")
	},
}

var reportListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List reports visible to the configured user",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportListRun(cmd.Context(), "")
	},
}

var reportSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search reports by file name or review text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportListRun(cmd.Context(), args[0])
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a report's sections and complexity estimates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportShowRun(cmd.Context(), args[0])
	},
}

var reportDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a report and its PDF",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportDeleteRun(cmd.Context(), args[0])
	},
}

var reportDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Write a report's PDF to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportDownloadRun(cmd.Context(), args[0])
	},
}

var reportRerenderCmd = &cobra.Command{
	Use:   "rerender <id>",
	Short: "Rebuild a report's PDF from its stored review text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRerenderRun(cmd.Context(), args[0])
	},
}

var reportCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete reports older than a given age (admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportCleanupRun(cmd.Context())
	},
}

var reportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show report counts and storage usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportStatsRun(cmd.Context())
	},
}

func init() {
	for _, c := range []*cobra.Command{reportCmd, reportListCmd, reportSearchCmd} {
		c.Flags().StringVar(&reportSort, "sort", "date", "Sort by: date, filename")
		c.Flags().StringVar(&reportOrder, "order", "", "Sort order: asc, desc (default desc for date, asc for filename)")
		c.Flags().IntVar(&reportLimit, "limit", 0, "Maximum number of reports (0 = all)")
		c.Flags().StringVar(&reportSince, "since", "", "Only reports created on or after this date (YYYY-MM-DD or RFC3339)")
		c.Flags().StringVar(&reportUntil, "until", "", "Only reports created on or before this date (YYYY-MM-DD or RFC3339)")
	}
	reportDownloadCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (default stdout)")
	reportDownloadCmd.Flags().BoolVar(&reportForce, "force", false, "Write binary PDF to a terminal")
	reportCleanupCmd.Flags().DurationVar(&reportOlderThan, "older-than", 90*24*time.Hour, "Age threshold")

	reportCmd.AddCommand(reportListCmd, reportSearchCmd, reportShowCmd, reportDeleteCmd,
		reportDownloadCmd, reportRerenderCmd, reportCleanupCmd, reportStatsCmd)
	rootCmd.AddCommand(reportCmd)
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// parseDate accepts RFC3339 or a bare date.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC3339)", v)
	}
	return t, nil
}

func buildQuery(text string) (store.Query, error) {
	q := store.Query{
		Text:   text,
		SortBy: store.SortField(reportSort),
		Order:  store.SortOrder(reportOrder),
		Limit:  reportLimit,
	}
	switch q.SortBy {
	case "", store.SortByDate, store.SortByFilename:
	default:
		return q, fmt.Errorf("unknown sort field: %s (use: date, filename)", reportSort)
	}
	switch q.Order {
	case "", store.OrderAsc, store.OrderDesc:
	default:
		return q, fmt.Errorf("unknown sort order: %s (use: asc, desc)", reportOrder)
	}
	if q.Limit < 0 {
		return q, fmt.Errorf("limit must not be negative")
	}

	var err error
	if q.Since, err = parseDate(reportSince); err != nil {
		return q, err
	}
	if q.Until, err = parseDate(reportUntil); err != nil {
		return q, err
	}
	// A bare --until date includes that whole day.
	if reportUntil != "" && len(reportUntil) == len("2006-01-02") {
		q.Until = q.Until.Add(24*time.Hour - time.Nanosecond)
	}
	return q, nil
}

func reportListRun(ctx context.Context, text string) error {
	ctx = ctxOrBackground(ctx)
	req, err := currentRequester()
	if err != nil {
		return err
	}
	q, err := buildQuery(text)
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	reports, err := s.Search(ctx, req, q)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		ui.Info("No reports found")
		return nil
	}

	headers := []string{"ID", "FILES", "MODEL", "TOKENS", "CREATED"}
	if req.Role == models.RoleAdmin {
		headers = append(headers, "OWNER")
	}
	table := ui.Table(headers)
	for _, r := range reports {
		row := []string{
			output.Cyan(r.ID),
			r.Files,
			r.Metadata.ModelID,
			fmt.Sprintf("%d", r.Metadata.TokenUsage.Total),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		}
		if req.Role == models.RoleAdmin {
			row = append(row, r.OwnerID)
		}
		_ = table.Append(row)
	}
	return table.Render()
}

func reportShowRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	req, err := currentRequester()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	r, err := s.Get(ctx, id, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "Report:  %s\n", output.Cyan(r.ID))
	fmt.Fprintf(ui.Out, "Owner:   %s\n", r.OwnerID)
	fmt.Fprintf(ui.Out, "Files:   %s\n", strings.Join(r.FileList(), ", "))
	fmt.Fprintf(ui.Out, "Model:   %s\n", r.Metadata.ModelID)
	fmt.Fprintf(ui.Out, "Tokens:  %d\n", r.Metadata.TokenUsage.Total)
	fmt.Fprintf(ui.Out, "Created: %s\n", r.CreatedAt.Local().Format(time.RFC1123))
	if r.Metadata.RunID != "" {
		fmt.Fprintf(ui.Out, "Run:     %s\n", r.Metadata.RunID)
	}
	ui.VerboseLog("PDF: %s", r.PDFPath)

	parsed := review.NewParser().Parse(r.ReviewContent)
	for _, sec := range models.AllSections() {
		ui.Heading(sec.Title())
		if content := parsed.Sections[sec]; content != "" {
			fmt.Fprintln(ui.Out, content)
		} else {
			fmt.Fprintln(ui.Out, "No issues reported")
		}
	}
	if parsed.Other != "" {
		ui.Heading("Other Notes")
		fmt.Fprintln(ui.Out, parsed.Other)
	}

	names := r.FileList()
	files := make([]models.SourceFile, len(names))
	for i, n := range names {
		files[i] = models.SourceFile{Name: n, Language: models.LanguageForName(n)}
	}
	ui.Heading("Complexity")
	printEstimates(review.NewAnalyzer().Analyze(parsed, files))
	return nil
}

func reportDeleteRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	req, err := currentRequester()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		if _, err := s.Get(ctx, id, req); err != nil && !errors.Is(err, store.ErrCorrupt) {
			return err
		}
		ui.DryRunMsg("Would delete report %s", id)
		return nil
	}

	if err := s.Delete(ctx, id, req); err != nil {
		return err
	}
	ui.Success("Deleted report %s", id)
	return nil
}

// stdoutIsTerminal is replaceable in tests.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func reportDownloadRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	req, err := currentRequester()
	if err != nil {
		return err
	}

	if reportOutput == "" && !reportForce && stdoutIsTerminal() {
		return fmt.Errorf("refusing to write PDF to a terminal (use --output or --force)")
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	data, r, err := s.ReadDocument(ctx, id, req)
	if err != nil {
		return err
	}

	if reportOutput == "" {
		_, err := ui.Out.Write(data)
		return err
	}
	if err := os.WriteFile(reportOutput, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", reportOutput, err)
	}
	ui.Success("Saved report %s to %s (%s)", r.ID, reportOutput, output.HumanBytes(int64(len(data))))
	return nil
}

func reportRerenderRun(ctx context.Context, id string) error {
	ctx = ctxOrBackground(ctx)
	req, err := currentRequester()
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would re-render report %s", id)
		return nil
	}

	// Re-rendering needs no model access.
	p, err := newPipeline(nil)
	if err != nil {
		return err
	}
	r, err := p.Rerender(ctx, req, id)
	if err != nil {
		return err
	}
	ui.Success("Re-rendered report %s", r.ID)
	return nil
}

func reportCleanupRun(ctx context.Context) error {
	ctx = ctxOrBackground(ctx)
	req, err := currentRequester()
	if err != nil {
		return err
	}
	if req.Role != models.RoleAdmin {
		return fmt.Errorf("cleanup requires the admin role")
	}
	if reportOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		old, err := s.Search(ctx, req, store.Query{Until: time.Now().Add(-reportOlderThan)})
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would delete %d report(s) older than %s", len(old), reportOlderThan)
		return nil
	}

	n, err := s.Cleanup(ctx, reportOlderThan)
	if err != nil {
		return err
	}
	ui.Success("Deleted %d report(s) older than %s", n, reportOlderThan)
	return nil
}

func reportStatsRun(ctx context.Context) error {
	ctx = ctxOrBackground(ctx)
	req, err := currentRequester()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	mine, err := s.Count(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "Visible reports: %d\n", mine)
	if req.Role != models.RoleAdmin {
		return nil
	}

	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "Total reports:   %d\n", st.Total)
	if st.Oldest != nil {
		fmt.Fprintf(ui.Out, "Oldest:          %s\n", st.Oldest.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(ui.Out, "Newest:          %s\n", st.Newest.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(ui.Out, "Database size:   %s\n", output.HumanBytes(st.DBSizeBytes))
	fmt.Fprintf(ui.Out, "Reports size:    %s\n", output.HumanBytes(st.ReportsBytes))
	fmt.Fprintf(ui.Out, "Free space:      %s\n", output.HumanBytes(int64(st.FreeBytes)))
	return nil
}
