package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/codereview/internal/git"
	"github.com/joescharf/codereview/internal/ingest"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/output"
	"github.com/joescharf/codereview/internal/review"
)

var (
	reviewOutput  string
	reviewJSON    bool
	reviewChanged bool
	reviewBase    string
)

// gitClient lists changed files for --changed, replaceable in tests.
var gitClient git.Client = git.NewClient()

// newReviewer builds the model client used by the review command, replaceable in tests.
var newReviewer = func() (review.Reviewer, error) {
	c, err := newLLMClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

var reviewCmd = &cobra.Command{
	Use:   "review [file]...",
	Short: "Review source files and store a PDF report",
	Long: `Send one or more source files to the configured model as a single review
request. The answer is split into the Code Quality & Readability,
Modularity & Architecture, Potential Bugs, Security Issues, Performance
Analysis, Best Practices and Improvement Suggestions sections. Each file
gets a time/space complexity estimate and the PDF report is stored under
the configured user.

With --changed, files modified in the current git working tree (or since
--base) are added to the request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd.Context(), args)
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewOutput, "output", "o", "", "Also copy the PDF report to this path")
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Print the result as JSON")
	reviewCmd.Flags().BoolVar(&reviewChanged, "changed", false, "Review supported files changed in the current git repository")
	reviewCmd.Flags().StringVar(&reviewBase, "base", "", "With --changed, compare against this commit instead of HEAD")
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(ctx context.Context, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := currentRequester()
	if err != nil {
		return err
	}

	if reviewChanged {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		changed, err := gitClient.ChangedFiles(cwd, reviewBase)
		if err != nil {
			return err
		}
		ui.VerboseLog("%d changed file(s) in working tree", len(changed))
		paths = append(paths, changed...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files to review")
	}

	raw, err := ingest.ReadPaths(paths)
	if err != nil {
		return err
	}

	if dryRun {
		var total int
		for _, f := range raw {
			total += len(f.Data)
		}
		ui.DryRunMsg("Would review %d file(s), %s, as %s", len(raw), output.HumanBytes(int64(total)), req.UserID)
		return nil
	}

	rv, err := newReviewer()
	if err != nil {
		return err
	}
	p, err := newPipeline(rv)
	if err != nil {
		return err
	}

	ui.VerboseLog("Reviewing %s", strings.Join(paths, ", "))
	res, err := p.Run(ctx, req, raw)
	if err != nil {
		return err
	}

	if reviewOutput != "" {
		if err := copyReport(res.Report, reviewOutput); err != nil {
			return err
		}
	}

	if reviewJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	printReviewResult(res)
	return nil
}

func copyReport(r *models.Report, dest string) error {
	data, err := os.ReadFile(r.PDFPath)
	if err != nil {
		return fmt.Errorf("read report document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	ui.VerboseLog("Copied report to %s", dest)
	return nil
}

func printReviewResult(res *review.Result) {
	r := res.Report
	ui.Success("Report %s stored", output.Cyan(r.ID))
	if res.Cached {
		ui.Info("Answer served from response cache")
	}
	fmt.Fprintf(ui.Out, "  Files:   %s\n", strings.Join(r.FileList(), ", "))
	fmt.Fprintf(ui.Out, "  Model:   %s\n", r.Metadata.ModelID)
	fmt.Fprintf(ui.Out, "  Tokens:  %d (prompt %d, completion %d)\n",
		r.Metadata.TokenUsage.Total, r.Metadata.TokenUsage.Prompt, r.Metadata.TokenUsage.Completion)
	fmt.Fprintf(ui.Out, "  PDF:     %s\n", r.PDFPath)

	printSectionCounts(res.Parsed)
	printEstimates(res.Estimates)
}

func printSectionCounts(parsed models.ParsedReview) {
	table := ui.Table([]string{"SECTION", "LINES"})
	for _, s := range models.AllSections() {
		content := parsed.Sections[s]
		n := 0
		if content != "" {
			n = len(strings.Split(content, "\n"))
		}
		_ = table.Append([]string{s.Title(), fmt.Sprintf("%d", n)})
	}
	fmt.Fprintln(ui.Out)
	_ = table.Render()
}

func printEstimates(estimates []models.ComplexityEstimate) {
	if len(estimates) == 0 {
		return
	}
	table := ui.Table([]string{"FILE", "TIME", "SPACE"})
	for _, e := range estimates {
		_ = table.Append([]string{e.File, output.ComplexityColor(e.Time), output.ComplexityColor(e.Space)})
	}
	fmt.Fprintln(ui.Out)
	_ = table.Render()
}
