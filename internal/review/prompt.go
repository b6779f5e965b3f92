package review

import (
	"fmt"
	"strings"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/redact"
)

// DefaultMaxPromptTokens is the prompt size limit when none is configured.
const DefaultMaxPromptTokens = 24000

// PromptTooLargeError is returned when the assembled prompt exceeds the
// configured token limit. Prompts are never truncated.
type PromptTooLargeError struct {
	Estimated int
	Limit     int
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("prompt too large: ~%d tokens exceeds limit of %d", e.Estimated, e.Limit)
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	MaxTokens     int
	RedactSecrets bool
}

// Builder assembles review prompts.
type Builder struct {
	cfg PromptConfig
}

// NewBuilder creates a Builder, applying defaults for zero values.
func NewBuilder(cfg PromptConfig) *Builder {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxPromptTokens
	}
	return &Builder{cfg: cfg}
}

// EstimateTokens approximates the token count of text at four characters
// per token, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Build renders the prompt for files in order. The result depends only on
// its input.
func (pb *Builder) Build(files []models.SourceFile) (string, error) {
	var b strings.Builder

	b.WriteString("You are a senior software engineer performing a thorough code review.\n")
	b.WriteString("Review the files below and answer under exactly these Markdown headers, in this order:\n\n")
	for _, s := range models.AllSections() {
		fmt.Fprintf(&b, "## %s\n", s.Title())
	}
	b.WriteString("\n")

	b.WriteString("Guidance per section:\n")
	b.WriteString("- Code Quality & Readability: naming, structure, comments, dead code.\n")
	b.WriteString("- Modularity & Architecture: separation of concerns, coupling, reuse.\n")
	b.WriteString("- Potential Bugs: logic errors, edge cases, unhandled failures.\n")
	b.WriteString("- Security Issues: injection, unsafe input handling, secrets, unsafe APIs.\n")
	b.WriteString("- Performance Analysis: for each file, name the file and state its time and space complexity in Big-O notation, e.g. \"main.py: time O(n log n), space O(n)\".\n")
	b.WriteString("- Best Practices: language idioms and conventions.\n")
	b.WriteString("- Improvement Suggestions: concrete, prioritized changes.\n\n")
	b.WriteString("Write \"No issues found.\" under a header with nothing to report. Do not add other top-level headers.\n\n")

	fmt.Fprintf(&b, "Files under review (%d):\n\n", len(files))
	for i, f := range files {
		content := f.Content
		if pb.cfg.RedactSecrets {
			content = redact.Secrets(content)
		}
		fence := fenceFor(content)
		fmt.Fprintf(&b, "=== FILE %d: %s (%s) ===\n", i+1, f.Name, f.Language)
		fmt.Fprintf(&b, "%s%s\n", fence, f.Language)
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s\n", fence)
		fmt.Fprintf(&b, "=== END FILE %d ===\n\n", i+1)
	}

	prompt := b.String()
	if est := EstimateTokens(prompt); est > pb.cfg.MaxTokens {
		return "", &PromptTooLargeError{Estimated: est, Limit: pb.cfg.MaxTokens}
	}
	return prompt, nil
}

// fenceFor picks a backtick fence longer than any run inside content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	n := 3
	if longest >= n {
		n = longest + 1
	}
	return strings.Repeat("`", n)
}
