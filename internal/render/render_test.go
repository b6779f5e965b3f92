package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/models"
)

func testMeta() Metadata {
	return Metadata{
		Files:     []string{"a.py", "b.js"},
		ModelID:   "qwen/qwen-2.5-coder-32b-instruct:free",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Usage:     models.TokenUsage{Prompt: 100, Completion: 50, Total: 150},
		RunID:     "01HZX3J4K5M6N7P8Q9R0S1T2V3",
	}
}

func testEstimates() []models.ComplexityEstimate {
	return []models.ComplexityEstimate{
		{File: "a.py", Time: models.ComplexityLinear, Space: models.ComplexityConstant},
		{File: "b.js", Time: models.ComplexityUnknown, Space: models.ComplexityUnknown},
	}
}

func testFiles() []models.SourceFile {
	return []models.SourceFile{
		{Name: "a.py", Language: models.LanguagePython, Content: "def f(xs):\n    return sum(xs)\n", SizeBytes: 30},
		{Name: "b.js", Language: models.LanguageJavaScript, Content: "const x = 1;\n", SizeBytes: 13},
	}
}

func uncompressed(cfg Config) *Renderer {
	r := NewRenderer(cfg)
	r.compress = false
	return r
}

func TestRender_ProducesPDF(t *testing.T) {
	parsed := models.NewParsedReview()
	parsed.Sections[models.SectionQuality] = "Naming is **clear**.\n- short functions"

	out, err := NewRenderer(Config{IncludeExcerpts: true}).Render(parsed, testEstimates(), testMeta(), testFiles())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.True(t, bytes.Contains(out, []byte("%%EOF")))
}

func TestRender_StableStructure(t *testing.T) {
	parsed := models.NewParsedReview()
	parsed.Sections[models.SectionSecurity] = "Uses eval on user input."
	parsed.Other = "Overall a tidy change."

	out, err := uncompressed(Config{}).Render(parsed, testEstimates(), testMeta(), testFiles())
	require.NoError(t, err)
	doc := string(out)

	for _, s := range models.AllSections() {
		title, err := encodeText(s.Title())
		require.NoError(t, err)
		assert.Contains(t, doc, "("+title+")", "missing section %s", s)
	}
	// Six of seven sections are empty.
	assert.Equal(t, 6, strings.Count(doc, "(No issues reported)"))
	assert.Contains(t, doc, "(Other Notes)")
	assert.Contains(t, doc, "(Complexity Analysis)")
	assert.Contains(t, doc, "(Page 1/")
	assert.Contains(t, doc, "(a.py, b.js)")
	assert.NotContains(t, doc, "(Code Excerpts)")
}

func TestRender_Excerpts(t *testing.T) {
	parsed := models.NewParsedReview()
	files := testFiles()
	files[0].Content = strings.Repeat("print('x')\n", 80)

	out, err := uncompressed(Config{IncludeExcerpts: true, ExcerptLines: 5}).Render(parsed, testEstimates(), testMeta(), files)
	require.NoError(t, err)
	doc := string(out)
	assert.Contains(t, doc, "(Code Excerpts)")
	assert.Contains(t, doc, "(... \\(truncated\\))")
}

func TestRender_TypographicAndEmoji(t *testing.T) {
	parsed := models.NewParsedReview()
	parsed.Sections[models.SectionPerformance] = "🚀 Loop is O(n²) → use a set ✅ (n ≤ 10)"

	_, err := NewRenderer(Config{}).Render(parsed, testEstimates(), testMeta(), nil)
	require.NoError(t, err)
}

func TestRender_AsymptoticNotation(t *testing.T) {
	parsed := models.NewParsedReview()
	parsed.Sections[models.SectionPerformance] = "Sorting is Θ(n log n); the lower bound is Ω(n) and memory grows as O(2ⁿ) with λ calls."

	out, err := NewRenderer(Config{}).Render(parsed, testEstimates(), testMeta(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestRender_UnsupportedCharacter(t *testing.T) {
	parsed := models.NewParsedReview()
	parsed.Sections[models.SectionBugs] = "変数名が不明確です"

	out, err := NewRenderer(Config{}).Render(parsed, testEstimates(), testMeta(), nil)
	require.Error(t, err)
	assert.Nil(t, out)

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "text", rerr.Op)

	var uerr *UnsupportedRuneError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, '変', uerr.Rune)
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a → b", "a -> b"},
		{"n ≥ 1", "n >= 1"},
		{"café", "caf\xe9"},
		{"“quoted”", "\x93quoted\x94"},
		{"🔒 Security", " Security"},
		{"⚠️ careful", "[!] careful"},
		{"x\ty", "x    y"},
		{"Θ(n log n)", "Theta(n log n)"},
		{"Ω(n)", "Omega(n)"},
		{"O(2ⁿ)", "O(2^n)"},
		{"⌈log₂ n⌉", "ceil(log2 n)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := encodeText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExcerpt(t *testing.T) {
	text, truncated := excerpt("a\nb\nc\n", 100, 50)
	assert.Equal(t, "a\nb\nc", text)
	assert.False(t, truncated)

	text, truncated = excerpt("a\nb\nc\nd", 100, 2)
	assert.Equal(t, "a\nb", text)
	assert.True(t, truncated)

	text, truncated = excerpt(strings.Repeat("x", 10), 4, 50)
	assert.Equal(t, "xxxx", text)
	assert.True(t, truncated)

	text, _ = excerpt("ééé", 3, 50)
	assert.Equal(t, "é", text)
}

func TestPlainLine(t *testing.T) {
	text, heading := plainLine("### Details")
	assert.Equal(t, "Details", text)
	assert.True(t, heading)

	text, heading = plainLine("- use **context** in `Run`")
	assert.Equal(t, "• use context in Run", text)
	assert.False(t, heading)
}
