package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/models"
)

func sampleFiles() []models.SourceFile {
	return []models.SourceFile{
		{Name: "a.py", Language: models.LanguagePython, Content: "def f(xs):\n    return sorted(xs)\n", SizeBytes: 34},
		{Name: "b.js", Language: models.LanguageJavaScript, Content: "const x = 1;", SizeBytes: 12},
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := NewBuilder(PromptConfig{})
	first, err := b.Build(sampleFiles())
	require.NoError(t, err)
	second, err := b.Build(sampleFiles())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuild_Layout(t *testing.T) {
	prompt, err := NewBuilder(PromptConfig{}).Build(sampleFiles())
	require.NoError(t, err)

	for _, s := range models.AllSections() {
		assert.Contains(t, prompt, "## "+s.Title()+"\n")
	}

	first := strings.Index(prompt, "=== FILE 1: a.py (python) ===")
	firstEnd := strings.Index(prompt, "=== END FILE 1 ===")
	second := strings.Index(prompt, "=== FILE 2: b.js (javascript) ===")
	secondEnd := strings.Index(prompt, "=== END FILE 2 ===")
	require.True(t, first >= 0 && firstEnd > first, "file 1 delimiters")
	assert.True(t, second > firstEnd && secondEnd > second, "files keep input order")

	assert.Contains(t, prompt, "```python\ndef f(xs):\n    return sorted(xs)\n```\n")
	assert.Contains(t, prompt, "```javascript\nconst x = 1;\n```\n")
}

func TestBuild_OrderChangesPrompt(t *testing.T) {
	files := sampleFiles()
	a, err := NewBuilder(PromptConfig{}).Build(files)
	require.NoError(t, err)
	b, err := NewBuilder(PromptConfig{}).Build([]models.SourceFile{files[1], files[0]})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBuild_TooLarge(t *testing.T) {
	_, err := NewBuilder(PromptConfig{MaxTokens: 50}).Build(sampleFiles())
	var tooLarge *PromptTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 50, tooLarge.Limit)
	assert.Greater(t, tooLarge.Estimated, 50)
	assert.Contains(t, err.Error(), "exceeds limit of 50")
}

func TestBuild_FenceLongerThanContent(t *testing.T) {
	files := []models.SourceFile{{
		Name:     "doc.py",
		Language: models.LanguagePython,
		Content:  "s = '''\n```\ninner\n```\n'''\n",
	}}
	prompt, err := NewBuilder(PromptConfig{}).Build(files)
	require.NoError(t, err)
	assert.Contains(t, prompt, "````python\n")
}

func TestBuild_RedactSecrets(t *testing.T) {
	files := []models.SourceFile{{
		Name:     "config.py",
		Language: models.LanguagePython,
		Content:  "API_KEY = \"abcdefghijklmnopqrstuvwx\"\n",
	}}

	plain, err := NewBuilder(PromptConfig{}).Build(files)
	require.NoError(t, err)
	assert.Contains(t, plain, "abcdefghijklmnopqrstuvwx")

	redacted, err := NewBuilder(PromptConfig{RedactSecrets: true}).Build(files)
	require.NoError(t, err)
	assert.NotContains(t, redacted, "abcdefghijklmnopqrstuvwx")
	assert.Contains(t, redacted, "[REDACTED]")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
