package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initTestRepo creates a git repo in dir with a user config so commits work on CI.
func initTestRepo(t *testing.T, dir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	cmds := [][]string{
		{"git", "-C", dir, "init"},
		{"git", "-C", dir, "config", "user.email", "test@test.com"},
		{"git", "-C", dir, "config", "user.name", "Test"},
		{"git", "-C", dir, "config", "commit.gpgsign", "false"},
	}
	for _, args := range cmds {
		require.NoError(t, exec.Command(args[0], args[1:]...).Run())
	}
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
	require.NoError(t, err, string(out))
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseStatusPorcelain(t *testing.T) {
	input := " M src/app.py\x00?? new.go\x00R  renamed.js\x00old.js\x00 D gone.py\x00D  staged_gone.rs\x00A  added.ts\x00"
	assert.Equal(t, []string{"src/app.py", "new.go", "renamed.js", "added.ts"}, ParseStatusPorcelain(input))
}

func TestParseStatusPorcelain_Empty(t *testing.T) {
	assert.Nil(t, ParseStatusPorcelain(""))
}

func TestFilterSupported(t *testing.T) {
	got := filterSupported("/repo", []string{"b.py", "README.md", "a/x.go", "b.py"})
	assert.Equal(t, []string{filepath.Join("/repo", "a", "x.go"), filepath.Join("/repo", "b.py")}, got)
}

func TestChangedFiles(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)

	write(t, dir, "keep.py", "x = 1\n")
	write(t, dir, "edit.go", "package main\n")
	write(t, dir, "gone.js", "let a;\n")
	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", "init")

	write(t, dir, "edit.go", "package main\n\nfunc main() {}\n")
	write(t, dir, "pkg/new.rs", "fn main() {}\n")
	write(t, dir, "notes.txt", "todo\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "gone.js")))

	c := NewClient()
	root, err := c.RepoRoot(dir)
	require.NoError(t, err)

	files, err := c.ChangedFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "edit.go"),
		filepath.Join(root, "pkg", "new.rs"),
	}, files)

	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", "second")
	files, err = c.ChangedFiles(dir, "HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "edit.go"),
		filepath.Join(root, "pkg", "new.rs"),
	}, files)
}

func TestChangedFiles_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := NewClient().ChangedFiles(t.TempDir(), "")
	assert.Error(t, err)
}
