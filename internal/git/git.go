package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joescharf/codereview/internal/models"
)

// Client finds reviewable files in a git working tree.
type Client interface {
	RepoRoot(path string) (string, error)
	// ChangedFiles returns absolute paths of supported source files that
	// differ from base, or from HEAD plus untracked files when base is empty.
	ChangedFiles(path, base string) ([]string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	out, err := gitCmd(path, "rev-parse", "--show-toplevel")
	return strings.TrimSpace(out), err
}

func (c *RealClient) ChangedFiles(path, base string) ([]string, error) {
	root, err := c.RepoRoot(path)
	if err != nil {
		return nil, err
	}

	var rel []string
	if base == "" {
		out, err := gitCmd(root, "status", "--porcelain=v1", "-z", "--untracked-files=all")
		if err != nil {
			return nil, err
		}
		rel = ParseStatusPorcelain(out)
	} else {
		out, err := gitCmd(root, "diff", "--name-only", "-z", "--diff-filter=ACMR", base)
		if err != nil {
			return nil, err
		}
		rel = splitNUL(out)
	}

	return filterSupported(root, rel), nil
}

// ParseStatusPorcelain extracts the current paths from NUL-separated
// `git status --porcelain=v1 -z` output, skipping deletions.
func ParseStatusPorcelain(output string) []string {
	var paths []string
	entries := splitNUL(output)
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if len(e) < 4 {
			continue
		}
		x, y, p := e[0], e[1], e[3:]
		// Renames and copies are followed by the original path.
		if x == 'R' || x == 'C' {
			i++
		}
		if x == 'D' || y == 'D' {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

func splitNUL(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\x00") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func filterSupported(root string, rel []string) []string {
	seen := make(map[string]bool, len(rel))
	var out []string
	for _, p := range rel {
		if !models.IsSupportedExtension(p) || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, filepath.Join(root, filepath.FromSlash(p)))
	}
	sort.Strings(out)
	return out
}
