package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotRunning is returned when no live server process owns the PID file.
var ErrNotRunning = errors.New("server not running")

// PIDFile tracks the process id of a background review server.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process's PID.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID records pid, creating the parent directory if needed.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file content: %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveIfOwned deletes the PID file only when it still names pid, so a
// stopping server never removes the file of its replacement.
func (p *PIDFile) RemoveIfOwned(pid int) error {
	cur, err := p.Read()
	if err != nil || cur != pid {
		return nil
	}
	return p.Remove()
}
