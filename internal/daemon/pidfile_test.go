package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "run", "serve.pid"))

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Write_CurrentPID(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "serve.pid"))
	require.NoError(t, pf.Write())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Read_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewPIDFile(filepath.Join(dir, "missing.pid")).Read()
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, content := range []string{"not-a-number\n", "0\n", "-4\n"} {
		path := filepath.Join(dir, "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := NewPIDFile(path).Read()
		require.Error(t, err, content)
		assert.Contains(t, err.Error(), "invalid PID file content")
	}
}

func TestPIDFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.WritePID(1))
	require.NoError(t, pf.Remove())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing again is a no-op.
	assert.NoError(t, pf.Remove())
}

func TestPIDFile_RemoveIfOwned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.WritePID(200))

	require.NoError(t, pf.RemoveIfOwned(100))
	_, err := os.Stat(path)
	assert.NoError(t, err, "file of another process must survive")

	require.NoError(t, pf.RemoveIfOwned(200))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_IsRunning(t *testing.T) {
	dir := t.TempDir()

	pf := NewPIDFile(filepath.Join(dir, "self.pid"))
	require.NoError(t, pf.Write())
	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	// A PID far above any default pid_max.
	dead := NewPIDFile(filepath.Join(dir, "dead.pid"))
	require.NoError(t, dead.WritePID(99999999))
	pid, running = dead.IsRunning()
	assert.Equal(t, 99999999, pid)
	assert.False(t, running)

	pid, running = NewPIDFile(filepath.Join(dir, "none.pid")).IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	dir := t.TempDir()

	pf := NewPIDFile(filepath.Join(dir, "self.pid"))
	require.NoError(t, pf.Write())
	// Signal 0 only checks that the process exists.
	assert.NoError(t, pf.Signal(syscall.Signal(0)))

	missing := NewPIDFile(filepath.Join(dir, "none.pid"))
	assert.ErrorIs(t, missing.Signal(syscall.Signal(0)), ErrNotRunning)
}
