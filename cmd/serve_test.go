package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	assert.Equal(t, filepath.Join(dir, "codereview-serve.pid"), pf.Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)

	assert.Equal(t, filepath.Join(dir, "codereview-serve.log"), serveLogPath())
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)
	out := &bytes.Buffer{}
	ui.Out = out

	require.NoError(t, serveStatusRun())
	assert.Contains(t, out.String(), "not running")
}

func TestServeStopRun_NotRunning(t *testing.T) {
	dir := testEnv(t)

	// A stale PID file is cleaned up.
	pf := daemon.NewPIDFile(filepath.Join(dir, "codereview-serve.pid"))
	require.NoError(t, pf.WritePID(99999999))

	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Write a PID file for the current process (which is alive).
	pf := daemon.NewPIDFile(filepath.Join(dir, "codereview-serve.pid"))
	require.NoError(t, pf.Write())
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}
