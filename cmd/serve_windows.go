//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// detach is a no-op on Windows.
func detach(_ *exec.Cmd) {}

// shutdownSignals end a foreground server gracefully.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// stopSignals returns the signals used by `serve stop`. Windows can only
// kill, so both are the same.
func stopSignals() (graceful, forced syscall.Signal) {
	return syscall.SIGKILL, syscall.SIGKILL
}
