//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// detach starts the background server in its own session so it outlives
// the launching terminal.
func detach(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shutdownSignals end a foreground server gracefully.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// stopSignals returns the graceful and forced signals used by `serve stop`.
func stopSignals() (graceful, forced syscall.Signal) {
	return syscall.SIGTERM, syscall.SIGKILL
}
