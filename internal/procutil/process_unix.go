//go:build !windows

// Package procutil wraps the platform-specific bits of talking to other
// processes: liveness checks and graceful termination.
package procutil

import (
	"os"
	"syscall"
)

// GracefulTerminate asks the process to shut down cleanly.
func GracefulTerminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

// TerminateByPID asks the process identified by pid to shut down cleanly.
func TerminateByPID(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// IsProcessAlive reports whether a process with the given pid exists.
func IsProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
