// Package lock prevents two trk processes from mutating the same project
// at once. A PID file in the .trk directory marks the active writer; stale
// files from dead processes are cleaned up automatically.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName is the name of the guard file in the .trk directory.
const PIDFileName = "trk.pid"

// Guard serializes mutating commands within one project.
type Guard struct {
	dir string
}

// NewGuard creates a guard for the given .trk directory.
func NewGuard(dir string) *Guard {
	return &Guard{dir: dir}
}

func (g *Guard) pidFilePath() string {
	return filepath.Join(g.dir, PIDFileName)
}

// Check verifies no other trk process is mutating the project. A stale PID
// file (process no longer running) is cleaned up. Returns nil if safe to
// proceed.
func (g *Guard) Check() error {
	pidFile := g.pidFilePath()

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Invalid PID file, remove it
		os.Remove(pidFile)
		return nil
	}

	if processExists(pid) {
		return &BusyError{PID: pid}
	}

	// Stale PID file, clean it up
	os.Remove(pidFile)
	return nil
}

// Acquire writes the current process PID to the guard file.
// Call Check() before Acquire() to ensure no conflict.
func (g *Guard) Acquire() error {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(g.pidFilePath(), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file.
// Safe to call even if file doesn't exist.
func (g *Guard) Release() {
	os.Remove(g.pidFilePath())
}

// BusyError indicates another trk process holds the project.
type BusyError struct {
	PID int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("another trk process is modifying this project (pid %d)", e.PID)
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds. We need to send signal 0 to check.
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
