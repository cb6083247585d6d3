package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is the run lock inside the base directory.
const LockFileName = "csync.lock"

// ErrLocked is returned when another process holds the run lock.
var ErrLocked = errors.New("another synchronization is running")

// RunLock is an advisory file lock that keeps two mutating runs from
// working on the same content root at once.
type RunLock struct {
	lock *flock.Flock
	held bool
}

func NewRunLock(baseDir string) *RunLock {
	return &RunLock{lock: flock.New(filepath.Join(baseDir, LockFileName))}
}

// Acquire takes the lock without waiting. It is a no-op if already held.
func (l *RunLock) Acquire() error {
	if l.held {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock file %s)", ErrLocked, l.lock.Path())
	}
	l.held = true
	return nil
}

// Release drops the lock if held.
func (l *RunLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	return l.lock.Unlock()
}
