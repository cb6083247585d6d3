package app

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRunLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")

	first := NewRunLock(dir)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	// Re-acquiring a held lock is a no-op.
	if err := first.Acquire(); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	second := NewRunLock(dir)
	err := second.Acquire()
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Acquire() while held error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release() of unheld lock error = %v", err)
	}
}
