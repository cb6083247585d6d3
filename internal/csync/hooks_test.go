package csync_test

import (
	"errors"
	"slices"
	"testing"

	"csync/internal/csync"
)

func TestHooks_Fire(t *testing.T) {
	t.Run("calls subscribers in registration order", func(t *testing.T) {
		h := csync.NewHooks()
		var calls []string
		h.On(csync.EventAfterDelete, func(csync.Event) error { calls = append(calls, "first"); return nil })
		h.On(csync.EventAfterDelete, func(csync.Event) error { calls = append(calls, "second"); return nil })
		h.On(csync.EventBeforeDelete, func(csync.Event) error { calls = append(calls, "other"); return nil })

		if err := h.Fire(csync.Event{Name: csync.EventAfterDelete}); err != nil {
			t.Fatalf("Fire() error = %v", err)
		}
		if !slices.Equal(calls, []string{"first", "second"}) {
			t.Errorf("calls = %v, want [first second]", calls)
		}
	})

	t.Run("stops at first error", func(t *testing.T) {
		h := csync.NewHooks()
		stop := errors.New("stop")
		called := false
		h.On(csync.EventBeforeWriteFile, func(csync.Event) error { return stop })
		h.On(csync.EventBeforeWriteFile, func(csync.Event) error { called = true; return nil })

		err := h.Fire(csync.Event{Name: csync.EventBeforeWriteFile})
		if !errors.Is(err, stop) {
			t.Fatalf("Fire() error = %v, want %v", err, stop)
		}
		if called {
			t.Error("subscriber after the failing one was called")
		}
	})

	t.Run("payload is a copy", func(t *testing.T) {
		h := csync.NewHooks()
		h.On(csync.EventAfterSaveContent, func(ev csync.Event) error {
			ev.Path = "/changed"
			return nil
		})
		ev := csync.Event{Name: csync.EventAfterSaveContent, Path: "/a.md"}
		_ = h.Fire(ev)
		if ev.Path != "/a.md" {
			t.Errorf("Path = %q, subscriber mutated the caller's event", ev.Path)
		}
	})

	t.Run("nil hooks are a no-op", func(t *testing.T) {
		var h *csync.Hooks
		if err := h.Fire(csync.Event{Name: csync.EventCreated}); err != nil {
			t.Errorf("Fire() error = %v", err)
		}
	})
}
