package csync

import (
	"fmt"
	"sync"
)

// EventName identifies a lifecycle point in the engine.
type EventName string

const (
	EventCreated           EventName = "created"
	EventBeforeProcessFile EventName = "before_process_file"
	EventAfterProcessFile  EventName = "after_process_file"
	EventBeforeSaveContent EventName = "before_save_content"
	EventAfterSaveContent  EventName = "after_save_content"
	EventBeforeWriteFile   EventName = "before_write_file"
	EventAfterWriteFile    EventName = "after_write_file"
	EventBeforeDelete      EventName = "before_delete"
	EventAfterDelete       EventName = "after_delete"
	EventBeforeOrphanSweep EventName = "before_orphan_sweep"
	EventAfterOrphanSweep  EventName = "after_orphan_sweep"
	EventSyncComplete      EventName = "sync_complete"
)

// Event is a value snapshot handed to subscribers. Fields that do not apply
// to an event are left zero.
type Event struct {
	Name      EventName
	Path      string
	FullPath  string
	ContentID int64
	Address   string
	Class     string
	Action    Action
	Counts    Counts
}

// Subscriber observes an event. A non-nil error aborts the operation that
// fired it.
type Subscriber func(Event) error

// Hooks holds subscribers per event, called in registration order.
type Hooks struct {
	mu   sync.RWMutex
	subs map[EventName][]Subscriber
}

func NewHooks() *Hooks {
	return &Hooks{subs: make(map[EventName][]Subscriber)}
}

// On registers fn for name.
func (h *Hooks) On(name EventName, fn Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[name] = append(h.subs[name], fn)
}

// Fire calls every subscriber for ev.Name synchronously and stops at the
// first error.
func (h *Hooks) Fire(ev Event) error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	subs := h.subs[ev.Name]
	h.mu.RUnlock()

	for _, fn := range subs {
		if err := fn(ev); err != nil {
			return fmt.Errorf("%s hook: %w", ev.Name, err)
		}
	}
	return nil
}
