package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a csync.Clock that starts at a fixed instant and moves one
// step forward on every Now call, so a report's start and finish differ.
type StubClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// FixedClock returns a StubClock starting at 2024-01-15 10:30:00 UTC and
// stepping by one second.
func FixedClock() *StubClock {
	return &StubClock{
		next: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		step: time.Second,
	}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = now.Add(c.step)
	return now
}

// StubIDGenerator hands out sync-run uuids in sequence, shaped like real
// ones: 00000000-0000-0000-0000-000000000001, then ...002.
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n)
}
