// internal/game/clock.go
//
// Scheduling seam for the engine's delayed work.
// Production code uses the wall clock (time.AfterFunc); tests drive a
// ManualClock so every delay fires exactly when the test says so.

package game

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback that can be cancelled.
// *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d and reports the current time.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// WallClock schedules on real timers.
type WallClock struct{}

func (WallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (WallClock) Now() time.Time                            { return time.Now() }

// ManualClock is a Scheduler whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance, ordered by due
// time and then by scheduling order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Time
	seq     uint64
	f       func()
	stopped bool
	fired   bool
}

// NewManualClock starts a clock at a fixed, arbitrary instant.
func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves time forward by d, firing every callback that falls due,
// including ones scheduled by callbacks during the advance.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// Pending reports how many callbacks are still armed.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *ManualClock) popDue(target time.Time) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.pending[:0]
	for _, t := range c.pending {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.pending = live
	if len(c.pending) == 0 {
		return nil
	}
	sort.Slice(c.pending, func(i, j int) bool {
		if c.pending[i].at.Equal(c.pending[j].at) {
			return c.pending[i].seq < c.pending[j].seq
		}
		return c.pending[i].at.Before(c.pending[j].at)
	})
	next := c.pending[0]
	if next.at.After(target) {
		return nil
	}
	next.fired = true
	if next.at.After(c.now) {
		c.now = next.at
	}
	return next
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
