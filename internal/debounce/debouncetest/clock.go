// Package debouncetest provides a manually advanced clock for debounce tests.
package debouncetest

import (
	"sort"
	"sync"
	"time"

	"github.com/user/voterchart/internal/debounce"
)

// Clock schedules callbacks on a virtual timeline advanced by Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*timer
}

type timer struct {
	clock   *Clock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewClock returns a clock at virtual time zero.
func NewClock() *Clock {
	return &Clock{}
}

// AfterFunc satisfies debounce.AfterFunc.
func (c *Clock) AfterFunc(d time.Duration, f func()) debounce.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward and runs every callback that came due,
// in deadline order, on the calling goroutine.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*timer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
