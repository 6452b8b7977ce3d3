// Package debounce collapses bursts of events into one trailing call.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet window used for resize and file events.
const DefaultDelay = 250 * time.Millisecond

// Timer is the handle of a scheduled call.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer holds at most one pending call. Each Trigger cancels the pending
// call and schedules a new one; only the last call of a burst runs.
type Debouncer struct {
	mu        sync.Mutex
	delay     time.Duration
	afterFunc AfterFunc
	pending   Timer
	gen       uint64
}

// New returns a Debouncer with the given quiet window.
func New(delay time.Duration) *Debouncer {
	return NewWithAfterFunc(delay, timeAfterFunc)
}

// NewWithAfterFunc returns a Debouncer that schedules through af.
func NewWithAfterFunc(delay time.Duration, af AfterFunc) *Debouncer {
	return &Debouncer{delay: delay, afterFunc: af}
}

// Delay returns the quiet window.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger replaces any pending call with f, to run after the quiet window.
func (d *Debouncer) Trigger(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = d.afterFunc(d.delay, func() {
		d.mu.Lock()
		// A superseded timer that fired before Stop could take effect.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		f()
	})
}

// Cancel drops the pending call, reporting whether there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}
	d.pending.Stop()
	d.pending = nil
	d.gen++
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
