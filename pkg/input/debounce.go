// ABOUTME: Trailing-edge debouncer keyed on event time
// ABOUTME: Keeps only the most recent event of a burst until the window elapses

package input

import "time"

// Debouncer coalesces bursts of events. It holds no timers: callers drive
// it with Due (time-based) or Flush (forced).
type Debouncer struct {
	window   time.Duration
	pending  *Event
	deadline time.Time
	dropped  int
}

// NewDebouncer creates a debouncer with the given quiet window
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Window returns the quiet window
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Push replaces the pending event and restarts the window at e.Time
func (d *Debouncer) Push(e Event) {
	if d.pending != nil {
		d.dropped++
	}
	d.pending = &e
	d.deadline = e.Time.Add(d.window)
}

// Due pops the pending event when the window has elapsed at now
func (d *Debouncer) Due(now time.Time) (Event, bool) {
	if d.pending == nil || now.Before(d.deadline) {
		return Event{}, false
	}
	return d.Flush()
}

// Flush pops the pending event regardless of the window
func (d *Debouncer) Flush() (Event, bool) {
	if d.pending == nil {
		return Event{}, false
	}
	e := *d.pending
	d.pending = nil
	return e, true
}

// Pending reports whether an event is waiting
func (d *Debouncer) Pending() bool {
	return d.pending != nil
}

// Deadline returns when the pending event becomes due
func (d *Debouncer) Deadline() (time.Time, bool) {
	return d.deadline, d.pending != nil
}

// Reset drops the pending event
func (d *Debouncer) Reset() {
	d.pending = nil
}

// Dropped returns how many events were coalesced away
func (d *Debouncer) Dropped() int {
	return d.dropped
}
