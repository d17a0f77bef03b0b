package input

import (
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		d.Push(Event{Type: SelectionChange, Time: t0.Add(time.Duration(i) * 5 * time.Millisecond), Key: string(rune('a' + i))})
	}

	// Last push at +20ms, due at +40ms
	if _, ok := d.Due(t0.Add(39 * time.Millisecond)); ok {
		t.Fatal("Event fired before the window elapsed")
	}
	e, ok := d.Due(t0.Add(40 * time.Millisecond))
	if !ok || e.Key != "e" {
		t.Fatalf("Expected latest event, got %v/%q", ok, e.Key)
	}
	if d.Pending() {
		t.Error("Expected nothing pending after firing")
	}
	if d.Dropped() != 4 {
		t.Errorf("Expected 4 coalesced events, got %d", d.Dropped())
	}
}

func TestDebouncerFlushAndReset(t *testing.T) {
	d := NewDebouncer(time.Second)
	t0 := time.Unix(0, 0)

	d.Push(Event{Time: t0, Key: "x"})
	if deadline, ok := d.Deadline(); !ok || !deadline.Equal(t0.Add(time.Second)) {
		t.Errorf("Unexpected deadline %v", deadline)
	}

	e, ok := d.Flush()
	if !ok || e.Key != "x" {
		t.Error("Expected flush to return the pending event")
	}
	if _, ok := d.Flush(); ok {
		t.Error("Expected second flush to be empty")
	}

	d.Push(Event{Time: t0})
	d.Reset()
	if _, ok := d.Due(t0.Add(time.Hour)); ok {
		t.Error("Expected reset to drop the pending event")
	}
}
