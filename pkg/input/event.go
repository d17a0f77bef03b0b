// ABOUTME: Input events fed to the selection state machine
// ABOUTME: Pointer, keyboard and document selection signals with timestamps

package input

import (
	"fmt"
	"time"

	"github.com/nainya/textanchor/pkg/document"
)

// Type is the kind of input signal
type Type int

const (
	PointerDown Type = iota
	PointerUp
	PointerMove
	SelectStart
	SelectionChange
	KeyDown
	KeyUp
)

var typeNames = map[Type]string{
	PointerDown:     "pointerdown",
	PointerUp:       "pointerup",
	PointerMove:     "pointermove",
	SelectStart:     "selectstart",
	SelectionChange: "selectionchange",
	KeyDown:         "keydown",
	KeyUp:           "keyup",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Button is a pointer button code
type Button int

const (
	Primary Button = iota
	Auxiliary
	Secondary
)

// Event is one input signal. Selection carries the document selection for
// SelectionChange (and optionally PointerUp) events.
type Event struct {
	Type      Type
	Time      time.Time
	Button    Button
	X, Y      float64         // Client coordinates
	Target    *document.Node  // Node under the pointer, if known
	Selection *document.Range // Current document selection, nil when none
	Key       string          // Key name for keyboard events ("Shift", "Escape", ...)
	Shift     bool            // Shift held after the event
}

// Collapsed reports whether the event carries no (or an empty) selection
func (e Event) Collapsed() bool {
	return e.Selection == nil || e.Selection.Collapsed()
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%s(%g,%g)", e.Type, e.Time.Format("15:04:05.000"), e.X, e.Y)
}

// Source is a stream of input events
type Source <-chan Event
