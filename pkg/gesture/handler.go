// ABOUTME: Selection state machine that turns pointer and keyboard gestures into annotations
// ABOUTME: IDLE -> DRAFTING -> COMMITTED | DISCARDED, with debounced selection changes

package gesture

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/textanchor/pkg/anchor"
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/input"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/selection"
	"github.com/nainya/textanchor/pkg/store"
)

// State of the current gesture
type State int

const (
	IDLE State = iota
	DRAFTING
	COMMITTED
	DISCARDED
)

func (s State) String() string {
	switch s {
	case DRAFTING:
		return "DRAFTING"
	case COMMITTED:
		return "COMMITTED"
	case DISCARDED:
		return "DISCARDED"
	default:
		return "IDLE"
	}
}

// Draft outcomes reported to the recorder
const (
	OUTCOME_COMMITTED = "committed"
	OUTCOME_DISCARDED = "discarded"
	OUTCOME_CLICK     = "click"
)

// Store is the part of the annotation store the handler writes to
type Store interface {
	GetAnnotation(id string) (model.Annotation, bool)
	AddAnnotation(a model.Annotation, origin store.Origin) error
	UpdateTarget(t model.Target, origin store.Origin) error
}

// HitTester finds the annotation under a container-relative point
type HitTester interface {
	GetAtFunc(x, y float64, keep func(id string) bool) (string, bool)
}

// Geometry reports where the container sits in client coordinates
type Geometry interface {
	Bounds() geom.Rect
}

// Selection is the annotation selection the handler drives
type Selection interface {
	Select(id string, evt *input.Event) bool
	Selected() []selection.Selected
	IsEmpty() bool
	Clear()
}

// Recorder receives draft outcomes
type Recorder interface {
	ObserveDraft(outcome string)
}

// Options tunes the state machine. The durations are empirical defaults.
type Options struct {
	ClickThreshold    time.Duration // Pointer-up on a collapsed selection within this is a click
	DebounceWindow    time.Duration // Quiet window for selection changes
	SelectStartGrace  time.Duration // Pointer-down this recent stands in for a missing select-start
	AnnotationEnabled bool
	OffsetReference   func(*document.Node) bool
	ContextLength     int           // Prefix/suffix characters stored with new selectors
	NewID             func() string // Draft identity, uuid v4 by default
	OnPointerMove     func(input.Event)
	Logger            zerolog.Logger
	Recorder          Recorder
}

// DefaultOptions returns the standard thresholds with annotation enabled
func DefaultOptions() Options {
	return Options{
		ClickThreshold:    300 * time.Millisecond,
		DebounceWindow:    20 * time.Millisecond,
		SelectStartGrace:  time.Second,
		AnnotationEnabled: true,
		NewID:             uuid.NewString,
	}
}

// Handler is the selection state machine of one container. It is not safe
// for concurrent use; feed it from a single goroutine (see Run).
type Handler struct {
	container *document.Node
	geo       Geometry
	store     Store
	index     HitTester
	selection Selection
	opts      Options
	log       zerolog.Logger

	state     State
	draft     *model.Target
	committed bool

	user   *model.User
	filter func(model.Annotation) bool

	leftClick bool
	keyboard  bool
	lastDown  *input.Event
	docSel    *document.Range

	debounce *input.Debouncer
}

// New creates an idle handler
func New(container *document.Node, geo Geometry, st Store, index HitTester, sel Selection, opts Options) *Handler {
	def := DefaultOptions()
	if opts.ClickThreshold <= 0 {
		opts.ClickThreshold = def.ClickThreshold
	}
	if opts.DebounceWindow < 0 {
		opts.DebounceWindow = def.DebounceWindow
	}
	if opts.SelectStartGrace <= 0 {
		opts.SelectStartGrace = def.SelectStartGrace
	}
	if opts.NewID == nil {
		opts.NewID = def.NewID
	}

	return &Handler{
		container: container,
		geo:       geo,
		store:     st,
		index:     index,
		selection: sel,
		opts:      opts,
		log:       opts.Logger.With().Str("component", "gesture").Logger(),
		debounce:  input.NewDebouncer(opts.DebounceWindow),
	}
}

// SetUser sets the creator recorded on new drafts
func (h *Handler) SetUser(u *model.User) {
	h.user = u
}

// SetFilter restricts which annotations a click can select
func (h *Handler) SetFilter(filter func(model.Annotation) bool) {
	h.filter = filter
}

// SetContainer rebinds the handler to a new container and cancels any draft
func (h *Handler) SetContainer(container *document.Node) {
	h.Cancel()
	h.container = container
}

// State returns the current state
func (h *Handler) State() State {
	return h.state
}

// Draft returns a copy of the in-progress target, if any
func (h *Handler) Draft() (model.Target, bool) {
	if h.draft == nil {
		return model.Target{}, false
	}
	return h.draft.Clone(), true
}

// Cancel aborts the current draft without touching the store
func (h *Handler) Cancel() {
	h.debounce.Reset()
	if h.state == DRAFTING && !h.committed {
		h.observe(OUTCOME_DISCARDED)
	}
	h.draft = nil
	h.committed = false
	h.keyboard = false
	h.state = IDLE
}

// Handle processes one event. Debounced selection changes that became due
// by the event's time are applied first.
func (h *Handler) Handle(evt input.Event) {
	h.Tick(evt.Time)

	switch evt.Type {
	case input.PointerDown:
		h.flush()
		h.onPointerDown(evt)
	case input.PointerMove:
		if h.opts.OnPointerMove != nil {
			h.opts.OnPointerMove(evt)
		}
	case input.SelectStart:
		if h.opts.AnnotationEnabled {
			h.onSelectStart(evt)
		}
	case input.SelectionChange:
		h.docSel = evt.Selection
		if h.opts.AnnotationEnabled {
			h.debounce.Push(evt)
		}
	case input.PointerUp:
		if evt.Selection != nil {
			h.docSel = evt.Selection
		}
		h.flush()
		h.onPointerUp(evt)
	case input.KeyDown:
		switch evt.Key {
		case "Escape":
			h.Cancel()
		case "Shift":
			h.keyboard = true
		}
	case input.KeyUp:
		if evt.Key == "Shift" && !evt.Shift {
			h.flush()
			h.onShiftUp(evt)
		}
	}
}

// Tick applies a pending selection change whose window elapsed by now
func (h *Handler) Tick(now time.Time) {
	if e, ok := h.debounce.Due(now); ok {
		h.onSelectionChange(e)
	}
}

// Deadline returns when a pending selection change becomes due
func (h *Handler) Deadline() (time.Time, bool) {
	return h.debounce.Deadline()
}

// Run feeds events from src until it closes or ctx is done. Pending
// selection changes fire when their window elapses in wall time.
func (h *Handler) Run(ctx context.Context, src input.Source) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-src:
			if !ok {
				h.flush()
				return nil
			}
			h.Handle(evt)
			if h.debounce.Pending() {
				timer.Reset(h.debounce.Window())
			}
		case <-timer.C:
			h.flush()
		}
	}
}

func (h *Handler) flush() {
	if e, ok := h.debounce.Flush(); ok {
		h.onSelectionChange(e)
	}
}

func (h *Handler) onPointerDown(evt input.Event) {
	// Every gesture drafts under a fresh identity
	h.discard("new gesture")
	h.state = IDLE

	down := evt
	h.lastDown = &down
	h.leftClick = evt.Button == input.Primary
	h.keyboard = false
	h.docSel = nil
}

// annotatable reports whether a pointer target may start or end a gesture
func (h *Handler) annotatable(n *document.Node) bool {
	if n == nil {
		return true
	}
	return h.container.Contains(n) && document.IsAnnotatable(n)
}

func (h *Handler) onSelectStart(evt input.Event) {
	if !h.leftClick {
		return
	}
	target := evt.Target
	if target == nil && h.lastDown != nil {
		target = h.lastDown.Target
	}
	if !h.annotatable(target) {
		h.draft = nil
		return
	}
	h.startDraft(evt.Time)
}

func (h *Handler) startDraft(now time.Time) {
	h.draft = &model.Target{
		Annotation: h.opts.NewID(),
		Creator:    h.user,
		Created:    now,
	}
	h.committed = false
	h.state = DRAFTING
	h.log.Debug().Str("draft", h.draft.Annotation).Msg("Draft started")
}

func (h *Handler) discard(reason string) {
	if h.state == DRAFTING && !h.committed {
		h.log.Debug().Str("reason", reason).Msg("Draft discarded")
		h.observe(OUTCOME_DISCARDED)
		h.state = DISCARDED
	}
	h.draft = nil
	h.committed = false
}

func (h *Handler) onSelectionChange(evt input.Event) {
	sel := evt.Selection

	if sel != nil && sel.Start.Node != nil && !document.IsAnnotatable(sel.Start.Node) {
		h.discard("selection in non-annotatable region")
		return
	}

	// Select-start is not always delivered
	if h.draft == nil && h.lastDown != nil && evt.Time.Sub(h.lastDown.Time) < h.opts.SelectStartGrace {
		h.onSelectStart(*h.lastDown)
	}
	if h.draft == nil && h.keyboard && !evt.Collapsed() {
		h.startDraft(evt.Time)
	}

	if evt.Collapsed() || !(h.leftClick || h.keyboard) || h.draft == nil {
		return
	}
	trimmed, err := anchor.TrimToContainer(*sel, h.container)
	if err != nil || anchor.IsWhitespaceOrEmpty(trimmed) {
		return
	}
	ranges := anchor.SplitAnnotatableRanges(trimmed)
	if !h.changed(ranges) {
		return
	}

	selectors := make([]model.TextSelector, 0, len(ranges))
	for _, r := range ranges {
		if anchor.IsWhitespaceOrEmpty(r) {
			continue
		}
		s, err := anchor.ToSelector(r, h.container, anchor.Options{
			OffsetReference: h.opts.OffsetReference,
			ContextLength:   h.opts.ContextLength,
		})
		if err != nil {
			h.log.Debug().Err(err).Msg("Skipping unselectable range")
			continue
		}
		selectors = append(selectors, s)
	}
	if len(selectors) == 0 {
		return
	}

	h.draft.Selectors = selectors
	h.draft.Updated = evt.Time

	if h.committed {
		if err := h.store.UpdateTarget(h.draft.Clone(), store.LOCAL); err != nil {
			h.log.Warn().Err(err).Str("annotation", h.draft.Annotation).Msg("Failed to update committed draft")
		}
	}
}

// changed compares new ranges against the draft's selectors by quote
func (h *Handler) changed(ranges []document.Range) bool {
	if len(ranges) != len(h.draft.Selectors) {
		return true
	}
	for i, r := range ranges {
		if anchor.CollapseWhitespace(r.String()) != h.draft.Selectors[i].Quote {
			return true
		}
	}
	return false
}

func (h *Handler) onPointerUp(evt input.Event) {
	if !h.leftClick {
		return
	}
	if !h.annotatable(evt.Target) {
		h.discard("released outside annotatable region")
		return
	}

	elapsed := time.Duration(math.MaxInt64)
	if h.lastDown != nil {
		elapsed = evt.Time.Sub(h.lastDown.Time)
	}
	collapsed := h.docSel == nil || h.docSel.Collapsed()

	switch {
	case collapsed:
		h.discard("collapsed selection")
		if elapsed < h.opts.ClickThreshold {
			h.observe(OUTCOME_CLICK)
			h.clickSelect(evt)
		}
	case h.draft != nil && len(h.draft.Selectors) > 0:
		h.commit(evt)
	default:
		h.discard("no selection")
	}
}

func (h *Handler) onShiftUp(evt input.Event) {
	if h.draft != nil && len(h.draft.Selectors) > 0 {
		h.commit(evt)
	}
	h.keyboard = false
}

// commit adds the draft to the store: clear the selection, add, then
// select the new annotation
func (h *Handler) commit(evt input.Event) {
	id := h.draft.Annotation
	if h.committed {
		if h.selection != nil {
			h.selection.Select(id, &evt)
		}
		h.state = COMMITTED
		return
	}

	if h.selection != nil {
		h.selection.Clear()
	}
	a := model.Annotation{ID: id, Target: h.draft.Clone()}
	if err := h.store.AddAnnotation(a, store.LOCAL); err != nil {
		h.log.Error().Err(err).Str("annotation", id).Msg("Failed to commit draft")
		h.discard("store rejected draft")
		return
	}
	h.committed = true
	h.state = COMMITTED
	h.observe(OUTCOME_COMMITTED)
	h.log.Debug().Str("annotation", id).Str("quote", h.draft.Quote()).Msg("Draft committed")

	if h.selection != nil {
		h.selection.Select(id, &evt)
	}
}

func (h *Handler) clickSelect(evt input.Event) {
	if h.index == nil || h.selection == nil {
		return
	}
	origin := h.geo.Bounds()

	var keep func(string) bool
	if h.filter != nil {
		keep = func(id string) bool {
			a, ok := h.store.GetAnnotation(id)
			return ok && h.filter(a)
		}
	}

	id, ok := h.index.GetAtFunc(evt.X-origin.X, evt.Y-origin.Y, keep)
	if !ok {
		if !h.selection.IsEmpty() {
			h.selection.Clear()
		}
		return
	}
	selected := h.selection.Selected()
	if len(selected) != 1 || selected[0].ID != id {
		h.selection.Select(id, &evt)
	}
}

func (h *Handler) observe(outcome string) {
	if h.opts.Recorder != nil {
		h.opts.Recorder.ObserveDraft(outcome)
	}
}
