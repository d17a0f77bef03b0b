// ABOUTME: Current annotation selection with subscriptions
// ABOUTME: Tracks selected ids, the triggering event and drops deleted annotations

package selection

import (
	"slices"

	"github.com/rs/zerolog"

	"github.com/nainya/textanchor/pkg/input"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/store"
)

// SelectAction decides what selecting an annotation does
type SelectAction int

const (
	EDIT   SelectAction = iota // Select and make the target editable
	SELECT                     // Select only
	NONE                       // Inert, never selected
)

func (a SelectAction) String() string {
	switch a {
	case SELECT:
		return "SELECT"
	case NONE:
		return "NONE"
	default:
		return "EDIT"
	}
}

// PointerAction computes the select action per annotation
type PointerAction func(model.Annotation) SelectAction

// Always returns a PointerAction that ignores the annotation
func Always(a SelectAction) PointerAction {
	return func(model.Annotation) SelectAction { return a }
}

// Selected is one selected annotation
type Selected struct {
	ID       string
	Editable bool
}

// State is the current selection and the event that produced it
type State struct {
	Selected []Selected
	Event    *input.Event
}

// Store is the part of the annotation store the selection needs
type Store interface {
	GetAnnotation(id string) (model.Annotation, bool)
	Observe(fn func(store.ChangeSet), opts store.ObserveOptions) func()
}

// Options configures a TextSelection
type Options struct {
	Action PointerAction // nil selects with EDIT
	Logger zerolog.Logger
}

// TextSelection holds the selection state for one annotator
type TextSelection struct {
	store     Store
	action    PointerAction
	log       zerolog.Logger
	current   State
	subs      []subscriber
	nextSub   int
	unobserve func()
}

type subscriber struct {
	id int
	fn func(State)
}

// New creates an empty selection that follows store deletions
func New(st Store, opts Options) *TextSelection {
	action := opts.Action
	if action == nil {
		action = Always(EDIT)
	}
	s := &TextSelection{
		store:  st,
		action: action,
		log:    opts.Logger.With().Str("component", "selection").Logger(),
	}
	s.unobserve = st.Observe(func(cs store.ChangeSet) {
		ids := make([]string, len(cs.Deleted))
		for i, a := range cs.Deleted {
			ids[i] = a.ID
		}
		s.remove(ids)
	}, store.ObserveOptions{})
	return s
}

// Close stops following the store
func (s *TextSelection) Close() {
	if s.unobserve != nil {
		s.unobserve()
		s.unobserve = nil
	}
}

// Current returns a copy of the current state
func (s *TextSelection) Current() State {
	return State{Selected: slices.Clone(s.current.Selected), Event: s.current.Event}
}

// Selected returns a copy of the selected entries
func (s *TextSelection) Selected() []Selected {
	return slices.Clone(s.current.Selected)
}

// IsEmpty reports whether nothing is selected
func (s *TextSelection) IsEmpty() bool {
	return len(s.current.Selected) == 0
}

// IsSelected reports whether id is part of the selection
func (s *TextSelection) IsSelected(id string) bool {
	return slices.ContainsFunc(s.current.Selected, func(sel Selected) bool { return sel.ID == id })
}

// SelectionComplete reports whether the selecting gesture has ended:
// pointer released, or Shift lifted after a keyboard selection
func (s *TextSelection) SelectionComplete() bool {
	if len(s.current.Selected) == 0 || s.current.Event == nil {
		return false
	}
	switch e := s.current.Event; e.Type {
	case input.PointerUp:
		return true
	case input.KeyUp:
		return e.Key == "Shift" && !e.Shift
	}
	return false
}

// Select makes id the only selected annotation, following the pointer
// action. Unknown ids leave the selection unchanged.
func (s *TextSelection) Select(id string, evt *input.Event) bool {
	a, ok := s.store.GetAnnotation(id)
	if !ok {
		s.log.Warn().Str("annotation", id).Msg("Invalid selection")
		return false
	}

	switch s.action(a) {
	case EDIT:
		s.set(State{Selected: []Selected{{ID: id, Editable: true}}, Event: evt})
	case SELECT:
		s.set(State{Selected: []Selected{{ID: id}}, Event: evt})
	default:
		s.set(State{Event: evt})
	}
	return true
}

// SetSelected selects several annotations. A nil editable uses the
// pointer action; unknown ids are dropped.
func (s *TextSelection) SetSelected(ids []string, editable *bool) {
	selected := make([]Selected, 0, len(ids))
	for _, id := range ids {
		a, ok := s.store.GetAnnotation(id)
		if !ok {
			continue
		}
		e := s.action(a) == EDIT
		if editable != nil {
			e = *editable
		}
		selected = append(selected, Selected{ID: id, Editable: e})
	}
	if len(selected) != len(ids) {
		s.log.Warn().Strs("ids", ids).Msg("Invalid selection")
	}
	s.set(State{Selected: selected})
}

// Clear empties the selection
func (s *TextSelection) Clear() {
	s.set(State{})
}

// Subscribe registers fn for selection changes; fn is called immediately
// with the current state
func (s *TextSelection) Subscribe(fn func(State)) (unsubscribe func()) {
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	fn(s.Current())

	return func() {
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
	}
}

func (s *TextSelection) remove(ids []string) {
	if len(ids) == 0 || len(s.current.Selected) == 0 {
		return
	}
	kept := slices.DeleteFunc(slices.Clone(s.current.Selected), func(sel Selected) bool {
		return slices.Contains(ids, sel.ID)
	})
	if len(kept) != len(s.current.Selected) {
		s.set(State{Selected: kept})
	}
}

func (s *TextSelection) set(st State) {
	s.current = st
	for _, sub := range slices.Clone(s.subs) {
		sub.fn(s.Current())
	}
}
