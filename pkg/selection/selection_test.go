// ABOUTME: Tests for the selection state

package selection

import (
	"testing"

	"github.com/nainya/textanchor/pkg/input"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/store"
)

func setupSelection(t *testing.T, action PointerAction) (*TextSelection, *store.Store) {
	s := store.New()
	for _, id := range []string{"a1", "a2", "ro"} {
		if err := s.AddAnnotation(model.Annotation{ID: id}, store.LOCAL); err != nil {
			t.Fatalf("Failed to add %s: %v", id, err)
		}
	}
	sel := New(s, Options{Action: action})
	t.Cleanup(sel.Close)
	return sel, s
}

func TestSelectAndComplete(t *testing.T) {
	sel, _ := setupSelection(t, nil)

	var states []State
	unsubscribe := sel.Subscribe(func(st State) { states = append(states, st) })
	defer unsubscribe()

	if len(states) != 1 || len(states[0].Selected) != 0 {
		t.Fatalf("Expected initial empty state, got %+v", states)
	}

	down := &input.Event{Type: input.PointerDown}
	if !sel.Select("a1", down) {
		t.Fatal("Expected select to succeed")
	}
	if !sel.IsSelected("a1") || !sel.Selected()[0].Editable {
		t.Error("Expected a1 selected and editable")
	}
	if sel.SelectionComplete() {
		t.Error("Selection is not complete on pointer-down")
	}

	sel.Select("a1", &input.Event{Type: input.PointerUp})
	if !sel.SelectionComplete() {
		t.Error("Expected selection complete on pointer-up")
	}

	sel.Select("a1", &input.Event{Type: input.KeyUp, Key: "Shift", Shift: false})
	if !sel.SelectionComplete() {
		t.Error("Expected selection complete after lifting Shift")
	}

	if sel.Select("missing", down) {
		t.Error("Expected select of unknown id to fail")
	}
	if !sel.IsSelected("a1") {
		t.Error("Unknown id must not change the selection")
	}

	sel.Clear()
	if !sel.IsEmpty() {
		t.Error("Expected empty selection after clear")
	}
	if len(states) != 5 {
		t.Errorf("Expected 5 notifications, got %d", len(states))
	}
}

func TestPointerAction(t *testing.T) {
	action := func(a model.Annotation) SelectAction {
		if a.ID == "ro" {
			return NONE
		}
		return SELECT
	}
	sel, _ := setupSelection(t, action)

	sel.Select("a1", nil)
	if got := sel.Selected(); len(got) != 1 || got[0].Editable {
		t.Errorf("Expected non-editable selection, got %+v", got)
	}

	sel.Select("ro", nil)
	if !sel.IsEmpty() {
		t.Error("Expected inert annotation not to be selected")
	}

	editable := true
	sel.SetSelected([]string{"a1", "a2", "missing"}, &editable)
	got := sel.Selected()
	if len(got) != 2 || !got[0].Editable || !got[1].Editable {
		t.Errorf("Expected two editable entries, got %+v", got)
	}
}

func TestDeletedAnnotationsLeaveSelection(t *testing.T) {
	sel, s := setupSelection(t, nil)

	sel.SetSelected([]string{"a1", "a2"}, nil)
	if err := s.DeleteAnnotation("a1", store.LOCAL); err != nil {
		t.Fatal(err)
	}

	got := sel.Selected()
	if len(got) != 1 || got[0].ID != "a2" {
		t.Errorf("Expected only a2 selected, got %+v", got)
	}
}
