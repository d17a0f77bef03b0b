// ABOUTME: Tests for the render reconciler
// ABOUTME: Uses a recording painter over a real store, layout and spatial index

package render

import (
	"testing"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/layout"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/selection"
	"github.com/nainya/textanchor/pkg/spatial"
	"github.com/nainya/textanchor/pkg/store"
)

type recorder struct {
	frames [][]Highlight
}

func (p *recorder) Paint(highlights []Highlight, viewport geom.Rect) {
	p.frames = append(p.frames, highlights)
}

func (p *recorder) last() []Highlight {
	if len(p.frames) == 0 {
		return nil
	}
	return p.frames[len(p.frames)-1]
}

type fixture struct {
	store      *store.Store
	layout     *layout.Layout
	index      *spatial.Index
	selection  *selection.TextSelection
	painter    *recorder
	reconciler *Reconciler
}

func setupReconciler(t *testing.T, text string) *fixture {
	doc := document.FromText(text)
	f := &fixture{store: store.New(), painter: &recorder{}}
	f.layout = layout.New(doc, layout.Options{Columns: 40, CellWidth: 1, LineHeight: 1})
	f.index = spatial.New(f.store, f.layout, doc.Root, spatial.Options{})

	// The index must follow the store before the reconciler does
	f.store.Observe(func(cs store.ChangeSet) {
		for _, a := range cs.Created {
			f.index.Insert(a.Target)
		}
		for _, a := range cs.Deleted {
			f.index.Remove(a.Target)
		}
	}, store.ObserveOptions{})

	f.selection = selection.New(f.store, selection.Options{})
	f.reconciler = New(f.index, f.store, f.selection, f.painter, Options{})
	t.Cleanup(func() {
		f.reconciler.Close()
		f.selection.Close()
	})
	return f
}

func (f *fixture) add(t *testing.T, id, quote string, start, end int) {
	t.Helper()
	err := f.store.AddAnnotation(model.Annotation{
		ID:     id,
		Target: model.Target{Selectors: []model.TextSelector{{Quote: quote, Start: start, End: end}}},
	}, store.LOCAL)
	if err != nil {
		t.Fatalf("Failed to add %s: %v", id, err)
	}
}

var viewport = geom.Rect{X: 0, Y: 0, Width: 40, Height: 10}

func TestRedrawPaintsOnlyOnChange(t *testing.T) {
	f := setupReconciler(t, "hello world")
	f.add(t, "a1", "world", 6, 11)

	if !f.reconciler.Redraw(viewport, false) {
		t.Fatal("Expected first redraw to paint")
	}
	hs := f.painter.last()
	if len(hs) != 1 || hs[0].Annotation.ID != "a1" {
		t.Fatalf("Unexpected frame %+v", hs)
	}
	if want := (geom.Rect{X: 6, Y: 0, Width: 5, Height: 1}); len(hs[0].Rects) != 1 || hs[0].Rects[0] != want {
		t.Errorf("Expected rect %v, got %v", want, hs[0].Rects)
	}
	if hs[0].Style != DefaultStyle {
		t.Errorf("Expected default style, got %+v", hs[0].Style)
	}

	frames := f.reconciler.Frames()
	if f.reconciler.Redraw(viewport, false) {
		t.Error("Unchanged frame must not repaint")
	}
	if !f.reconciler.Redraw(viewport, true) {
		t.Error("Forced redraw must repaint")
	}
	if f.reconciler.Frames() != frames+1 {
		t.Errorf("Expected %d frames, got %d", frames+1, f.reconciler.Frames())
	}
}

func TestViewportCulling(t *testing.T) {
	f := setupReconciler(t, "hello world")
	f.add(t, "a1", "world", 6, 11)

	f.reconciler.Redraw(geom.Rect{X: 0, Y: 0, Width: 4, Height: 1}, false)
	if len(f.reconciler.Highlights()) != 0 {
		t.Errorf("Expected no highlights outside the viewport, got %d", len(f.reconciler.Highlights()))
	}

	f.reconciler.SetViewport(viewport)
	if len(f.reconciler.Highlights()) != 1 {
		t.Error("Expected the highlight once scrolled into view")
	}
}

func TestStoreAndSelectionChangesRepaint(t *testing.T) {
	f := setupReconciler(t, "hello world")
	f.reconciler.Redraw(viewport, false)

	f.add(t, "a1", "hello", 0, 5)
	if hs := f.painter.last(); len(hs) != 1 {
		t.Fatalf("Expected store change to repaint, got %+v", hs)
	}

	f.selection.Select("a1", nil)
	hs := f.painter.last()
	if !hs[0].State.Selected || hs[0].Style != SelectedStyle {
		t.Errorf("Expected selected highlight, got %+v", hs[0])
	}

	if err := f.store.DeleteAnnotation("a1", store.LOCAL); err != nil {
		t.Fatal(err)
	}
	if hs := f.painter.last(); len(hs) != 0 {
		t.Errorf("Expected deleted highlight to disappear, got %+v", hs)
	}
}

func TestZIndexLongestFirst(t *testing.T) {
	f := setupReconciler(t, "hello world again")
	f.add(t, "long", "hello world", 0, 11)
	f.add(t, "short", "world", 6, 11)
	f.reconciler.Redraw(viewport, false)

	z := map[string]int{}
	for _, h := range f.painter.last() {
		z[h.Annotation.ID] = h.ZIndex[0]
	}
	if z["long"] != 0 || z["short"] != 1 {
		t.Errorf("Expected long below short, got %v", z)
	}

	lone := Highlight{Rects: []geom.Rect{{X: 30, Y: 5, Width: 1, Height: 1}}}
	if got := ZIndex(lone.Rects[0], []Highlight{lone}); got != 0 {
		t.Errorf("Expected a lone rect at 0, got %d", got)
	}
	if got := ZIndex(lone.Rects[0], nil); got != -1 {
		t.Errorf("Expected -1 for an unknown rect, got %d", got)
	}
}

func TestPointerMoveHover(t *testing.T) {
	f := setupReconciler(t, "hello world")
	f.add(t, "a1", "world", 6, 11)
	f.reconciler.Redraw(viewport, false)
	frames := f.reconciler.Frames()

	if id := f.reconciler.PointerMove(7.5, 0.5); id != "a1" {
		t.Fatalf("Expected hover on a1, got %q", id)
	}
	if !f.painter.last()[0].State.Hovered {
		t.Error("Expected hovered state painted")
	}

	f.reconciler.PointerMove(8.5, 0.5)
	if f.reconciler.Frames() != frames+1 {
		t.Error("Moving within the same highlight must not repaint")
	}

	f.reconciler.PointerMove(1.5, 0.5)
	if f.reconciler.Hovered() != "" || f.painter.last()[0].State.Hovered {
		t.Error("Expected hover cleared")
	}
}

func TestFilterHidesHighlights(t *testing.T) {
	f := setupReconciler(t, "hello world")
	f.add(t, "a1", "hello", 0, 5)
	f.add(t, "a2", "world", 6, 11)
	f.reconciler.Redraw(viewport, false)

	f.reconciler.SetFilter(func(a model.Annotation) bool { return a.ID == "a2" })
	hs := f.painter.last()
	if len(hs) != 1 || hs[0].Annotation.ID != "a2" {
		t.Errorf("Expected only a2, got %+v", hs)
	}
	if id := f.reconciler.PointerMove(1.5, 0.5); id != "" {
		t.Errorf("Filtered highlight must not take hover, got %q", id)
	}
}

func TestResizeRecalculates(t *testing.T) {
	f := setupReconciler(t, "hello world")
	f.add(t, "a1", "world", 6, 11)
	f.reconciler.Redraw(viewport, false)

	f.layout.SetColumns(6)
	if err := f.reconciler.Resize(); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}

	hs := f.painter.last()
	if len(hs) != 1 {
		t.Fatalf("Expected one highlight, got %d", len(hs))
	}
	if want := (geom.Rect{X: 0, Y: 1, Width: 5, Height: 1}); hs[0].Rects[0] != want {
		t.Errorf("Expected wrapped rect %v, got %v", want, hs[0].Rects[0])
	}
}
