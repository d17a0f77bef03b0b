// ABOUTME: Tests for the annotator facade
// ABOUTME: Covers store/index wiring, document reloads, W3C load/export and gestures

package annotator

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/input"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/store"
)

type fakeRecorder struct {
	anchors map[string]int
	drafts  map[string]int
	ops     int
	size    [2]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{anchors: map[string]int{}, drafts: map[string]int{}}
}

func (r *fakeRecorder) ObserveIndexOperation(op string, d time.Duration, err error) { r.ops++ }
func (r *fakeRecorder) SetIndexSize(annotations, rects int)                         { r.size = [2]int{annotations, rects} }
func (r *fakeRecorder) ObserveDraft(outcome string)                                 { r.drafts[outcome]++ }
func (r *fakeRecorder) ObserveAnchor(outcome string)                                { r.anchors[outcome]++ }

func setupAnnotator(t *testing.T, text string) (*Annotator, *fakeRecorder) {
	rec := newFakeRecorder()
	opts := DefaultOptions()
	opts.Recorder = rec
	opts.Source = "test.txt"

	n := 0
	opts.Gesture.NewID = func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}

	a := New(document.FromText(text), opts)
	t.Cleanup(a.Close)
	return a, rec
}

func annotation(id, quote string, start, end int) model.Annotation {
	return model.Annotation{
		ID:     id,
		Target: model.Target{Selectors: []model.TextSelector{{Quote: quote, Start: start, End: end}}},
	}
}

func TestStoreDrivesIndex(t *testing.T) {
	a, rec := setupAnnotator(t, "hello world")

	if err := a.AddAnnotation(annotation("a1", "world", 6, 11)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !a.Index().Has("a1") {
		t.Fatal("Expected a1 indexed after add")
	}
	if got, ok := a.GetAt(7.5, 0.5); !ok || got.ID != "a1" {
		t.Errorf("Expected hit on a1, got %v/%v", got.ID, ok)
	}
	if b, ok := a.GetAnnotationBounds("a1"); !ok || b != (geom.Rect{X: 6, Y: 0, Width: 5, Height: 1}) {
		t.Errorf("Unexpected bounds %v", b)
	}
	if rec.anchors[ANCHOR_EXACT] != 1 {
		t.Errorf("Expected one exact anchor, got %v", rec.anchors)
	}

	updated := annotation("a1", "hello", 0, 5)
	if err := a.UpdateAnnotation(updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got, ok := a.GetAt(1.5, 0.5); !ok || got.ID != "a1" {
		t.Error("Expected the index to follow the update")
	}
	if _, ok := a.GetAt(7.5, 0.5); ok {
		t.Error("Old geometry must be gone after update")
	}

	if err := a.DeleteAnnotation("a1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if a.Index().Has("a1") || a.Index().Len() != 0 {
		t.Error("Expected empty index after delete")
	}
}

func TestReloadReanchors(t *testing.T) {
	a, rec := setupAnnotator(t, "hello world")
	if err := a.AddAnnotation(annotation("a1", "world", 6, 11)); err != nil {
		t.Fatal(err)
	}

	if err := a.Reload(document.FromText("Oh, hello world")); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if rects := a.GetAnnotationRects("a1"); len(rects) != 1 || rects[0].X != 10 {
		t.Errorf("Expected highlight moved to column 10, got %v", rects)
	}
	if rec.anchors[ANCHOR_REANCHORED] == 0 {
		t.Errorf("Expected a reanchored outcome, got %v", rec.anchors)
	}
	if got, _ := a.GetAnnotation("a1"); got.Target.Outdated {
		t.Error("A reanchored target is not outdated")
	}
}

func TestReanchoredOffsetsWrittenBack(t *testing.T) {
	a, rec := setupAnnotator(t, "hello world")
	if err := a.AddAnnotation(annotation("a1", "world", 6, 11)); err != nil {
		t.Fatal(err)
	}

	batches := 0
	a.Store().Observe(func(cs store.ChangeSet) {
		batches++
		if cs.Origin != store.REMOTE {
			t.Errorf("Expected a remote write-back, got %v", cs.Origin)
		}
	}, store.ObserveOptions{})

	if err := a.Reload(document.FromText("oh, hello world")); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	got, _ := a.GetAnnotation("a1")
	sel := got.Target.Selectors[0]
	if sel.Start != 10 || sel.End != 15 || sel.Quote != "world" {
		t.Errorf("Expected stored selector world@[10,15), got %q@[%d,%d)", sel.Quote, sel.Start, sel.End)
	}
	if sel.Range != nil {
		t.Error("Stored selectors carry no live range")
	}
	if batches != 1 {
		t.Errorf("Expected a single write-back, got %d batches", batches)
	}

	// The second pass anchors exactly and the next recalculation is quiet
	if rec.anchors[ANCHOR_EXACT] == 0 {
		t.Errorf("Expected the written-back target to anchor exactly, got %v", rec.anchors)
	}
	if err := a.Recalculate(); err != nil {
		t.Fatal(err)
	}
	if batches != 1 {
		t.Errorf("Recalculate must not write again, got %d batches", batches)
	}

	out, ok, err := a.ExportAnnotation("a1")
	if err != nil || !ok {
		t.Fatalf("Export failed: %v %v", ok, err)
	}
	if !strings.Contains(out, `"start":10`) || !strings.Contains(out, `"end":15`) {
		t.Errorf("Expected exported position 10-15, got %s", out)
	}
}

func TestReloadMarksOutdated(t *testing.T) {
	a, rec := setupAnnotator(t, "hello world")
	if err := a.AddAnnotation(annotation("a1", "world", 6, 11)); err != nil {
		t.Fatal(err)
	}
	if err := a.AddAnnotation(annotation("a2", "hello", 0, 5)); err != nil {
		t.Fatal(err)
	}

	batches := 0
	a.Store().Observe(func(store.ChangeSet) { batches++ }, store.ObserveOptions{})

	if err := a.Reload(document.FromText("hello there")); err == nil {
		t.Error("Expected reload to report the unanchorable target")
	}

	got, _ := a.GetAnnotation("a1")
	if !got.Target.Outdated {
		t.Error("Expected a1 marked outdated")
	}
	if len(got.Target.Selectors) != 1 {
		t.Error("Outdated targets keep their selectors")
	}
	if a.Index().Has("a1") || !a.Index().Has("a2") {
		t.Error("Expected only a2 to stay indexed")
	}
	if batches != 1 {
		t.Errorf("Expected a single outdated write-back, got %d batches", batches)
	}
	if st := a.Stats(); st.Outdated != 1 || st.Indexed != 1 || st.Annotations != 2 {
		t.Errorf("Unexpected stats %+v", st)
	}
	if rec.anchors[ANCHOR_FAILED] == 0 {
		t.Errorf("Expected a failed outcome, got %v", rec.anchors)
	}

	// The text comes back: the flag is cleared again
	if err := a.Reload(document.FromText("hello world")); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got, _ := a.GetAnnotation("a1"); got.Target.Outdated || !a.Index().Has("a1") {
		t.Error("Expected a1 anchored and current again")
	}
}

func TestAnchorFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = zerolog.New(&buf)
	a := New(document.FromText("hello world"), opts)
	t.Cleanup(a.Close)

	if err := a.AddAnnotation(annotation("a1", "world", 6, 11)); err != nil {
		t.Fatal(err)
	}
	a.Reload(document.FromText("hello there"))

	out := buf.String()
	for _, want := range []string{`"event":"AnchorFailure"`, `"annotation":"a1"`, `"quote":"world"`, `"reason":"NOT_FOUND"`, `"component":"spatial"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in logs %s", want, out)
		}
	}
}

func TestLoadAndExport(t *testing.T) {
	a, _ := setupAnnotator(t, "hello world")

	batch := `[
	  {"id": "w1", "target": {"selector": [{"type":"TextQuoteSelector","exact":"hello"},{"type":"TextPositionSelector","start":0,"end":5}]}},
	  {"id": "bad", "target": {"selector": {"type":"TextPositionSelector","start":0,"end":5}}},
	  {"id": "w2", "target": {"selector": [{"type":"TextQuoteSelector","exact":"world"},{"type":"TextPositionSelector","start":6,"end":11}]}}
	]`

	res, err := a.LoadAnnotations(batch, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(res.Parsed) != 2 || len(res.Failed) != 1 {
		t.Fatalf("Expected 2 parsed and 1 failed, got %d/%d", len(res.Parsed), len(res.Failed))
	}
	if a.Index().Len() != 2 {
		t.Errorf("Expected both loaded annotations indexed, got %d", a.Index().Len())
	}

	out, err := a.ExportAnnotations()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	b, _ := setupAnnotator(t, "hello world")
	res, err = b.LoadAnnotations(out, true)
	if err != nil || len(res.Parsed) != 2 {
		t.Fatalf("Expected export to load back, got %v/%d", err, len(res.Parsed))
	}
	if got, ok := b.GetAnnotation("w2"); !ok || got.Target.Selectors[0].Prefix != "hello " {
		t.Errorf("Expected exported quote context, got %+v", got.Target)
	}
}

func TestGestureCreatesIndexedAnnotation(t *testing.T) {
	a, rec := setupAnnotator(t, "hello world")
	text := a.Document().Root.Children[0].Children[0]
	r := document.NewRange(text, 6, text, 11)

	t0 := time.Unix(100, 0)
	ms := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

	for _, evt := range []input.Event{
		{Type: input.PointerDown, Time: ms(0), Button: input.Primary, X: 6, Y: 0.5, Target: text},
		{Type: input.SelectStart, Time: ms(5), Target: text},
		{Type: input.SelectionChange, Time: ms(50), Selection: &r},
		{Type: input.PointerUp, Time: ms(500), Button: input.Primary, X: 11, Y: 0.5, Target: text},
		{Type: input.PointerMove, Time: ms(600), X: 7.5, Y: 0.5},
	} {
		a.Handle(evt)
	}

	if !a.Index().Has("new-1") {
		t.Fatal("Expected the committed draft to be indexed")
	}
	if !a.IsSelected("new-1") {
		t.Error("Expected the new annotation selected")
	}
	if a.Renderer().Hovered() != "new-1" {
		t.Errorf("Expected hover on new-1, got %q", a.Renderer().Hovered())
	}
	if rec.drafts["committed"] != 1 {
		t.Errorf("Expected one committed draft, got %v", rec.drafts)
	}
}

func TestResizeReflows(t *testing.T) {
	a, _ := setupAnnotator(t, "hello world")
	if err := a.AddAnnotation(annotation("a1", "world", 6, 11)); err != nil {
		t.Fatal(err)
	}

	if err := a.Resize(6); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	b, ok := a.GetAnnotationBounds("a1")
	if !ok || b.Y != 1 || b.X != 0 {
		t.Errorf("Expected wrapped highlight on row 1, got %v", b)
	}
	if vp := a.Viewport(); vp.Width != 6 {
		t.Errorf("Expected viewport to follow the container, got %v", vp)
	}
}
