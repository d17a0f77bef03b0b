// ABOUTME: Tests for the monospace flow layout
// ABOUTME: Verifies wrapping, block breaks, client rects and caret-from-point

package layout

import (
	"testing"

	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
)

func TestLayoutParagraphs(t *testing.T) {
	doc := document.FromText("hello world\n\nsecond")
	l := New(doc, Options{Columns: 20, CellWidth: 10, LineHeight: 16})

	// hello world / blank / second
	if l.Rows() != 3 {
		t.Fatalf("Expected 3 rows, got %d", l.Rows())
	}
	if len(l.Line(1)) != 0 {
		t.Errorf("Expected blank separator row")
	}

	b := l.Bounds()
	if b.Width != 200 || b.Height != 48 {
		t.Errorf("Unexpected bounds %v", b)
	}
}

func TestClientRectsWrap(t *testing.T) {
	doc := document.FromText("abcdefghij")
	l := New(doc, Options{Columns: 4, CellWidth: 10, LineHeight: 20, OriginX: 5, OriginY: 100})

	ix := document.NewTextIndex(doc.Root)
	r, _ := ix.RangeAt(2, 9)

	rects := l.ClientRects(r)
	want := []geom.Rect{
		{X: 25, Y: 100, Width: 20, Height: 20},
		{X: 5, Y: 120, Width: 40, Height: 20},
		{X: 5, Y: 140, Width: 10, Height: 20},
	}
	if len(rects) != len(want) {
		t.Fatalf("Expected %d rects, got %v", len(want), rects)
	}
	for i := range want {
		if rects[i] != want[i] {
			t.Errorf("Rect %d: expected %v, got %v", i, want[i], rects[i])
		}
	}
}

func TestClientRectsAcrossNodes(t *testing.T) {
	doc := document.New()
	a := doc.NewText("one ")
	b := doc.NewText("two")
	doc.Root.AppendChild(doc.NewElement("p", nil, a, doc.NewElement("em", nil, b)))

	l := New(doc, Options{Columns: 40, CellWidth: 1, LineHeight: 1})
	rects := l.ClientRects(document.NewRange(a, 0, b, 3))

	// One rect per text node; merging is left to geom
	if len(rects) != 2 {
		t.Fatalf("Expected 2 rects, got %v", rects)
	}
	merged := geom.MergeRects(rects)
	if len(merged) != 1 || merged[0].Width != 7 {
		t.Errorf("Expected one merged rect of width 7, got %v", merged)
	}
}

func TestWideRunes(t *testing.T) {
	doc := document.FromText("日本語")
	l := New(doc, Options{Columns: 80, CellWidth: 1, LineHeight: 1})

	ix := document.NewTextIndex(doc.Root)
	r, _ := ix.RangeAt(1, 2)
	rects := l.ClientRects(r)
	if len(rects) != 1 || rects[0].X != 2 || rects[0].Width != 2 {
		t.Errorf("Expected double-width rect at column 2, got %v", rects)
	}
}

func TestPositionAt(t *testing.T) {
	doc := document.FromText("hello world\n\nsecond")
	l := New(doc, Options{Columns: 20, CellWidth: 10, LineHeight: 16})
	first := doc.Root.Children[0].Children[0]
	second := doc.Root.Children[1].Children[0]

	pos, ok := l.PositionAt(35, 5)
	if !ok || pos.Node != first || pos.Offset != 3 {
		t.Errorf("Expected offset 3 in first paragraph, got %v/%d", pos.Node, pos.Offset)
	}

	// Right of the line end
	pos, _ = l.PositionAt(190, 5)
	if pos.Node != first || pos.Offset != 11 {
		t.Errorf("Expected end of first line, got %v/%d", pos.Node, pos.Offset)
	}

	// Blank separator snaps to the next line start
	pos, _ = l.PositionAt(50, 20)
	if pos.Node != second || pos.Offset != 0 {
		t.Errorf("Expected start of second paragraph, got %v/%d", pos.Node, pos.Offset)
	}

	// Below everything
	pos, _ = l.PositionAt(0, 1000)
	if pos.Node != second || pos.Offset != 6 {
		t.Errorf("Expected end of document, got %v/%d", pos.Node, pos.Offset)
	}
}

func TestRelayoutOnMutation(t *testing.T) {
	doc := document.FromText("short")
	l := New(doc, Options{Columns: 10, CellWidth: 1, LineHeight: 1})
	if l.Rows() != 1 {
		t.Fatalf("Expected 1 row, got %d", l.Rows())
	}

	text := doc.Root.Children[0].Children[0]
	if err := text.InsertText(5, " but now longer"); err != nil {
		t.Fatal(err)
	}
	if l.Rows() != 2 {
		t.Errorf("Expected layout to reflow to 2 rows, got %d", l.Rows())
	}

	l.SetColumns(40)
	if l.Rows() != 1 {
		t.Errorf("Expected 1 row after widening, got %d", l.Rows())
	}
}
