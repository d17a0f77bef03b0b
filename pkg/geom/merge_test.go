// ABOUTME: Tests for rect merging and bounding boxes
// ABOUTME: Covers same-line merges, multi-line ranges, containment and empties

package geom

import "testing"

func TestMergeRectsSameLine(t *testing.T) {
	rects := []Rect{
		{X: 0, Y: 0, Width: 10, Height: 16},
		{X: 10, Y: 0, Width: 5, Height: 16},
		{X: 15.5, Y: 0, Width: 4, Height: 16},
	}

	merged := MergeRects(rects)
	if len(merged) != 1 {
		t.Fatalf("Expected 1 rect, got %d: %v", len(merged), merged)
	}
	if merged[0] != (Rect{X: 0, Y: 0, Width: 19.5, Height: 16}) {
		t.Errorf("Unexpected merged rect %v", merged[0])
	}
}

func TestMergeRectsMultiLine(t *testing.T) {
	rects := []Rect{
		{X: 40, Y: 0, Width: 60, Height: 16},
		{X: 0, Y: 16, Width: 100, Height: 16},
		{X: 0, Y: 32, Width: 20, Height: 16},
	}

	merged := MergeRects(rects)
	if len(merged) != 3 {
		t.Fatalf("Expected 3 rects (one per line), got %d: %v", len(merged), merged)
	}
	if merged[0].Top() != 0 || merged[1].Top() != 16 || merged[2].Top() != 32 {
		t.Errorf("Expected rects sorted by line, got %v", merged)
	}
}

func TestMergeRectsDropsEmptyAndContained(t *testing.T) {
	rects := []Rect{
		{X: 0, Y: 0, Width: 0, Height: 16},
		{X: 0, Y: 0, Width: 50, Height: 16},
		{X: 10, Y: 2, Width: 5, Height: 10},
		{X: 0, Y: 0, Width: 50, Height: 16},
	}

	merged := MergeRects(rects)
	if len(merged) != 1 {
		t.Fatalf("Expected 1 rect, got %d: %v", len(merged), merged)
	}
}

func TestMergeRectsKeepsDistantFragments(t *testing.T) {
	rects := []Rect{
		{X: 0, Y: 0, Width: 10, Height: 16},
		{X: 30, Y: 0, Width: 10, Height: 16},
	}

	if merged := MergeRects(rects); len(merged) != 2 {
		t.Errorf("Expected gap to keep 2 rects, got %v", merged)
	}
}

func TestBounds(t *testing.T) {
	if _, ok := Bounds(nil); ok {
		t.Error("Expected no bounds for empty input")
	}

	b, ok := Bounds([]Rect{
		{X: 40, Y: 0, Width: 60, Height: 16},
		{X: 0, Y: 16, Width: 20, Height: 16},
	})
	if !ok {
		t.Fatal("Expected bounds")
	}
	if b != (Rect{X: 0, Y: 0, Width: 100, Height: 32}) {
		t.Errorf("Unexpected bounds %v", b)
	}
}

func TestRectContainsAndIntersects(t *testing.T) {
	r := Rect{X: 10, Y: 10, Width: 10, Height: 10}

	if !r.Contains(10, 20) {
		t.Error("Expected edge point to be contained")
	}
	if r.Contains(21, 15) {
		t.Error("Expected outside point to be rejected")
	}
	if !r.Intersects(Rect{X: 20, Y: 20, Width: 5, Height: 5}) {
		t.Error("Expected touching rects to intersect")
	}
	if TotalArea([]Rect{r, r}) != 200 {
		t.Error("Expected total area 200")
	}
	if TotalLength([]Rect{r, {Width: 5, Height: 1}}) != 15 {
		t.Error("Expected total length 15")
	}
}
