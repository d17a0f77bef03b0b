// ABOUTME: Merges the per-fragment rects of a multi-line text range into a minimal set
// ABOUTME: Also bounding box and aggregate area/length helpers

package geom

import (
	"sort"

	"github.com/golang/geo/r2"
)

// mergeGap is the largest horizontal gap (in units) bridged when merging
const mergeGap = 1.0

// MergeRects reduces the rects of a text range to a minimal set: empty rects
// and rects contained in others are dropped, and rects sharing a line that
// touch or overlap horizontally are merged into one.
func MergeRects(rects []Rect) []Rect {
	candidates := make([]Rect, 0, len(rects))
	for _, r := range rects {
		if !r.Empty() {
			candidates = append(candidates, r)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Top() != candidates[j].Top() {
			return candidates[i].Top() < candidates[j].Top()
		}
		return candidates[i].Left() < candidates[j].Left()
	})

	merged := make([]Rect, 0, len(candidates))
	for _, r := range candidates {
		absorbed := false
		for i := range merged {
			if merged[i].ContainsRect(r) {
				absorbed = true
				break
			}
			if sameLine(merged[i], r) && touches(merged[i], r) {
				merged[i] = FromBox(merged[i].Box().Union(r.Box()))
				absorbed = true
				break
			}
		}
		if !absorbed {
			merged = append(merged, r)
		}
	}

	// A union can swallow rects that were kept earlier
	out := make([]Rect, 0, len(merged))
	for i, r := range merged {
		contained := false
		for j, o := range merged {
			if i != j && o.ContainsRect(r) && (o != r || j < i) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, r)
		}
	}
	return out
}

// sameLine reports whether the vertical overlap covers at least half of the
// shorter rect
func sameLine(a, b Rect) bool {
	overlap := a.Box().Y.Intersection(b.Box().Y)
	if overlap.IsEmpty() {
		return false
	}
	shorter := a.Height
	if b.Height < shorter {
		shorter = b.Height
	}
	return overlap.Length() >= shorter/2
}

func touches(a, b Rect) bool {
	return a.Left() <= b.Right()+mergeGap && b.Left() <= a.Right()+mergeGap
}

// Bounds returns the bounding box over all rects
func Bounds(rects []Rect) (Rect, bool) {
	if len(rects) == 0 {
		return Rect{}, false
	}
	box := r2.EmptyRect()
	for _, r := range rects {
		box = box.Union(r.Box())
	}
	return FromBox(box), true
}

// TotalArea sums the area of all rects
func TotalArea(rects []Rect) float64 {
	total := 0.0
	for _, r := range rects {
		total += r.Area()
	}
	return total
}

// TotalLength sums the width of all rects (the highlight length on screen)
func TotalLength(rects []Rect) float64 {
	total := 0.0
	for _, r := range rects {
		total += r.Width
	}
	return total
}

// Offset translates every rect by (-dx, -dy)
func Offset(rects []Rect, dx, dy float64) []Rect {
	out := make([]Rect, len(rects))
	for i, r := range rects {
		out[i] = r.Offset(dx, dy)
	}
	return out
}
