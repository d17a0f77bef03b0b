// ABOUTME: Rectangle type for highlight geometry in client or container coordinates
// ABOUTME: Converts to and from r2.Rect boxes shared with the rectangle tree

package geom

import (
	"fmt"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// Rect is an axis-aligned rectangle (origin + size, like a DOMRect)
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NewRect creates a rect from its edges
func NewRect(left, top, right, bottom float64) Rect {
	return Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Area returns width * height
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Empty reports whether the rect has no extent in either direction
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether the point lies inside the rect (edges inclusive)
func (r Rect) Contains(x, y float64) bool {
	return r.Box().ContainsPoint(r2.Point{X: x, Y: y})
}

// ContainsRect reports whether o lies entirely within r
func (r Rect) ContainsRect(o Rect) bool {
	return r.Box().Contains(o.Box())
}

// Intersects reports whether the two rects share any point (edges inclusive)
func (r Rect) Intersects(o Rect) bool {
	return r.Box().Intersects(o.Box())
}

// Offset translates the rect by (-dx, -dy)
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{X: r.X - dx, Y: r.Y - dy, Width: r.Width, Height: r.Height}
}

// Box converts the rect to a closed r2 box
func (r Rect) Box() r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: r.Left(), Hi: r.Right()},
		Y: r1.Interval{Lo: r.Top(), Hi: r.Bottom()},
	}
}

// FromBox converts an r2 box back to a rect
func FromBox(b r2.Rect) Rect {
	if b.IsEmpty() {
		return Rect{}
	}
	return NewRect(b.X.Lo, b.Y.Lo, b.X.Hi, b.Y.Hi)
}

// PointBox returns the degenerate box for a single point
func PointBox(x, y float64) r2.Rect {
	return r2.RectFromPoints(r2.Point{X: x, Y: y})
}

// BoxOf returns the box spanned by two corners
func BoxOf(minX, minY, maxX, maxY float64) r2.Rect {
	return r2.RectFromPoints(r2.Point{X: minX, Y: minY}, r2.Point{X: maxX, Y: maxY})
}

func (r Rect) String() string {
	return fmt.Sprintf("Rect(%g,%g %gx%g)", r.X, r.Y, r.Width, r.Height)
}
