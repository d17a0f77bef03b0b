// ABOUTME: Render reconciler that turns the spatial index into painted highlights
// ABOUTME: Queries the viewport, diffs against the last frame and repaints only on change

package render

import (
	"slices"

	"github.com/rs/zerolog"

	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/selection"
	"github.com/nainya/textanchor/pkg/spatial"
	"github.com/nainya/textanchor/pkg/store"
)

// State is the interaction state of one highlight
type State struct {
	Selected bool
	Hovered  bool
}

// Style is how a highlight is filled. Fill is a hex color.
type Style struct {
	Fill        string
	FillOpacity float64
	Underline   bool
}

var (
	DefaultStyle  = Style{Fill: "#0080ff", FillOpacity: 0.18}
	SelectedStyle = Style{Fill: "#0080ff", FillOpacity: 0.45}
)

// StyleFunc picks the style of a highlight
type StyleFunc func(h Highlight) Style

// DefaultStyleFunc uses SelectedStyle for selected highlights
func DefaultStyleFunc(h Highlight) Style {
	if h.State.Selected {
		return SelectedStyle
	}
	return DefaultStyle
}

// Highlight is one annotation as painted in the current frame
type Highlight struct {
	Annotation model.Annotation
	Rects      []geom.Rect // Container coordinates
	State      State
	ZIndex     []int // Per rect, see ZIndex
	Style      Style
}

// Painter draws a frame of highlights
type Painter interface {
	Paint(highlights []Highlight, viewport geom.Rect)
}

// PainterFunc adapts a function to Painter
type PainterFunc func(highlights []Highlight, viewport geom.Rect)

func (f PainterFunc) Paint(highlights []Highlight, viewport geom.Rect) {
	f(highlights, viewport)
}

// Index is the part of the spatial index the reconciler reads
type Index interface {
	GetIntersecting(minX, minY, maxX, maxY float64) []spatial.AnnotationRects
	GetAtFunc(x, y float64, keep func(id string) bool) (string, bool)
	Recalculate() ([]model.Target, error)
}

// Store notifies the reconciler of annotation changes
type Store interface {
	GetAnnotation(id string) (model.Annotation, bool)
	Observe(fn func(store.ChangeSet), opts store.ObserveOptions) func()
}

// Selection notifies the reconciler of selection changes
type Selection interface {
	Selected() []selection.Selected
	Subscribe(fn func(selection.State)) func()
}

// Options configures a Reconciler
type Options struct {
	Style  StyleFunc // nil uses DefaultStyleFunc
	Logger zerolog.Logger
}

// Reconciler keeps a painter in sync with the index, selection and hover state
type Reconciler struct {
	index     Index
	store     Store
	selection Selection
	painter   Painter
	style     StyleFunc
	log       zerolog.Logger

	filter   func(model.Annotation) bool
	hovered  string
	viewport geom.Rect
	current  []Highlight
	frames   int

	unsubscribe []func()
}

// New creates a reconciler and subscribes it to store and selection changes
func New(index Index, st Store, sel Selection, painter Painter, opts Options) *Reconciler {
	style := opts.Style
	if style == nil {
		style = DefaultStyleFunc
	}
	r := &Reconciler{
		index:     index,
		store:     st,
		selection: sel,
		painter:   painter,
		style:     style,
		log:       opts.Logger.With().Str("component", "render").Logger(),
	}

	if st != nil {
		r.unsubscribe = append(r.unsubscribe, st.Observe(func(store.ChangeSet) { r.Refresh() }, store.ObserveOptions{}))
	}
	if sel != nil {
		r.unsubscribe = append(r.unsubscribe, sel.Subscribe(func(selection.State) { r.Refresh() }))
	}
	return r
}

// Close stops following the store and the selection
func (r *Reconciler) Close() {
	for _, fn := range r.unsubscribe {
		fn()
	}
	r.unsubscribe = nil
}

// SetPainter swaps the painter and repaints
func (r *Reconciler) SetPainter(p Painter) {
	r.painter = p
	r.Redraw(r.viewport, true)
}

// SetFilter hides annotations the filter rejects
func (r *Reconciler) SetFilter(filter func(model.Annotation) bool) {
	r.filter = filter
	r.Refresh()
}

// SetViewport moves the visible area (e.g. on scroll) and redraws
func (r *Reconciler) SetViewport(viewport geom.Rect) {
	r.Redraw(viewport, false)
}

// Viewport returns the last drawn viewport
func (r *Reconciler) Viewport() geom.Rect {
	return r.viewport
}

// Highlights returns the current frame
func (r *Reconciler) Highlights() []Highlight {
	return slices.Clone(r.current)
}

// Frames returns how many times the painter was called
func (r *Reconciler) Frames() int {
	return r.frames
}

// Hovered returns the hovered annotation id, or ""
func (r *Reconciler) Hovered() string {
	return r.hovered
}

// Refresh redraws the last viewport if anything changed
func (r *Reconciler) Refresh() bool {
	return r.Redraw(r.viewport, false)
}

// Redraw computes the highlights intersecting viewport (container
// coordinates) and paints them when they differ from the last frame or
// force is set. It reports whether the painter was called.
func (r *Reconciler) Redraw(viewport geom.Rect, force bool) bool {
	r.viewport = viewport

	var selected []string
	if r.selection != nil {
		for _, s := range r.selection.Selected() {
			selected = append(selected, s.ID)
		}
	}

	var highlights []Highlight
	if r.index != nil && !viewport.Empty() {
		for _, ar := range r.index.GetIntersecting(viewport.Left(), viewport.Top(), viewport.Right(), viewport.Bottom()) {
			if r.filter != nil && !r.filter(ar.Annotation) {
				continue
			}
			highlights = append(highlights, Highlight{
				Annotation: ar.Annotation,
				Rects:      ar.Rects,
				State: State{
					Selected: slices.Contains(selected, ar.Annotation.ID),
					Hovered:  ar.Annotation.ID == r.hovered,
				},
			})
		}
	}

	for i := range highlights {
		h := &highlights[i]
		h.ZIndex = make([]int, len(h.Rects))
		for j, rect := range h.Rects {
			h.ZIndex[j] = ZIndex(rect, highlights)
		}
		h.Style = r.style(*h)
	}

	if !force && sameFrame(r.current, highlights) {
		return false
	}
	r.current = highlights

	if r.painter == nil {
		return false
	}
	r.frames++
	r.log.Debug().Int("highlights", len(highlights)).Bool("forced", force).Msg("Repaint")
	r.painter.Paint(slices.Clone(highlights), viewport)
	return true
}

// PointerMove updates hover from a container-relative pointer position and
// repaints when the hovered annotation changes
func (r *Reconciler) PointerMove(x, y float64) string {
	if r.index == nil {
		return ""
	}

	var keep func(string) bool
	if r.filter != nil && r.store != nil {
		keep = func(id string) bool {
			a, ok := r.store.GetAnnotation(id)
			return ok && r.filter(a)
		}
	}

	id, _ := r.index.GetAtFunc(x, y, keep)
	if id != r.hovered {
		r.hovered = id
		r.Refresh()
	}
	return id
}

// Resize recomputes all geometry and forces a repaint
func (r *Reconciler) Resize() error {
	var err error
	if r.index != nil {
		_, err = r.index.Recalculate()
	}
	r.Redraw(r.viewport, true)
	return err
}

// ZIndex ranks rect among the highlights it intersects, longest total
// highlight first
func ZIndex(rect geom.Rect, all []Highlight) int {
	type ranked struct {
		index  int
		length float64
	}

	var intersecting []ranked
	for i, h := range all {
		if slices.ContainsFunc(h.Rects, rect.Intersects) {
			intersecting = append(intersecting, ranked{index: i, length: geom.TotalLength(h.Rects)})
		}
	}
	slices.SortStableFunc(intersecting, func(a, b ranked) int {
		switch {
		case a.length > b.length:
			return -1
		case a.length < b.length:
			return 1
		}
		return 0
	})

	for z, c := range intersecting {
		if slices.Contains(all[c.index].Rects, rect) {
			return z
		}
	}
	return -1
}

// sameFrame reports whether two frames paint identically
func sameFrame(a, b []Highlight) bool {
	return slices.EqualFunc(a, b, func(x, y Highlight) bool {
		return x.Annotation.ID == y.Annotation.ID &&
			x.State == y.State &&
			x.Style == y.Style &&
			x.Annotation.Target.StyleClass == y.Annotation.Target.StyleClass &&
			slices.Equal(x.Rects, y.Rects) &&
			slices.Equal(x.ZIndex, y.ZIndex)
	})
}
