// ABOUTME: Text annotator facade wiring store, spatial index, selection, gestures and rendering
// ABOUTME: Keeps the index in step with the store and marks targets that no longer anchor

package annotator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/nainya/textanchor/internal/logger"
	"github.com/nainya/textanchor/pkg/anchor"
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/gesture"
	"github.com/nainya/textanchor/pkg/input"
	"github.com/nainya/textanchor/pkg/layout"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/render"
	"github.com/nainya/textanchor/pkg/selection"
	"github.com/nainya/textanchor/pkg/spatial"
	"github.com/nainya/textanchor/pkg/store"
	"github.com/nainya/textanchor/pkg/w3c"
)

// Anchoring outcomes reported to the recorder
const (
	ANCHOR_EXACT      = "exact"
	ANCHOR_REANCHORED = "reanchored"
	ANCHOR_OUTDATED   = "outdated"
	ANCHOR_FAILED     = "failed"
)

// Recorder receives index, draft and anchoring measurements
type Recorder interface {
	spatial.Recorder
	gesture.Recorder
	ObserveAnchor(outcome string)
}

// Options configures an Annotator. Start from DefaultOptions.
type Options struct {
	Layout    layout.Options
	Gesture   gesture.Options
	Action    selection.PointerAction
	Painter   render.Painter
	Style     render.StyleFunc
	Source    string // IRI written to exported targets
	User      *model.User
	Logger    zerolog.Logger
	Recorder  Recorder
	IndexSize int // R-tree node size, 0 for the default
}

// DefaultOptions returns the standard layout and gesture thresholds
func DefaultOptions() Options {
	return Options{
		Layout:  layout.DefaultOptions(),
		Gesture: gesture.DefaultOptions(),
	}
}

// Stats summarizes the annotator state
type Stats struct {
	Annotations int
	Indexed     int
	Rects       int
	Outdated    int
	Selected    int
}

// Annotator binds annotations to one document
type Annotator struct {
	doc       *document.Document
	layout    *layout.Layout
	store     *store.Store
	index     *spatial.Index
	selection *selection.TextSelection
	gesture   *gesture.Handler
	render    *render.Reconciler
	opts      Options
	log       zerolog.Logger
	logs      *logger.Logger

	viewport  *geom.Rect
	unobserve func()
}

// New creates an annotator over doc with an empty store
func New(doc *document.Document, opts Options) *Annotator {
	a := &Annotator{
		doc:   doc,
		store: store.New(),
		opts:  opts,
		log:   opts.Logger.With().Str("component", "annotator").Logger(),
		logs:  logger.Wrap(opts.Logger),
	}
	a.layout = layout.New(doc, opts.Layout)

	var rec spatial.Recorder
	if opts.Recorder != nil {
		rec = opts.Recorder
	}
	a.index = spatial.New(a.store, a.layout, doc.Root, spatial.Options{
		Logger:   opts.Logger,
		Recorder: rec,
		Fanout:   opts.IndexSize,
	})

	// The index follows the store before anything that reads it
	a.unobserve = a.store.Observe(a.onStoreChange, store.ObserveOptions{})

	a.selection = selection.New(a.store, selection.Options{Action: opts.Action, Logger: opts.Logger})

	gopts := opts.Gesture
	gopts.Logger = opts.Logger
	if opts.Recorder != nil {
		gopts.Recorder = opts.Recorder
	}
	gopts.OnPointerMove = a.onPointerMove
	a.gesture = gesture.New(doc.Root, a.layout, a.store, a.index, a.selection, gopts)
	a.gesture.SetUser(opts.User)

	a.render = render.New(a.index, a.store, a.selection, opts.Painter, render.Options{
		Style:  opts.Style,
		Logger: opts.Logger,
	})
	a.render.Redraw(a.Viewport(), true)
	return a
}

// Close detaches all observers
func (a *Annotator) Close() {
	a.render.Close()
	a.selection.Close()
	if a.unobserve != nil {
		a.unobserve()
		a.unobserve = nil
	}
}

func (a *Annotator) Document() *document.Document        { return a.doc }
func (a *Annotator) Layout() *layout.Layout              { return a.layout }
func (a *Annotator) Store() *store.Store                 { return a.store }
func (a *Annotator) Index() *spatial.Index               { return a.index }
func (a *Annotator) Selection() *selection.TextSelection { return a.selection }
func (a *Annotator) Gesture() *gesture.Handler           { return a.gesture }
func (a *Annotator) Renderer() *render.Reconciler        { return a.render }

// SetUser sets the creator of new annotations
func (a *Annotator) SetUser(u *model.User) {
	a.opts.User = u
	a.gesture.SetUser(u)
}

// SetFilter hides annotations from rendering and click selection
func (a *Annotator) SetFilter(filter func(model.Annotation) bool) {
	a.gesture.SetFilter(filter)
	a.render.SetFilter(filter)
}

// SetPainter swaps the highlight painter
func (a *Annotator) SetPainter(p render.Painter) {
	a.opts.Painter = p
	a.render.SetPainter(p)
}

// Viewport returns the visible area in container coordinates; the whole
// container unless SetViewport narrowed it
func (a *Annotator) Viewport() geom.Rect {
	if a.viewport != nil {
		return *a.viewport
	}
	b := a.layout.Bounds()
	return geom.Rect{Width: b.Width, Height: b.Height}
}

// SetViewport scrolls the visible area
func (a *Annotator) SetViewport(r geom.Rect) {
	a.viewport = &r
	a.render.SetViewport(r)
}

// AddAnnotation adds a to the store as a local change
func (a *Annotator) AddAnnotation(an model.Annotation) error {
	return a.store.AddAnnotation(an, store.LOCAL)
}

// UpdateAnnotation replaces an existing annotation
func (a *Annotator) UpdateAnnotation(an model.Annotation) error {
	return a.store.UpdateAnnotation(an, store.LOCAL)
}

// DeleteAnnotation removes an annotation
func (a *Annotator) DeleteAnnotation(id string) error {
	return a.store.DeleteAnnotation(id, store.LOCAL)
}

// GetAnnotation returns an annotation by id
func (a *Annotator) GetAnnotation(id string) (model.Annotation, bool) {
	return a.store.GetAnnotation(id)
}

// GetAnnotations returns every annotation in insertion order
func (a *Annotator) GetAnnotations() []model.Annotation {
	return a.store.All()
}

// GetAt returns the annotation under a container-relative point
func (a *Annotator) GetAt(x, y float64) (model.Annotation, bool) {
	id, ok := a.index.GetAt(x, y)
	if !ok {
		return model.Annotation{}, false
	}
	return a.store.GetAnnotation(id)
}

// GetIntersecting returns the annotations whose highlights intersect the box
func (a *Annotator) GetIntersecting(minX, minY, maxX, maxY float64) []spatial.AnnotationRects {
	return a.index.GetIntersecting(minX, minY, maxX, maxY)
}

// GetAnnotationBounds returns the bounding box of an annotation's highlight
func (a *Annotator) GetAnnotationBounds(id string) (geom.Rect, bool) {
	return a.index.GetAnnotationBounds(id)
}

// GetAnnotationRects returns the highlight rects of an annotation
func (a *Annotator) GetAnnotationRects(id string) []geom.Rect {
	return a.index.GetAnnotationRects(id)
}

// Recalculate rebuilds all geometry from the store and repaints
func (a *Annotator) Recalculate() error {
	err := a.reindex()
	a.render.Redraw(a.Viewport(), true)
	return err
}

// Resize reflows the document to a new width
func (a *Annotator) Resize(columns int) error {
	a.layout.SetColumns(columns)
	return a.Recalculate()
}

// Reload swaps in a new state of the document and re-anchors every
// target. Targets that no longer anchor are marked outdated.
func (a *Annotator) Reload(doc *document.Document) error {
	a.doc = doc
	a.layout.SetDocument(doc)
	a.index.SetContainer(doc.Root)
	a.gesture.SetContainer(doc.Root)

	a.log.Info().Int("annotations", a.store.Len()).Msg("Document reloaded")
	return a.Recalculate()
}

// Select selects a single annotation
func (a *Annotator) Select(id string) bool {
	return a.selection.Select(id, nil)
}

// SetSelected selects several annotations; nil editable uses the pointer action
func (a *Annotator) SetSelected(ids []string, editable *bool) {
	a.selection.SetSelected(ids, editable)
}

// Clear empties the selection
func (a *Annotator) Clear() {
	a.selection.Clear()
}

// IsSelected reports whether id is selected
func (a *Annotator) IsSelected(id string) bool {
	return a.selection.IsSelected(id)
}

// Selected returns the current selection
func (a *Annotator) Selected() []selection.Selected {
	return a.selection.Selected()
}

// Subscribe follows selection changes
func (a *Annotator) Subscribe(fn func(selection.State)) func() {
	return a.selection.Subscribe(fn)
}

// LoadAnnotations parses a W3C JSON array and adds the valid items in one
// batch, replacing existing annotations when replace is set
func (a *Annotator) LoadAnnotations(json string, replace bool) (w3c.BatchResult, error) {
	res, err := w3c.ParseAll(json)
	if err != nil {
		return res, err
	}
	for _, f := range res.Failed {
		a.log.Warn().Err(f.Err).Int("item", f.Index).Str("annotation", f.ID).Msg("Skipping invalid annotation")
	}
	if err := a.store.BulkAddAnnotations(res.Parsed, replace, store.REMOTE); err != nil {
		return res, err
	}
	return res, nil
}

// ExportAnnotations serializes every annotation as a W3C JSON array
func (a *Annotator) ExportAnnotations() (string, error) {
	return w3c.SerializeAll(a.store.All(), a.opts.Source, a.doc.Root)
}

// ExportAnnotation serializes a single annotation as W3C JSON
func (a *Annotator) ExportAnnotation(id string) (string, bool, error) {
	an, ok := a.store.GetAnnotation(id)
	if !ok {
		return "", false, nil
	}
	out, err := w3c.Serialize(an, a.opts.Source, a.doc.Root)
	return out, true, err
}

// Handle feeds one input event to the gesture state machine
func (a *Annotator) Handle(evt input.Event) {
	a.gesture.Handle(evt)
}

// Run consumes events until src closes or ctx is done
func (a *Annotator) Run(ctx context.Context, src input.Source) error {
	return a.gesture.Run(ctx, src)
}

// Stats summarizes store, index and selection
func (a *Annotator) Stats() Stats {
	st := Stats{
		Annotations: a.store.Len(),
		Indexed:     a.index.Len(),
		Rects:       a.index.Size(),
		Selected:    len(a.selection.Selected()),
	}
	for _, an := range a.store.All() {
		if an.Target.Outdated {
			st.Outdated++
		}
	}
	return st
}

func (a *Annotator) onPointerMove(evt input.Event) {
	origin := a.layout.Bounds()
	a.render.PointerMove(evt.X-origin.X, evt.Y-origin.Y)
}

func (a *Annotator) onStoreChange(cs store.ChangeSet) {
	for _, an := range cs.Deleted {
		a.index.Remove(an.Target)
	}

	if len(cs.Created) > 1 {
		targets := make([]model.Target, len(cs.Created))
		for i, an := range cs.Created {
			targets[i] = an.Target
		}
		revived, err := a.index.Set(targets, false)
		if err != nil {
			a.log.Debug().Err(err).Msg("Batch insert skipped targets")
		}
		for i, t := range targets {
			a.settle(t, revived[i], nil)
		}
	} else {
		for _, an := range cs.Created {
			revived, err := a.index.Insert(an.Target)
			a.settle(an.Target, revived, err)
		}
	}

	for _, u := range cs.Updated {
		revived, err := a.index.Update(u.New.Target)
		a.settle(u.New.Target, revived, err)
	}
}

// reindex rebuilds the index from the store, settling every target
func (a *Annotator) reindex() error {
	all := a.store.All()
	targets := make([]model.Target, len(all))
	for i, an := range all {
		targets[i] = an.Target
	}
	revived, err := a.index.Set(targets, true)
	for i, t := range targets {
		a.settle(t, revived[i], err)
	}
	return err
}

// settle records how a target anchored and writes changed offsets or a
// changed outdated flag back to the store. The write-back re-enters
// onStoreChange once; the second pass anchors exactly and stops.
func (a *Annotator) settle(orig, revived model.Target, err error) {
	outcome := anchorOutcome(orig, revived)
	if a.opts.Recorder != nil {
		a.opts.Recorder.ObserveAnchor(outcome)
	}

	switch outcome {
	case ANCHOR_FAILED:
		reason := "unknown"
		if r, ok := anchor.ReasonOf(err); ok {
			reason = string(r)
		}
		a.logs.LogAnchorFailure(orig.Annotation, orig.Quote(), reason)
	case ANCHOR_OUTDATED:
		a.logs.AnchorLogger(orig.Annotation).Info("Target partially anchored").
			Int("anchored", len(revived.Selectors)).
			Int("selectors", len(orig.Selectors)).
			Send()
	case ANCHOR_REANCHORED:
		a.logs.AnchorLogger(orig.Annotation).Debug("Target re-anchored by content").Send()
	}

	outdated := outcome == ANCHOR_FAILED || outcome == ANCHOR_OUTDATED
	if orig.Outdated == outdated && outcome != ANCHOR_REANCHORED {
		return
	}
	t := orig.Clone()
	t.Outdated = outdated
	if outcome == ANCHOR_REANCHORED {
		for i, s := range revived.Selectors {
			t.Selectors[i] = s.Persisted()
		}
	}
	if werr := a.store.UpdateTarget(t, store.REMOTE); werr != nil && !errors.Is(werr, store.ErrNotFound) {
		a.log.Error().Err(werr).Str("annotation", orig.Annotation).Msg("Failed to write back anchoring result")
	}
}

// anchorOutcome compares a stored target with its revived form
func anchorOutcome(orig, revived model.Target) string {
	switch {
	case len(revived.Selectors) == 0:
		return ANCHOR_FAILED
	case len(revived.Selectors) < len(orig.Selectors):
		return ANCHOR_OUTDATED
	}
	for i, s := range revived.Selectors {
		if s.Start != orig.Selectors[i].Start || s.End != orig.Selectors[i].End {
			return ANCHOR_REANCHORED
		}
	}
	return ANCHOR_EXACT
}
