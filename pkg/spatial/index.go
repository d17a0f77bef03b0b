// ABOUTME: Spatial index over highlight geometry derived from annotation targets
// ABOUTME: An R-tree of (annotation, rect) references plus an id -> rects side index

package spatial

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/textanchor/internal/logger"
	"github.com/nainya/textanchor/pkg/anchor"
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/geom"
	"github.com/nainya/textanchor/pkg/model"
	"github.com/nainya/textanchor/pkg/rtree"
)

var (
	ErrNotIndexed = errors.New("spatial: target not indexed")
	ErrNoGeometry = errors.New("spatial: target has no visible geometry")
)

// Store is the read side of the authoritative annotation store
type Store interface {
	GetAnnotation(id string) (model.Annotation, bool)
	All() []model.Annotation
}

// Geometry derives client rects for live ranges
type Geometry interface {
	ClientRects(r document.Range) []geom.Rect
	Bounds() geom.Rect
}

// Recorder receives index measurements
type Recorder interface {
	ObserveIndexOperation(op string, d time.Duration, err error)
	SetIndexSize(annotations, rects int)
}

// Options configures an Index
type Options struct {
	Logger   zerolog.Logger
	Recorder Recorder
	Fanout   int // R-tree node size, 0 for the default
}

// AnnotationRects is an annotation together with its highlight geometry
type AnnotationRects struct {
	Annotation model.Annotation
	Rects      []geom.Rect
}

// ref is what the tree stores: the owning annotation and the rect's
// position in the side index
type ref struct {
	id    string
	index int
}

// Index maps highlight rects to annotations. Rects are container-relative.
type Index struct {
	store     Store
	geo       Geometry
	container *document.Node
	log       *logger.Logger
	rec       Recorder

	tree  *rtree.Tree[ref]
	rects map[string][]geom.Rect
}

// New creates an empty index
func New(store Store, geo Geometry, container *document.Node, opts Options) *Index {
	tree := rtree.New[ref]()
	if opts.Fanout > 0 {
		tree = rtree.NewWithFanout[ref](opts.Fanout)
	}
	return &Index{
		store:     store,
		geo:       geo,
		container: container,
		log:       logger.Wrap(opts.Logger).IndexLogger(),
		rec:       opts.Recorder,
		tree:      tree,
		rects:     make(map[string][]geom.Rect),
	}
}

// SetContainer points the index at a new container (after a reload); the
// caller is expected to Recalculate
func (ix *Index) SetContainer(container *document.Node) {
	ix.container = container
}

// Rects computes the merged, container-relative rects of a target, reviving
// its selectors when needed. The revived target is returned alongside.
func (ix *Index) Rects(target model.Target) ([]geom.Rect, model.Target, error) {
	revived, err := anchor.ReviveTarget(target, ix.container)
	if err != nil {
		return nil, revived, err
	}

	var client []geom.Rect
	for _, sel := range revived.Selectors {
		client = append(client, ix.geo.ClientRects(*sel.Range)...)
	}

	origin := ix.geo.Bounds()
	return geom.Offset(geom.MergeRects(client), origin.X, origin.Y), revived, nil
}

// Insert indexes target. An already indexed annotation is replaced.
func (ix *Index) Insert(target model.Target) (model.Target, error) {
	start := time.Now()

	rects, revived, err := ix.Rects(target)
	ix.remove(target.Annotation)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrNotIndexed, target.Annotation, err)
		ix.observe("insert", start, err)
		return revived, err
	}
	if len(rects) == 0 {
		ix.observe("insert", start, ErrNoGeometry)
		return revived, ErrNoGeometry
	}

	for i, r := range rects {
		ix.tree.Insert(r.Box(), ref{id: target.Annotation, index: i})
	}
	ix.rects[target.Annotation] = rects

	ix.observe("insert", start, nil)
	return revived, nil
}

// Remove drops all geometry of target's annotation; a no-op if absent
func (ix *Index) Remove(target model.Target) {
	start := time.Now()
	ix.remove(target.Annotation)
	ix.observe("remove", start, nil)
}

func (ix *Index) remove(id string) {
	rects, ok := ix.rects[id]
	if !ok {
		return
	}
	for i, r := range rects {
		if !ix.tree.Remove(r.Box(), ref{id: id, index: i}) {
			ix.log.LogConsistencyWarning(id, fmt.Sprintf("Indexed rect %d missing from tree", i))
		}
	}
	delete(ix.rects, id)
}

// Update re-indexes target. Not atomic: the annotation is briefly absent
// between removal and re-insertion.
func (ix *Index) Update(target model.Target) (model.Target, error) {
	ix.Remove(target)
	return ix.Insert(target)
}

// Set bulk-loads targets, clearing the index first when replace is set.
// Targets that cannot be anchored are skipped; their errors are joined.
func (ix *Index) Set(targets []model.Target, replace bool) ([]model.Target, error) {
	start := time.Now()
	if replace {
		ix.tree.Clear()
		clear(ix.rects)
	}

	var entries []rtree.Entry[ref]
	var errs []error
	revived := make([]model.Target, 0, len(targets))
	for _, t := range targets {
		rects, rt, err := ix.Rects(t)
		revived = append(revived, rt)
		if !replace {
			ix.remove(t.Annotation)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrNotIndexed, t.Annotation, err))
			continue
		}
		if len(rects) == 0 {
			continue
		}
		ix.rects[t.Annotation] = rects
		for i, r := range rects {
			entries = append(entries, rtree.Entry[ref]{Box: r.Box(), Value: ref{id: t.Annotation, index: i}})
		}
	}
	ix.tree.Load(entries)

	err := errors.Join(errs...)
	ix.observe("set", start, err)
	return revived, err
}

// Recalculate rebuilds the whole index from the store
func (ix *Index) Recalculate() ([]model.Target, error) {
	all := ix.store.All()
	targets := make([]model.Target, len(all))
	for i, a := range all {
		targets[i] = a.Target
	}
	return ix.Set(targets, true)
}

// Clear empties the index
func (ix *Index) Clear() {
	ix.tree.Clear()
	clear(ix.rects)
	ix.observe("clear", time.Now(), nil)
}

// GetAt returns the annotation id under a container-relative point. The
// hit with the smallest rect wins, ties broken by the smaller total area.
func (ix *Index) GetAt(x, y float64) (string, bool) {
	return ix.GetAtFunc(x, y, nil)
}

// GetAtFunc is GetAt restricted to ids accepted by keep (nil accepts all)
func (ix *Index) GetAtFunc(x, y float64, keep func(id string) bool) (string, bool) {
	hits := ix.tree.Search(geom.PointBox(x, y))
	if len(hits) == 0 {
		return "", false
	}

	type scored struct {
		id         string
		area, full float64
	}
	candidates := make([]scored, 0, len(hits))
	for _, h := range hits {
		rects := ix.rects[h.id]
		if h.index >= len(rects) || (keep != nil && !keep(h.id)) {
			continue
		}
		candidates = append(candidates, scored{
			id:   h.id,
			area: rects[h.index].Area(),
			full: geom.TotalArea(rects),
		})
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.area != b.area {
			return a.area < b.area
		}
		if a.full != b.full {
			return a.full < b.full
		}
		return a.id < b.id
	})
	return candidates[0].id, true
}

// GetIntersecting returns the distinct annotations whose geometry
// intersects the box, resolved against the store. Ids the store no longer
// knows are skipped.
func (ix *Index) GetIntersecting(minX, minY, maxX, maxY float64) []AnnotationRects {
	hits := ix.tree.Search(geom.BoxOf(minX, minY, maxX, maxY))

	seen := make(map[string]bool, len(hits))
	var out []AnnotationRects
	for _, h := range hits {
		if seen[h.id] {
			continue
		}
		seen[h.id] = true

		a, ok := ix.store.GetAnnotation(h.id)
		if !ok {
			ix.log.LogConsistencyWarning(h.id, "Indexed annotation missing from store")
			continue
		}
		out = append(out, AnnotationRects{Annotation: a, Rects: ix.GetAnnotationRects(h.id)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Annotation.ID < out[j].Annotation.ID })
	return out
}

// GetAnnotationRects returns a copy of the rects of one annotation
func (ix *Index) GetAnnotationRects(id string) []geom.Rect {
	rects, ok := ix.rects[id]
	if !ok {
		return nil
	}
	return append([]geom.Rect(nil), rects...)
}

// GetAnnotationBounds returns the bounding box of one annotation
func (ix *Index) GetAnnotationBounds(id string) (geom.Rect, bool) {
	return geom.Bounds(ix.rects[id])
}

// Has reports whether an annotation is indexed
func (ix *Index) Has(id string) bool {
	_, ok := ix.rects[id]
	return ok
}

// IDs returns the indexed annotation ids, sorted
func (ix *Index) IDs() []string {
	ids := make([]string, 0, len(ix.rects))
	for id := range ix.rects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of indexed annotations
func (ix *Index) Len() int {
	return len(ix.rects)
}

// Size returns the number of indexed rects
func (ix *Index) Size() int {
	return ix.tree.Len()
}

// Bounds returns the box covering all indexed geometry
func (ix *Index) Bounds() (geom.Rect, bool) {
	if ix.tree.Len() == 0 {
		return geom.Rect{}, false
	}
	return geom.FromBox(ix.tree.Bounds()), true
}

func (ix *Index) observe(op string, start time.Time, err error) {
	d := time.Since(start)
	logErr := err
	if errors.Is(err, ErrNoGeometry) {
		logErr = nil
	}
	ix.log.LogIndexOperation(op, d, len(ix.rects), ix.tree.Len(), logErr)

	if ix.rec != nil {
		ix.rec.ObserveIndexOperation(op, d, err)
		ix.rec.SetIndexSize(len(ix.rects), ix.tree.Len())
	}
}
