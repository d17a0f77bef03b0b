// ABOUTME: Authoritative in-memory annotation store
// ABOUTME: CRUD operations with synchronous change notifications in batches

package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nainya/textanchor/pkg/model"
)

// Origin tells observers where a change came from
type Origin int

const (
	LOCAL Origin = iota
	REMOTE
)

func (o Origin) String() string {
	if o == REMOTE {
		return "remote"
	}
	return "local"
}

var (
	ErrEmptyID     = errors.New("store: annotation has no id")
	ErrDuplicateID = errors.New("store: duplicate annotation id")
	ErrNotFound    = errors.New("store: annotation not found")
)

// Update pairs the old and new state of a changed annotation
type Update struct {
	Old model.Annotation
	New model.Annotation
}

// ChangeSet is one batch of store changes
type ChangeSet struct {
	Origin  Origin
	Created []model.Annotation
	Updated []Update
	Deleted []model.Annotation
}

// Empty reports whether the batch carries no changes
func (c ChangeSet) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// ObserveOptions filters the batches an observer receives
type ObserveOptions struct {
	Origin *Origin // Only batches from this origin, nil for all
}

type observer struct {
	id   int
	fn   func(ChangeSet)
	opts ObserveOptions
}

// Store holds annotations keyed by id, in insertion order
type Store struct {
	mu          sync.RWMutex
	annotations map[string]model.Annotation
	order       []string
	observers   []observer
	nextID      int
}

// New creates an empty store
func New() *Store {
	return &Store{annotations: make(map[string]model.Annotation)}
}

// GetAnnotation returns a copy of the annotation with the given id
func (s *Store) GetAnnotation(id string) (model.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.annotations[id]
	if !ok {
		return model.Annotation{}, false
	}
	return a.Clone(), true
}

// Has reports whether an annotation exists
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.annotations[id]
	return ok
}

// AddAnnotation inserts a new annotation
func (s *Store) AddAnnotation(a model.Annotation, origin Origin) error {
	if a.ID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	if _, ok := s.annotations[a.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}
	a = prepare(a)
	s.put(a)
	s.mu.Unlock()

	s.emit(ChangeSet{Origin: origin, Created: []model.Annotation{a.Clone()}})
	return nil
}

// UpdateAnnotation replaces an existing annotation
func (s *Store) UpdateAnnotation(a model.Annotation, origin Origin) error {
	s.mu.Lock()
	old, ok := s.annotations[a.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	a = prepare(a)
	s.annotations[a.ID] = a
	s.mu.Unlock()

	s.emit(ChangeSet{Origin: origin, Updated: []Update{{Old: old, New: a.Clone()}}})
	return nil
}

// UpdateTarget replaces the target of the owning annotation
func (s *Store) UpdateTarget(t model.Target, origin Origin) error {
	s.mu.Lock()
	old, ok := s.annotations[t.Annotation]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, t.Annotation)
	}
	a := old.Clone()
	a.Target = t.Clone()
	s.annotations[a.ID] = a
	s.mu.Unlock()

	s.emit(ChangeSet{Origin: origin, Updated: []Update{{Old: old, New: a.Clone()}}})
	return nil
}

// DeleteAnnotation removes an annotation
func (s *Store) DeleteAnnotation(id string, origin Origin) error {
	s.mu.Lock()
	old, ok := s.annotations[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.remove(id)
	s.mu.Unlock()

	s.emit(ChangeSet{Origin: origin, Deleted: []model.Annotation{old}})
	return nil
}

// BulkAddAnnotations adds many annotations in one batch. With replace, all
// existing annotations are deleted first in the same batch. Annotations with
// an empty or duplicate id are skipped and reported in the returned error.
func (s *Store) BulkAddAnnotations(as []model.Annotation, replace bool, origin Origin) error {
	var cs ChangeSet
	cs.Origin = origin

	var errs []error
	s.mu.Lock()
	if replace {
		for _, id := range s.order {
			cs.Deleted = append(cs.Deleted, s.annotations[id])
		}
		s.annotations = make(map[string]model.Annotation, len(as))
		s.order = nil
	}
	for _, a := range as {
		if a.ID == "" {
			errs = append(errs, ErrEmptyID)
			continue
		}
		if _, ok := s.annotations[a.ID]; ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateID, a.ID))
			continue
		}
		a = prepare(a)
		s.put(a)
		cs.Created = append(cs.Created, a.Clone())
	}
	s.mu.Unlock()

	if !cs.Empty() {
		s.emit(cs)
	}
	return errors.Join(errs...)
}

// Clear deletes every annotation
func (s *Store) Clear(origin Origin) {
	s.mu.Lock()
	cs := ChangeSet{Origin: origin}
	for _, id := range s.order {
		cs.Deleted = append(cs.Deleted, s.annotations[id])
	}
	s.annotations = make(map[string]model.Annotation)
	s.order = nil
	s.mu.Unlock()

	if !cs.Empty() {
		s.emit(cs)
	}
}

// All returns copies of every annotation in insertion order
func (s *Store) All() []model.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Annotation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.annotations[id].Clone())
	}
	return out
}

// Len returns the number of annotations
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Observe registers fn for change batches. Observers run synchronously in
// registration order after the store mutation completed.
func (s *Store) Observe(fn func(ChangeSet), opts ObserveOptions) (unobserve func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observer{id: id, fn: fn, opts: opts})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) emit(cs ChangeSet) {
	s.mu.RLock()
	observers := append([]observer(nil), s.observers...)
	s.mu.RUnlock()

	for _, o := range observers {
		if o.opts.Origin != nil && *o.opts.Origin != cs.Origin {
			continue
		}
		o.fn(cs)
	}
}

// put stores a under its id; callers hold the write lock
func (s *Store) put(a model.Annotation) {
	s.annotations[a.ID] = a
	s.order = append(s.order, a.ID)
}

// remove deletes id; callers hold the write lock
func (s *Store) remove(id string) {
	delete(s.annotations, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// prepare detaches a from caller-owned slices and links the target
func prepare(a model.Annotation) model.Annotation {
	a = a.Clone()
	a.Target.Annotation = a.ID
	return a
}
