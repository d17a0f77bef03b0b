// ABOUTME: Tests for the annotation store and its change notifications

package store

import (
	"errors"
	"testing"

	"github.com/nainya/textanchor/pkg/model"
)

func annotation(id, quote string) model.Annotation {
	return model.Annotation{
		ID: id,
		Target: model.Target{
			Selectors: []model.TextSelector{{Quote: quote, Start: 0, End: len(quote)}},
		},
	}
}

func TestAddGetDelete(t *testing.T) {
	s := New()

	if err := s.AddAnnotation(annotation("a1", "hello"), LOCAL); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if err := s.AddAnnotation(annotation("a1", "again"), LOCAL); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Expected ErrDuplicateID, got %v", err)
	}
	if err := s.AddAnnotation(model.Annotation{}, LOCAL); err != ErrEmptyID {
		t.Errorf("Expected ErrEmptyID, got %v", err)
	}

	a, ok := s.GetAnnotation("a1")
	if !ok {
		t.Fatal("Expected annotation a1")
	}
	if a.Target.Annotation != "a1" {
		t.Errorf("Expected target linked to a1, got %q", a.Target.Annotation)
	}

	// Returned copies are detached from the store
	a.Target.Selectors[0].Quote = "mutated"
	if b, _ := s.GetAnnotation("a1"); b.Target.Selectors[0].Quote != "hello" {
		t.Error("Store state changed through a returned copy")
	}

	if err := s.DeleteAnnotation("a1", LOCAL); err != nil {
		t.Fatal(err)
	}
	if s.Has("a1") || s.Len() != 0 {
		t.Error("Expected store to be empty")
	}
	if err := s.DeleteAnnotation("a1", LOCAL); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestObserveBatches(t *testing.T) {
	s := New()

	var batches []ChangeSet
	unobserve := s.Observe(func(cs ChangeSet) { batches = append(batches, cs) }, ObserveOptions{})

	s.AddAnnotation(annotation("a1", "one"), LOCAL)

	target := annotation("a1", "one more").Target
	target.Annotation = "a1"
	if err := s.UpdateTarget(target, LOCAL); err != nil {
		t.Fatal(err)
	}
	s.DeleteAnnotation("a1", REMOTE)

	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if len(batches[0].Created) != 1 {
		t.Error("Expected created batch")
	}
	up := batches[1].Updated
	if len(up) != 1 || up[0].Old.Target.Quote() != "one" || up[0].New.Target.Quote() != "one more" {
		t.Errorf("Unexpected update batch %+v", up)
	}
	if batches[2].Origin != REMOTE || len(batches[2].Deleted) != 1 {
		t.Errorf("Unexpected delete batch %+v", batches[2])
	}

	unobserve()
	s.AddAnnotation(annotation("a2", "two"), LOCAL)
	if len(batches) != 3 {
		t.Error("Observer called after unobserve")
	}
}

func TestObserveOriginFilter(t *testing.T) {
	s := New()

	remote := REMOTE
	count := 0
	s.Observe(func(ChangeSet) { count++ }, ObserveOptions{Origin: &remote})

	s.AddAnnotation(annotation("a1", "one"), LOCAL)
	s.AddAnnotation(annotation("a2", "two"), REMOTE)

	if count != 1 {
		t.Errorf("Expected 1 remote batch, got %d", count)
	}
}

func TestBulkAddReplace(t *testing.T) {
	s := New()
	s.AddAnnotation(annotation("old", "old"), LOCAL)

	var last ChangeSet
	s.Observe(func(cs ChangeSet) { last = cs }, ObserveOptions{})

	err := s.BulkAddAnnotations([]model.Annotation{
		annotation("a1", "one"),
		annotation("a2", "two"),
		annotation("a1", "dup"),
	}, true, REMOTE)

	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Expected duplicate error, got %v", err)
	}
	if len(last.Deleted) != 1 || len(last.Created) != 2 {
		t.Errorf("Expected one batch with 1 deleted and 2 created, got %+v", last)
	}

	all := s.All()
	if len(all) != 2 || all[0].ID != "a1" || all[1].ID != "a2" {
		t.Errorf("Unexpected store contents %+v", all)
	}

	s.Clear(LOCAL)
	if s.Len() != 0 || len(last.Deleted) != 2 {
		t.Errorf("Expected clear to delete 2, got %d", len(last.Deleted))
	}
}
