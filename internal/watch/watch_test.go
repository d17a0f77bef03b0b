package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func setupWatcher(t *testing.T) (string, *Watcher, *atomic.Int32, chan string) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}

	var calls atomic.Int32
	changed := make(chan string, 10)
	w, err := New(path, func(p string) {
		calls.Add(1)
		changed <- p
	}, Options{Delay: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return path, w, &calls, changed
}

func TestWatcherCoalescesWrites(t *testing.T) {
	path, w, calls, changed := setupWatcher(t)

	for _, text := range []string{"hello", "hello there", "hello there world"} {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case got := <-changed:
		if got != w.Path() {
			t.Errorf("Expected %s, got %s", w.Path(), got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for change")
	}

	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("Expected one debounced change, got %d", n)
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	path, _, calls, _ := setupWatcher(t)

	other := filepath.Join(filepath.Dir(path), "other.txt")
	if err := os.WriteFile(other, []byte("noise"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("Expected sibling writes ignored, got %d changes", n)
	}
}

func TestWatcherErrors(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.txt"), func(string) {}, Options{}); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
	if _, err := New(t.TempDir(), func(string) {}, Options{}); !errors.Is(err, ErrNotFile) {
		t.Errorf("Expected ErrNotFile, got %v", err)
	}

	_, w, _, _ := setupWatcher(t)
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Expected ErrWatcherClosed on second close, got %v", err)
	}
}
