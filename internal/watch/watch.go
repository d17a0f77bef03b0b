// ABOUTME: Watches a document file and reports debounced changes
// ABOUTME: Watches the parent directory so editors that replace the file are seen

package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var (
	ErrWatcherClosed = errors.New("watch: watcher closed")
	ErrNotFile       = errors.New("watch: path is a directory")
)

// Options configures a Watcher
type Options struct {
	Delay   time.Duration // Quiet window before OnChange fires, default 100ms
	OnError func(error)
	Logger  zerolog.Logger
}

// Watcher calls a function once a file has settled after changes
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	onChange func(path string)
	opts     Options
	log      zerolog.Logger

	timer    *time.Timer
	fired    chan struct{}
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// New starts watching path. onChange runs on the watcher goroutine, once per
// burst of writes, renames or creates of the file.
func New(path string, onChange func(path string), opts Options) (*Watcher, error) {
	if opts.Delay <= 0 {
		opts.Delay = 100 * time.Millisecond
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFile
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		path:     absPath,
		onChange: onChange,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "watch").Str("path", absPath).Logger(),
		fired:    make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Path returns the absolute path being watched
func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watcher. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.closedWg.Wait()
	return err
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case <-w.fired:
			w.log.Debug().Msg("File settled")
			w.onChange(w.path)

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("Watch error")
			if w.opts.OnError != nil {
				w.opts.OnError(err)
			}
		}
	}
}

func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.log.Debug().Str("op", ev.Op.String()).Msg("File changed")
	w.schedule()
}

// schedule restarts the quiet window
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Delay, func() {
		select {
		case w.fired <- struct{}{}:
		default:
		}
	})
}
