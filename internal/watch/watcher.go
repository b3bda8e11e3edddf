package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to tracked files.
type Watcher struct {
	mu sync.Mutex

	watcher *fsnotify.Watcher
	config  Config

	// Tracked files: absolute path -> keys
	files map[string]map[string]bool

	// Watched directories and how many tracked files live in each
	dirs map[string]int

	// Debounced changes per key
	pending map[string]*pendingChange

	events chan Change
	errors chan error

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

type pendingChange struct {
	change Change
	timer  *time.Timer
}

// New creates a watcher and starts its event loop.
func New(opts ...Option) (*Watcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher: fsw,
		config:  config,
		files:   make(map[string]map[string]bool),
		dirs:    make(map[string]int),
		pending: make(map[string]*pendingChange),
		events:  make(chan Change, config.BufferSize),
		errors:  make(chan error, config.BufferSize),
		closeCh: make(chan struct{}),
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Track starts reporting changes to the file at path under key. A key may
// track several files and a file may be tracked under several keys.
func (w *Watcher) Track(key, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPathNotExist, absPath)
		}
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if keys, ok := w.files[absPath]; ok {
		keys[key] = true
		return nil
	}

	dir := filepath.Dir(absPath)
	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[absPath] = map[string]bool{key: true}
	return nil
}

// Untrack stops reporting changes for every file tracked under key and
// drops a pending change for it.
func (w *Watcher) Untrack(key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	found := false
	for path, keys := range w.files {
		if !keys[key] {
			continue
		}
		found = true
		delete(keys, key)
		if len(keys) > 0 {
			continue
		}
		delete(w.files, path)

		dir := filepath.Dir(path)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			_ = w.watcher.Remove(dir)
		}
	}
	if p, ok := w.pending[key]; ok {
		p.timer.Stop()
		delete(w.pending, key)
	}
	if !found {
		return ErrNotTracked
	}
	return nil
}

// Keys returns the tracked keys, sorted.
func (w *Watcher) Keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool)
	keys := make([]string, 0, len(w.files))
	for _, tracked := range w.files {
		for key := range tracked {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Paths returns the files tracked under key, sorted.
func (w *Watcher) Paths(key string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var paths []string
	for path, keys := range w.files {
		if keys[key] {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Events returns the channel of debounced changes.
// The channel is closed when the watcher is closed.
func (w *Watcher) Events() <-chan Change {
	return w.events
}

// Errors returns the channel of watcher errors.
// The channel is closed when the watcher is closed.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)

	for key, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, key)
	}
	w.mu.Unlock()

	w.closedWg.Wait()

	err := w.watcher.Close()

	// Timers that already fired may still be sending; the lock orders them
	// before the close.
	w.mu.Lock()
	close(w.events)
	close(w.errors)
	w.mu.Unlock()

	return err
}

// processLoop handles incoming fsnotify events.
func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case fsEvent, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(fsEvent)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

// handleFSEvent coalesces an fsnotify event into the pending change of
// every key tracking the file.
func (w *Watcher) handleFSEvent(fsEvent fsnotify.Event) {
	op := convertOp(fsEvent.Op)
	if op == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	path := filepath.Clean(fsEvent.Name)
	now := time.Now()
	for key := range w.files[path] {
		if p, exists := w.pending[key]; exists {
			p.change.Op |= op
			p.change.Path = path
			p.change.Timestamp = now
			p.timer.Reset(w.config.Debounce)
			continue
		}

		p := &pendingChange{change: Change{
			Key:       key,
			Path:      path,
			Op:        op,
			Timestamp: now,
		}}
		p.timer = time.AfterFunc(w.config.Debounce, func() {
			w.fire(key)
		})
		w.pending[key] = p
	}
}

// fire delivers a pending change and removes it.
func (w *Watcher) fire(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, exists := w.pending[key]
	if !exists || w.closed {
		return
	}
	delete(w.pending, key)

	select {
	case w.events <- p.change:
	default:
		w.sendErrorLocked(errors.New("event channel full, dropping change for " + key))
	}
}

// Flush immediately delivers all pending changes.
func (w *Watcher) Flush() {
	w.mu.Lock()
	keys := make([]string, 0, len(w.pending))
	for key, p := range w.pending {
		p.timer.Stop()
		keys = append(keys, key)
	}
	w.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		w.fire(key)
	}
}

func (w *Watcher) sendError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.sendErrorLocked(err)
	}
}

func (w *Watcher) sendErrorLocked(err error) {
	select {
	case w.errors <- err:
	default:
		// Channel full, drop error
	}
}

// convertOp converts fsnotify.Op to watch.Op. Chmod is ignored.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}

func (w *Watcher) exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
