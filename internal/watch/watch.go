// Package watch detects changes to plugin source files so they can be
// reloaded.
//
// A Watcher tracks files under caller-chosen keys (usually plugin names).
// fsnotify events are filtered to the tracked files, coalesced per key over
// a debounce window and delivered on the Events channel. The Watcher never
// touches a plugin.Manager itself: the goroutine that owns the manager
// drains Events and calls Reload, as Run does.
//
// Parent directories are watched rather than the files, so editors that
// save through a rename are still seen.
package watch

import (
	"errors"
	"strings"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrNotTracked    = errors.New("key is not tracked")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Op represents the file system operations behind a change.
type Op uint32

const (
	// OpCreate indicates the file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates the file was written to.
	OpWrite
	// OpRemove indicates the file was removed.
	OpRemove
	// OpRename indicates the file was renamed.
	OpRename
)

// String returns a human-readable representation of the operation set.
func (op Op) String() string {
	var parts []string
	for _, o := range []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}} {
		if op.Has(o.op) {
			parts = append(parts, o.name)
		}
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Change is a debounced modification of a tracked file.
type Change struct {
	// Key is the key the file was tracked under.
	Key string

	// Path is the absolute path of the file.
	Path string

	// Op combines every operation seen during the debounce window.
	Op Op

	// Timestamp is when the last operation was seen.
	Timestamp time.Time
}

// Config configures a Watcher.
type Config struct {
	// Debounce is how long a key must stay quiet before its change is
	// delivered.
	Debounce time.Duration

	// BufferSize is the capacity of the Events and Errors channels.
	BufferSize int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:   100 * time.Millisecond,
		BufferSize: 64,
	}
}

// Option configures a Watcher.
type Option func(*Config)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Debounce = d
		}
	}
}

// WithBufferSize sets the channel capacity.
func WithBufferSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}
