package watch

import (
	"context"
	"errors"

	"github.com/dshills/plughost/internal/plugin"
)

// Reloader is the part of plugin.Manager the reload loop drives.
type Reloader interface {
	Reload(ctx context.Context, name string) error
}

// sourced is implemented by capabilities loaded from a file, such as Lua
// plugins.
type sourced interface {
	Path() string
}

// TrackManager tracks the source file of every registered plugin, keyed by
// plugin name. A plugin is tracked when its capability reports a Path, or
// failing that when it was registered from a path target. It returns the
// names it tracked.
func (w *Watcher) TrackManager(m *plugin.Manager) ([]string, error) {
	var (
		tracked []string
		errs    []error
	)
	for _, name := range m.ListPluginNames(plugin.FilterAll) {
		entry, ok := m.Get(name)
		if !ok {
			continue
		}
		var path string
		if src, ok := entry.Instance().(sourced); ok {
			path = src.Path()
		} else if entry.Type() == plugin.TypePath {
			path = entry.Target()
		}
		if path == "" {
			continue
		}
		if err := w.Track(name, path); err != nil {
			errs = append(errs, err)
			continue
		}
		tracked = append(tracked, name)
	}
	return tracked, errors.Join(errs...)
}

// Run reloads a plugin each time its key changes, until ctx is done or the
// watcher is closed. It must run on the goroutine that owns r. handle, if
// non-nil, is told about every change and the reload's outcome; Errors
// from the watcher are passed to it with a zero Change.
func (w *Watcher) Run(ctx context.Context, r Reloader, handle func(Change, error)) error {
	if handle == nil {
		handle = func(Change, error) {}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case change, ok := <-w.Events():
			if !ok {
				return ErrWatcherClosed
			}
			if change.Op.Has(OpRemove) || change.Op.Has(OpRename) {
				// The file may come back; keep the loaded version until it does.
				if !w.exists(change.Path) {
					handle(change, nil)
					continue
				}
			}
			handle(change, r.Reload(ctx, change.Key))

		case err, ok := <-w.Errors():
			if !ok {
				return ErrWatcherClosed
			}
			handle(Change{}, err)
		}
	}
}
