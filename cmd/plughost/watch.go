package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/plughost/internal/config"
	"github.com/dshills/plughost/internal/watch"
)

// configKey tracks the configuration file itself. Plugin names never
// contain NUL.
const configKey = "\x00config"

type watchOptions struct {
	onChange string
	debounce time.Duration
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload plugins when their source files change",
		Long: `Watch registers the configured plugins and reloads each one whenever its
script changes. Editing the configuration file re-applies it: plugins
removed from the file are removed, the rest are registered again.

With --on-change, the named method is invoked on every plugin after each
reload, with the reloaded plugin's name as its argument.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.onChange, "on-change", "", "Method to invoke after each reload")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 100*time.Millisecond, "Quiet period before a change is handled")

	return cmd
}

func runWatch(cmd *cobra.Command, root *rootOptions, opts *watchOptions) error {
	ctx := cmd.Context()
	h, err := openHost(ctx, cmd, root)
	if err != nil {
		return err
	}
	defer h.close(ctx)

	w, err := watch.New(watch.WithDebounce(opts.debounce))
	if err != nil {
		return err
	}
	defer w.Close()

	r := &hostReloader{host: h, watcher: w, onChange: opts.onChange}
	if err := r.track(); err != nil {
		h.logger.Warn("some plugins are not watched", "error", err)
	}
	if path := h.file.Path(); path != "" {
		if err := w.Track(configKey, path); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "watching %d plugin(s)\n", len(w.Keys())-boolInt(h.file.Path() != ""))

	err = w.Run(ctx, r, func(c watch.Change, err error) {
		report(out, h, c, err)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func report(out io.Writer, h *host, c watch.Change, err error) {
	name := c.Key
	if name == configKey {
		name = "configuration"
	}
	switch {
	case c.Key == "":
		h.logger.Warn("watcher error", "error", err)
	case err != nil:
		h.logger.Error("reload failed", "plugin", name, "path", c.Path, "error", err)
	case c.Op.Has(watch.OpRemove) || c.Op.Has(watch.OpRename):
		fmt.Fprintf(out, "%s: source removed, keeping loaded version\n", name)
	default:
		fmt.Fprintf(out, "%s: reloaded\n", name)
	}
}

// hostReloader reloads plugins, and the whole configuration when its file
// changes. It runs on the watch loop's goroutine, which owns the manager.
type hostReloader struct {
	host     *host
	watcher  *watch.Watcher
	onChange string
}

func (r *hostReloader) Reload(ctx context.Context, name string) error {
	if name == configKey {
		return r.reloadConfig(ctx)
	}
	if err := r.host.manager.Reload(ctx, name); err != nil {
		return err
	}
	return r.notify(ctx, name)
}

func (r *hostReloader) notify(ctx context.Context, name string) error {
	if r.onChange == "" {
		return nil
	}
	_, err := r.host.manager.InvokeSync(ctx, nil, r.onChange, name)
	return err
}

func (r *hostReloader) reloadConfig(ctx context.Context) error {
	file, err := config.Load(r.host.file.Path())
	if err != nil {
		return err
	}

	m := r.host.manager
	old := r.host.file
	if file.Manager.ThrowOnInvalidTarget != old.Manager.ThrowOnInvalidTarget ||
		file.Manager.ThrowOnInvalidMethod != old.Manager.ThrowOnInvalidMethod ||
		file.Manager.NoEventAdd != old.Manager.NoEventAdd ||
		file.Manager.NoEventRemoval != old.Manager.NoEventRemoval ||
		!slices.Equal(file.PluginPaths, old.PluginPaths) {
		r.host.logger.Warn("manager flags and plugin paths apply on restart")
	}
	if file.Manager.EventPrefix != old.Manager.EventPrefix {
		if err := m.SetEventbus(ctx, r.host.bus, file.Manager.EventPrefix); err != nil {
			return err
		}
	}

	r.host.file = file
	syncErr := file.Sync(ctx, m)
	trackErr := r.track()
	return errors.Join(syncErr, trackErr)
}

// track replaces the tracked plugin files with the manager's current ones.
func (r *hostReloader) track() error {
	for _, key := range r.watcher.Keys() {
		if key != configKey {
			_ = r.watcher.Untrack(key)
		}
	}
	_, err := r.watcher.TrackManager(r.host.manager)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
