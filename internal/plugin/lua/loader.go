package lua

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/plughost/internal/plugin"
)

// Loader resolves path targets to Lua plugin scripts.
//
// A target is tried as given, then relative to each search path in order.
// A directory resolves to the Main script named by its plugin.json, or to
// init.lua; a target without an extension also tries target + ".lua".
type Loader struct {
	// Search paths for plugins (checked in order)
	paths []string

	stateOpts []StateOption
	logger    *slog.Logger
}

var _ plugin.Loader = (*Loader)(nil)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the plugin search paths.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = append([]string(nil), paths...)
	}
}

// WithStateOptions sets the options for every Lua state the loader creates.
func WithStateOptions(opts ...StateOption) LoaderOption {
	return func(l *Loader) {
		l.stateOpts = opts
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Lua plugin loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Paths returns the configured search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// AddPath appends a search path.
func (l *Loader) AddPath(path string) {
	l.paths = append(l.paths, path)
}

// Resolve returns the script a target refers to and, for directory
// plugins, its manifest.
func (l *Loader) Resolve(target string) (string, *Manifest, error) {
	if target == "" {
		return "", nil, fmt.Errorf("%w: empty target", ErrScriptNotFound)
	}

	expanded, err := expandHome(target)
	if err != nil {
		return "", nil, err
	}

	candidates := []string{expanded}
	if !filepath.IsAbs(expanded) {
		for _, base := range l.paths {
			candidates = append(candidates, filepath.Join(base, expanded))
		}
	}

	for _, c := range candidates {
		script, manifest, err := resolveCandidate(c)
		if err != nil {
			return "", nil, err
		}
		if script != "" {
			return script, manifest, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrScriptNotFound, target)
}

// resolveCandidate returns ("", nil, nil) when nothing exists at path.
func resolveCandidate(path string) (string, *Manifest, error) {
	if stat, err := os.Stat(path); err == nil {
		if !stat.IsDir() {
			return path, nil, nil
		}
		manifest, err := manifestFor(path)
		if err != nil {
			return "", nil, err
		}
		if _, err := os.Stat(manifest.MainPath()); err != nil {
			return "", nil, fmt.Errorf("%w: %s", ErrScriptNotFound, manifest.MainPath())
		}
		return manifest.MainPath(), manifest, nil
	}

	if filepath.Ext(path) == "" {
		withExt := path + ".lua"
		if stat, err := os.Stat(withExt); err == nil && !stat.IsDir() {
			return withExt, nil, nil
		}
	}
	return "", nil, nil
}

func expandHome(target string) (string, error) {
	if !strings.HasPrefix(target, "~/") {
		return target, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", target, err)
	}
	return filepath.Join(home, target[2:]), nil
}

// Load implements plugin.Loader.
func (l *Loader) Load(ctx context.Context, target string, _ plugin.EntryType) (plugin.Capability, error) {
	script, manifest, err := l.Resolve(target)
	if err != nil {
		return nil, err
	}

	p, err := Open(ctx, script, manifest, l.stateOpts...)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("lua plugin loaded", "target", target, "script", script, "methods", p.Methods().Len())
	return p, nil
}
