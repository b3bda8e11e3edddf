package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Loader resolves a target string to a capability. kind is TypeModule or
// TypePath, as classified by IsPathTarget.
type Loader interface {
	Load(ctx context.Context, target string, kind EntryType) (Capability, error)
}

// LoaderFunc adapts a function to a Loader.
type LoaderFunc func(ctx context.Context, target string, kind EntryType) (Capability, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, target string, kind EntryType) (Capability, error) {
	return f(ctx, target, kind)
}

// IsPathTarget reports whether target should be resolved as a file system
// path rather than a module name.
func IsPathTarget(target string) bool {
	switch {
	case strings.HasPrefix(target, "./"), strings.HasPrefix(target, "../"):
		return true
	case strings.HasPrefix(target, "~/"):
		return true
	case filepath.IsAbs(target), strings.HasPrefix(target, "/"):
		return true
	case strings.HasSuffix(target, ".lua"):
		return true
	}
	return false
}

// Factory constructs a fresh capability for a module.
type Factory func(ctx context.Context) (Capability, error)

// ModuleLoader resolves module names against a table of factories
// registered up front.
type ModuleLoader struct {
	factories map[string]Factory
}

// NewModuleLoader creates an empty module loader.
func NewModuleLoader() *ModuleLoader {
	return &ModuleLoader{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous one.
func (l *ModuleLoader) Register(name string, f Factory) {
	l.factories[name] = f
}

// RegisterInstance registers a factory that always returns c.
func (l *ModuleLoader) RegisterInstance(name string, c Capability) {
	l.Register(name, func(context.Context) (Capability, error) { return c, nil })
}

// Names returns the registered module names, sorted.
func (l *ModuleLoader) Names() []string {
	names := make([]string, 0, len(l.factories))
	for name := range l.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load implements Loader.
func (l *ModuleLoader) Load(ctx context.Context, target string, _ EntryType) (Capability, error) {
	f, ok := l.factories[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, target)
	}
	return f(ctx)
}

// RoutingLoader sends module targets and path targets to different loaders.
type RoutingLoader struct {
	Modules Loader
	Paths   Loader
}

// Load implements Loader.
func (l RoutingLoader) Load(ctx context.Context, target string, kind EntryType) (Capability, error) {
	next := l.Modules
	if kind == TypePath {
		next = l.Paths
	}
	if next == nil {
		return nil, fmt.Errorf("%w for %s targets", ErrNoLoader, kind)
	}
	return next.Load(ctx, target, kind)
}
