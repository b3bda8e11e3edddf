package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/plughost/internal/plugin"
)

// Apply registers every plugin in order and applies its Enabled flag.
// A plugin that fails to register does not stop the rest; all failures are
// returned joined.
func (f *File) Apply(ctx context.Context, m *plugin.Manager) error {
	var errs []error
	for i, ps := range f.Plugins {
		if err := m.Register(ctx, ps.RegisterConfig()); err != nil {
			errs = append(errs, fmt.Errorf("plugins[%d] (%s): %w", i, ps.Name, err))
			continue
		}
		if ps.Enabled != nil {
			m.SetEnabled(ps.Name, *ps.Enabled)
		}
	}
	return errors.Join(errs...)
}

// Sync brings m in line with f: plugins missing from f are removed, the
// rest are registered again in file order.
func (f *File) Sync(ctx context.Context, m *plugin.Manager) error {
	keep := make(map[string]bool, len(f.Plugins))
	for _, ps := range f.Plugins {
		keep[ps.Name] = true
	}
	for _, name := range m.ListPluginNames(plugin.FilterAll) {
		if !keep[name] {
			m.Remove(ctx, name)
		}
	}
	return f.Apply(ctx, m)
}
