package plugin

import "fmt"

// EnabledFilter restricts introspection to enabled or disabled entries.
type EnabledFilter int

const (
	// FilterAll matches every entry.
	FilterAll EnabledFilter = iota

	// FilterEnabled matches enabled entries only.
	FilterEnabled

	// FilterDisabled matches disabled entries only.
	FilterDisabled
)

// String returns a string representation of the filter.
func (f EnabledFilter) String() string {
	switch f {
	case FilterAll:
		return "all"
	case FilterEnabled:
		return "enabled"
	case FilterDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ParseEnabledFilter parses "all", "enabled" or "disabled". The empty string
// is FilterAll.
func ParseEnabledFilter(s string) (EnabledFilter, error) {
	switch s {
	case "", "all":
		return FilterAll, nil
	case "enabled":
		return FilterEnabled, nil
	case "disabled":
		return FilterDisabled, nil
	default:
		return FilterAll, invalid("filter", "unknown filter %q", s)
	}
}

func (f EnabledFilter) match(e *Entry) bool {
	switch f {
	case FilterEnabled:
		return e.enabled
	case FilterDisabled:
		return !e.enabled
	default:
		return true
	}
}

// HasPlugin reports whether name is registered.
func (m *Manager) HasPlugin(name string) bool {
	_, ok := m.plugins.Get(name)
	return ok
}

// HasMethod reports whether any registered plugin, enabled or not, exposes
// method.
func (m *Manager) HasMethod(method string) bool {
	for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.instance.Methods().Has(method) {
			return true
		}
	}
	return false
}

// HasPluginMethod reports whether plugin name exists and exposes method.
func (m *Manager) HasPluginMethod(name, method string) bool {
	e, ok := m.plugins.Get(name)
	return ok && e.instance.Methods().Has(method)
}

// ListPluginNames returns the names matching filter in registration order.
func (m *Manager) ListPluginNames(filter EnabledFilter) []string {
	names := []string{}
	for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
		if filter.match(pair.Value) {
			names = append(names, pair.Key)
		}
	}
	return names
}

// ListMethodNames returns the distinct method names exposed by entries
// matching filter, in first-seen order. A non-empty pluginName restricts
// the listing to that plugin.
func (m *Manager) ListMethodNames(filter EnabledFilter, pluginName string) []string {
	seen := make(map[string]struct{})
	methods := []string{}
	for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
		if pluginName != "" && pair.Key != pluginName {
			continue
		}
		if !filter.match(pair.Value) {
			continue
		}
		for _, name := range pair.Value.instance.Methods().Names() {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			methods = append(methods, name)
		}
	}
	return methods
}

// ListPluginMethodPairs returns every (plugin, method) pair for entries
// matching filter.
func (m *Manager) ListPluginMethodPairs(filter EnabledFilter) []MethodPair {
	pairs := []MethodPair{}
	for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
		if !filter.match(pair.Value) {
			continue
		}
		for _, name := range pair.Value.instance.Methods().Names() {
			pairs = append(pairs, MethodPair{Plugin: pair.Key, Method: name})
		}
	}
	return pairs
}

// Options returns a deep copy of the named plugin's options.
func (m *Manager) Options(name string) (map[string]any, bool) {
	e, ok := m.plugins.Get(name)
	if !ok {
		return nil, false
	}
	return e.Options(), true
}

// ManagerOptions returns a copy of the manager's configuration.
func (m *Manager) ManagerOptions() ManagerConfig {
	return m.config
}

// String returns a one-line summary for logs.
func (m *Manager) String() string {
	return fmt.Sprintf("plugin.Manager{plugins: %d, enabled: %d}", m.Count(), m.CountEnabled())
}
