package plugin

// SetEnabled toggles dispatch for one plugin. It reports whether the plugin
// exists. No lifecycle hooks run.
func (m *Manager) SetEnabled(name string, enabled bool) bool {
	e, ok := m.plugins.Get(name)
	if !ok {
		return false
	}
	m.toggle(e, enabled)
	return true
}

// SetEnabledAll toggles every registered plugin.
func (m *Manager) SetEnabledAll(enabled bool) {
	for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
		m.toggle(pair.Value, enabled)
	}
}

// SetEnabledMany toggles each named plugin and returns how many existed.
func (m *Manager) SetEnabledMany(names []string, enabled bool) int {
	n := 0
	for _, name := range names {
		if m.SetEnabled(name, enabled) {
			n++
		}
	}
	return n
}

func (m *Manager) toggle(e *Entry, enabled bool) {
	if e.enabled == enabled {
		return
	}
	e.enabled = enabled

	typ := EventPluginDisabled
	if enabled {
		typ = EventPluginEnabled
	}
	m.logger.Debug("plugin toggled", "plugin", e.name, "enabled", enabled)
	m.emitEvent(ManagerEvent{Type: typ, Plugin: e.name})
}
