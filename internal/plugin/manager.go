package plugin

import (
	"log/slog"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/event/topic"
)

// DefaultEventPrefix is the command-surface prefix used when none is given.
const DefaultEventPrefix = "plugins"

// Manager is the plugin registry and dispatcher.
//
// A Manager is owned by a single goroutine and takes no locks. Plugin
// methods and lifecycle hooks may call back into the manager, directly or
// through the bus, while a dispatch is in progress.
type Manager struct {
	config ManagerConfig
	loader Loader
	logger *slog.Logger

	// Registered plugins in registration order.
	plugins *orderedmap.OrderedMap[string, *Entry]

	// Bound bus and the command subscriptions made on it.
	bus         event.Bus
	prefix      topic.Topic
	commandSubs []event.Subscription

	eventHandlers []EventHandler
}

// ManagerConfig configures the error policy and the bus command surface.
type ManagerConfig struct {
	// ThrowOnInvalidTarget fails a dispatch that matched no enabled plugin.
	ThrowOnInvalidTarget bool `json:"throwOnInvalidTarget" toml:"throw_on_invalid_target" yaml:"throwOnInvalidTarget"`

	// ThrowOnInvalidMethod fails a dispatch that invoked nothing.
	ThrowOnInvalidMethod bool `json:"throwOnInvalidMethod" toml:"throw_on_invalid_method" yaml:"throwOnInvalidMethod"`

	// NoEventAdd refuses the add and add:all bus commands.
	NoEventAdd bool `json:"noEventAdd" toml:"no_event_add" yaml:"noEventAdd"`

	// NoEventRemoval refuses the remove and remove:all bus commands.
	NoEventRemoval bool `json:"noEventRemoval" toml:"no_event_removal" yaml:"noEventRemoval"`

	// EventPrefix is the default command prefix for SetEventbus.
	EventPrefix string `json:"eventPrefix,omitempty" toml:"event_prefix" yaml:"eventPrefix,omitempty" validate:"omitempty,excludesall=*"`
}

// DefaultManagerConfig returns the permissive default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{EventPrefix: DefaultEventPrefix}
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets the manager configuration.
func WithConfig(config ManagerConfig) Option {
	return func(m *Manager) {
		m.config = config
	}
}

// WithLoader sets the loader used for module and path targets.
func WithLoader(l Loader) Option {
	return func(m *Manager) {
		m.loader = l
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		config:  DefaultManagerConfig(),
		logger:  slog.New(slog.DiscardHandler),
		plugins: orderedmap.New[string, *Entry](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EventHandler observes manager lifecycle notifications. Panics in
// handlers are recovered.
type EventHandler func(event ManagerEvent)

// ManagerEvent is a manager lifecycle notification.
type ManagerEvent struct {
	Type   ManagerEventType
	Plugin string
	Error  error
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventPluginLoaded is emitted after a plugin is registered.
	EventPluginLoaded ManagerEventType = iota
	// EventPluginUnloaded is emitted after a plugin is removed.
	EventPluginUnloaded
	// EventPluginEnabled is emitted when a plugin is enabled.
	EventPluginEnabled
	// EventPluginDisabled is emitted when a plugin is disabled.
	EventPluginDisabled
	// EventPluginReloaded is emitted after a plugin is reloaded.
	EventPluginReloaded
	// EventPluginError is emitted when a lifecycle hook fails.
	EventPluginError
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginUnloaded:
		return "unloaded"
	case EventPluginEnabled:
		return "enabled"
	case EventPluginDisabled:
		return "disabled"
	case EventPluginReloaded:
		return "reloaded"
	case EventPluginError:
		return "error"
	default:
		return "unknown"
	}
}

// Subscribe adds a lifecycle observer and returns a func that removes it.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1

	return func() {
		// Set to nil instead of removing to avoid index shifting issues
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

func (m *Manager) emitEvent(ev ManagerEvent) {
	for _, handler := range m.eventHandlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("manager event handler panicked", "event", ev.Type.String(), "panic", r)
				}
			}()
			handler(ev)
		}()
	}
}

// Get returns the entry registered under name.
func (m *Manager) Get(name string) (*Entry, bool) {
	return m.plugins.Get(name)
}

// Count returns the number of registered plugins.
func (m *Manager) Count() int {
	return m.plugins.Len()
}

// CountEnabled returns the number of enabled plugins.
func (m *Manager) CountEnabled() int {
	count := 0
	for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.enabled {
			count++
		}
	}
	return count
}

// Eventbus returns the bound bus, or nil.
func (m *Manager) Eventbus() event.Bus {
	return m.bus
}

// names returns a snapshot of registered names in registration order.
func (m *Manager) names() []string {
	names := make([]string, 0, m.plugins.Len())
	for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}
