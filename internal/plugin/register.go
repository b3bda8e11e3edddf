package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegisterConfig describes one plugin to register.
type RegisterConfig struct {
	// Name is the unique plugin name.
	Name string `json:"name" validate:"required"`

	// Target is resolved through the Loader when Instance is nil.
	// Defaults to Name.
	Target string `json:"target,omitempty"`

	// Instance is an already constructed capability.
	Instance Capability `json:"-" validate:"-"`

	// Options is opaque plugin configuration.
	Options map[string]any `json:"options,omitempty" validate:"-"`
}

// Validate checks the struct-level constraints.
func (c RegisterConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid(lowerFirst(fe.Field()), "failed %q constraint", fe.Tag())
		}
		return invalid("config", "%v", err)
	}
	return nil
}

// DecodeRegisterConfig converts an untyped registration value, as received
// over the bus or from a config file, into a RegisterConfig.
func DecodeRegisterConfig(v any) (RegisterConfig, error) {
	switch c := v.(type) {
	case RegisterConfig:
		return c, c.Validate()
	case *RegisterConfig:
		if c == nil {
			return RegisterConfig{}, invalid("config", "nil")
		}
		return *c, c.Validate()
	case map[string]any:
		return decodeRegisterMap(c)
	case nil:
		return RegisterConfig{}, invalid("config", "missing")
	default:
		return RegisterConfig{}, invalid("config", "expected object, got %T", v)
	}
}

func decodeRegisterMap(raw map[string]any) (RegisterConfig, error) {
	var cfg RegisterConfig

	name, ok := raw["name"].(string)
	if !ok {
		if raw["name"] == nil {
			return cfg, invalid("name", "required")
		}
		return cfg, invalid("name", "expected string, got %T", raw["name"])
	}
	cfg.Name = name

	if v, present := raw["target"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return cfg, invalid("target", "expected string, got %T", v)
		}
		cfg.Target = s
	}

	if v, present := raw["options"]; present && v != nil {
		opts, ok := v.(map[string]any)
		if !ok {
			return cfg, invalid("options", "expected object, got %T", v)
		}
		cfg.Options = opts
	}

	if v, present := raw["instance"]; present && v != nil {
		c, ok := v.(Capability)
		if !ok {
			return cfg, invalid("instance", "expected capability, got %T", v)
		}
		cfg.Instance = c
	}

	return cfg, cfg.Validate()
}

// Register adds a plugin and runs its onPluginLoad hook.
//
// A name that is already registered is removed first, with its full removal
// sequence, and the new entry is appended at the end of the order.
func (m *Manager) Register(ctx context.Context, cfg RegisterConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	entry := &Entry{
		name:    cfg.Name,
		enabled: true,
		options: cloneMap(cfg.Options),
	}

	if cfg.Instance != nil {
		entry.typ = TypeInstance
		entry.instance = cfg.Instance
	} else {
		instance, typ, target, err := m.resolve(ctx, cfg)
		if err != nil {
			return err
		}
		entry.instance, entry.typ, entry.target = instance, typ, target
	}

	if _, exists := m.plugins.Get(cfg.Name); exists {
		m.logger.Info("replacing plugin", "plugin", cfg.Name)
		m.remove(ctx, cfg.Name, entry.instance)
	}

	if m.bus != nil {
		_ = entry.rebind(m.bus)
	}
	m.plugins.Set(entry.name, entry)

	m.logger.Info("plugin registered", "plugin", entry.name, "type", entry.typ.String(), "target", entry.target)
	m.dispatchQuiet(ctx, HookLoad, []string{entry.name})
	m.emitEvent(ManagerEvent{Type: EventPluginLoaded, Plugin: entry.name})
	return nil
}

// resolve loads cfg's target through the configured Loader.
func (m *Manager) resolve(ctx context.Context, cfg RegisterConfig) (Capability, EntryType, string, error) {
	target := cfg.Target
	if target == "" {
		target = cfg.Name
	}
	typ := TypeModule
	if IsPathTarget(target) {
		typ = TypePath
	}

	if m.loader == nil {
		return nil, typ, target, &LoadError{Name: cfg.Name, Target: target, Err: ErrNoLoader}
	}

	instance, err := m.loader.Load(ctx, target, typ)
	if err != nil {
		return nil, typ, target, &LoadError{Name: cfg.Name, Target: target, Err: err}
	}
	if instance == nil {
		return nil, typ, target, &LoadError{Name: cfg.Name, Target: target, Err: errors.New("loader returned no capability")}
	}
	return instance, typ, target, nil
}

// RegisterAll registers each config in order. It stops at the first
// failure; plugins registered before it stay registered.
func (m *Manager) RegisterAll(ctx context.Context, configs []RegisterConfig) error {
	for i, cfg := range configs {
		if err := m.Register(ctx, cfg); err != nil {
			return fmt.Errorf("register #%d (%s): %w", i, cfg.Name, err)
		}
	}
	return nil
}

// Remove runs the plugin's onPluginUnload hook, revokes every bus
// subscription it made, and deletes it. A capability implementing io.Closer
// is closed afterwards. It reports whether the plugin existed.
func (m *Manager) Remove(ctx context.Context, name string) bool {
	return m.remove(ctx, name, nil)
}

// remove deletes name; keep is an instance that is about to be registered
// again and must not be closed.
func (m *Manager) remove(ctx context.Context, name string, keep Capability) bool {
	entry, exists := m.plugins.Get(name)
	if !exists {
		return false
	}

	m.dispatchQuiet(ctx, HookUnload, []string{name})
	if err := entry.rebind(nil); err != nil {
		m.logger.Warn("revoking plugin subscriptions", "plugin", name, "error", err)
	}
	m.plugins.Delete(name)

	if c, ok := entry.instance.(io.Closer); ok && !sameInstance(entry.instance, keep) {
		if err := c.Close(); err != nil {
			m.logger.Warn("closing plugin", "plugin", name, "error", err)
		}
	}

	m.logger.Info("plugin removed", "plugin", name)
	m.emitEvent(ManagerEvent{Type: EventPluginUnloaded, Plugin: name})
	return true
}

// RemoveAll removes every plugin in registration order.
func (m *Manager) RemoveAll(ctx context.Context) {
	for _, name := range m.names() {
		m.Remove(ctx, name)
	}
	// Anything registered by an unload hook while we were removing.
	for _, name := range m.names() {
		m.Remove(ctx, name)
	}
}

// Reload re-resolves a plugin's target and replaces the entry, keeping its
// options and enabled state. Instance entries are re-registered with the
// same capability so their hooks run again.
func (m *Manager) Reload(ctx context.Context, name string) error {
	entry, exists := m.plugins.Get(name)
	if !exists {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}

	cfg := RegisterConfig{Name: entry.name, Options: entry.options}
	if entry.typ == TypeInstance {
		cfg.Instance = entry.instance
	} else {
		cfg.Target = entry.target
		// Resolve before removal so a broken target keeps the old entry.
		instance, _, _, err := m.resolve(ctx, cfg)
		if err != nil {
			m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
			return err
		}
		cfg.Instance = instance
	}
	wasEnabled := entry.enabled

	if err := m.Register(ctx, cfg); err != nil {
		return err
	}

	reloaded, _ := m.plugins.Get(name)
	if entry.typ != TypeInstance {
		reloaded.typ, reloaded.target = entry.typ, entry.target
	}
	reloaded.enabled = wasEnabled

	m.emitEvent(ManagerEvent{Type: EventPluginReloaded, Plugin: name})
	return nil
}

// dispatchQuiet invokes a lifecycle hook on the named entries with one
// shared envelope. It ignores the enabled flag and the error policy; hook
// failures are logged and reported as EventPluginError.
func (m *Manager) dispatchQuiet(ctx context.Context, hook string, names []string) {
	env := newEnvelope(nil, nil)
	var invoked []string

	for _, name := range names {
		entry, ok := m.plugins.Get(name)
		if !ok {
			continue
		}
		fn, ok := entry.hook(hook)
		if !ok {
			continue
		}

		env.bind(entry)
		invoked = append(invoked, name)
		if _, err := call(ctx, name, hook, fn, []any{env}); err != nil {
			m.logger.Warn("plugin hook failed", "plugin", name, "hook", hook, "error", err)
			m.emitEvent(ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		}
	}
	env.finish(invoked)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// sameInstance reports whether a and b are the same capability value,
// without panicking on non-comparable dynamic types.
func sameInstance(a, b Capability) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
