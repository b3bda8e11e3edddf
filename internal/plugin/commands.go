package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/event/topic"
)

// Command topic suffixes, appended to the manager's prefix.
const (
	CmdAdd               = "add"
	CmdAddAll            = "add:all"
	CmdEnablePlugin      = "enable:plugin"
	CmdEnableAll         = "enable:all"
	CmdEnablePlugins     = "enable:plugins"
	CmdGetNames          = "get:names"
	CmdGetMethods        = "get:methods"
	CmdGetPairs          = "get:pairs"
	CmdGetOptions        = "get:options"
	CmdGetManagerOptions = "get:manager:options"
	CmdHasPlugin         = "has:plugin"
	CmdHasMethod         = "has:method"
	CmdHasPluginMethod   = "has:plugin:method"
	CmdInvokeSync        = "invoke:sync"
	CmdInvokeAsync       = "invoke:async"
	CmdInvokeSyncEvent   = "invoke:sync:event"
	CmdRemove            = "remove"
	CmdRemoveAll         = "remove:all"
)

type command struct {
	suffix  string
	handler event.Handler
}

// SetEventbus binds the manager to bus and exposes its command surface on
// it under prefix. An empty prefix falls back to the configured
// EventPrefix, then to DefaultEventPrefix. A nil bus unbinds.
//
// When the bus changes every plugin is unloaded, given a fresh scope on the
// new bus, and loaded again, so no plugin keeps a subscription on the old
// bus. Rebinding the same bus only moves the command handlers.
//
// The command handlers are subscribed first; if that fails the manager
// stays bound to its previous bus and prefix.
func (m *Manager) SetEventbus(ctx context.Context, bus event.Bus, prefix string) error {
	if prefix == "" {
		prefix = m.config.EventPrefix
	}
	if prefix == "" {
		prefix = DefaultEventPrefix
	}
	p := topic.Topic(prefix)
	if !p.IsValid() || p.IsWildcard() {
		return invalid("prefix", "invalid topic prefix %q", prefix)
	}

	var subs []event.Subscription
	if bus != nil {
		var err error
		if subs, err = m.subscribeCommands(bus, p); err != nil {
			return err
		}
	}

	oldBus := m.bus
	if bus != oldBus {
		m.logger.Info("rebinding plugins to new eventbus", "plugins", m.plugins.Len(), "unbind", bus == nil)
		m.dispatchQuiet(ctx, HookUnload, m.names())

		m.bus = bus
		var errs []error
		for pair := m.plugins.Oldest(); pair != nil; pair = pair.Next() {
			if err := pair.Value.rebind(bus); err != nil {
				errs = append(errs, fmt.Errorf("plugin %q: %w", pair.Key, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			m.logger.Warn("revoking plugin subscriptions", "error", err)
		}

		m.dispatchQuiet(ctx, HookLoad, m.names())
	}

	if err := m.unsubscribeCommands(oldBus, m.commandSubs); err != nil {
		m.logger.Warn("removing command handlers", "error", err)
	}
	m.prefix = p
	m.commandSubs = subs
	return nil
}

func (m *Manager) unsubscribeCommands(bus event.Bus, subs []event.Subscription) error {
	if bus == nil {
		return nil
	}

	var errs []error
	for _, sub := range subs {
		err := bus.Unsubscribe(sub)
		if err != nil && !errors.Is(err, event.ErrSubscriptionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// subscribeCommands binds every command handler under prefix. On failure
// the handlers subscribed so far are removed again.
func (m *Manager) subscribeCommands(bus event.Bus, prefix topic.Topic) ([]event.Subscription, error) {
	var subs []event.Subscription
	for _, cmd := range m.commands() {
		sub, err := bus.Subscribe(prefix.Child(cmd.suffix), cmd.handler, event.WithOwner(m))
		if err != nil {
			_ = m.unsubscribeCommands(bus, subs)
			return nil, fmt.Errorf("subscribe %s: %w", cmd.suffix, err)
		}
		subs = append(subs, sub)
	}
	m.logger.Debug("command surface bound", "prefix", prefix.String(), "commands", len(subs))
	return subs, nil
}

// CommandTopic returns the full topic for a command suffix under the
// current prefix.
func (m *Manager) CommandTopic(suffix string) topic.Topic {
	p := m.prefix
	if p == "" {
		p = topic.Topic(DefaultEventPrefix)
	}
	return p.Child(suffix)
}

func (m *Manager) commands() []command {
	return []command{
		{CmdAdd, m.cmdAdd},
		{CmdAddAll, m.cmdAddAll},
		{CmdEnablePlugin, m.cmdEnablePlugin},
		{CmdEnableAll, m.cmdEnableAll},
		{CmdEnablePlugins, m.cmdEnablePlugins},
		{CmdGetNames, m.cmdGetNames},
		{CmdGetMethods, m.cmdGetMethods},
		{CmdGetPairs, m.cmdGetPairs},
		{CmdGetOptions, m.cmdGetOptions},
		{CmdGetManagerOptions, m.cmdGetManagerOptions},
		{CmdHasPlugin, m.cmdHasPlugin},
		{CmdHasMethod, m.cmdHasMethod},
		{CmdHasPluginMethod, m.cmdHasPluginMethod},
		{CmdInvokeSync, m.cmdInvokeSync},
		{CmdInvokeAsync, m.cmdInvokeAsync},
		{CmdInvokeSyncEvent, m.cmdInvokeSyncEvent},
		{CmdRemove, m.cmdRemove},
		{CmdRemoveAll, m.cmdRemoveAll},
	}
}

func (m *Manager) cmdAdd(ctx context.Context, args ...any) (any, error) {
	if m.config.NoEventAdd {
		return nil, ErrCommandForbidden
	}
	cfg, err := DecodeRegisterConfig(argAt(args, 0))
	if err != nil {
		return nil, err
	}
	return nil, m.Register(ctx, cfg)
}

func (m *Manager) cmdAddAll(ctx context.Context, args ...any) (any, error) {
	if m.config.NoEventAdd {
		return nil, ErrCommandForbidden
	}
	var raw []any
	switch v := argAt(args, 0).(type) {
	case []any:
		raw = v
	case []RegisterConfig:
		return nil, m.RegisterAll(ctx, v)
	case []map[string]any:
		for _, c := range v {
			raw = append(raw, c)
		}
	default:
		return nil, invalid("configs", "expected list, got %T", v)
	}

	configs := make([]RegisterConfig, 0, len(raw))
	for i, r := range raw {
		cfg, err := DecodeRegisterConfig(r)
		if err != nil {
			return nil, fmt.Errorf("config #%d: %w", i, err)
		}
		configs = append(configs, cfg)
	}
	return nil, m.RegisterAll(ctx, configs)
}

func (m *Manager) cmdEnablePlugin(_ context.Context, args ...any) (any, error) {
	name, err := stringArg(args, 0, "name")
	if err != nil {
		return nil, err
	}
	enabled, err := boolArg(args, 1, "enabled")
	if err != nil {
		return nil, err
	}
	return m.SetEnabled(name, enabled), nil
}

func (m *Manager) cmdEnableAll(_ context.Context, args ...any) (any, error) {
	enabled, err := boolArg(args, 0, "enabled")
	if err != nil {
		return nil, err
	}
	m.SetEnabledAll(enabled)
	return nil, nil
}

func (m *Manager) cmdEnablePlugins(_ context.Context, args ...any) (any, error) {
	names, err := targetArg(argAt(args, 0))
	if err != nil {
		return nil, err
	}
	enabled, err := boolArg(args, 1, "enabled")
	if err != nil {
		return nil, err
	}
	return m.SetEnabledMany(names, enabled), nil
}

func (m *Manager) cmdGetNames(_ context.Context, args ...any) (any, error) {
	filter, err := filterArg(argAt(args, 0))
	if err != nil {
		return nil, err
	}
	return m.ListPluginNames(filter), nil
}

func (m *Manager) cmdGetMethods(_ context.Context, args ...any) (any, error) {
	filter, err := filterArg(argAt(args, 0))
	if err != nil {
		return nil, err
	}
	var name string
	if len(args) > 1 && args[1] != nil {
		if name, err = stringArg(args, 1, "name"); err != nil {
			return nil, err
		}
	}
	return m.ListMethodNames(filter, name), nil
}

func (m *Manager) cmdGetPairs(_ context.Context, args ...any) (any, error) {
	filter, err := filterArg(argAt(args, 0))
	if err != nil {
		return nil, err
	}
	return m.ListPluginMethodPairs(filter), nil
}

func (m *Manager) cmdGetOptions(_ context.Context, args ...any) (any, error) {
	name, err := stringArg(args, 0, "name")
	if err != nil {
		return nil, err
	}
	opts, ok := m.Options(name)
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	if opts == nil {
		opts = map[string]any{}
	}
	return opts, nil
}

func (m *Manager) cmdGetManagerOptions(context.Context, ...any) (any, error) {
	return m.ManagerOptions(), nil
}

func (m *Manager) cmdHasPlugin(_ context.Context, args ...any) (any, error) {
	name, err := stringArg(args, 0, "name")
	if err != nil {
		return nil, err
	}
	return m.HasPlugin(name), nil
}

func (m *Manager) cmdHasMethod(_ context.Context, args ...any) (any, error) {
	method, err := stringArg(args, 0, "method")
	if err != nil {
		return nil, err
	}
	return m.HasMethod(method), nil
}

func (m *Manager) cmdHasPluginMethod(_ context.Context, args ...any) (any, error) {
	name, err := stringArg(args, 0, "name")
	if err != nil {
		return nil, err
	}
	method, err := stringArg(args, 1, "method")
	if err != nil {
		return nil, err
	}
	return m.HasPluginMethod(name, method), nil
}

func (m *Manager) cmdInvokeSync(ctx context.Context, args ...any) (any, error) {
	target, method, rest, err := invokeArgs(args)
	if err != nil {
		return nil, err
	}
	return m.InvokeSync(ctx, target, method, rest...)
}

func (m *Manager) cmdInvokeAsync(ctx context.Context, args ...any) (any, error) {
	target, method, rest, err := invokeArgs(args)
	if err != nil {
		return Rejected(err), nil
	}
	return m.InvokeAsync(ctx, target, method, rest...), nil
}

func (m *Manager) cmdInvokeSyncEvent(ctx context.Context, args ...any) (any, error) {
	method, err := stringArg(args, 0, "method")
	if err != nil {
		return nil, err
	}
	copyProps, err := mapArg(argAt(args, 1), "copyProps")
	if err != nil {
		return nil, err
	}
	passthru, err := mapArg(argAt(args, 2), "passthruProps")
	if err != nil {
		return nil, err
	}
	target, err := targetArg(argAt(args, 3))
	if err != nil {
		return nil, err
	}
	return m.InvokeSyncEvent(ctx, EventRequest{
		Method:        method,
		Target:        target,
		CopyProps:     copyProps,
		PassthruProps: passthru,
	})
}

func (m *Manager) cmdRemove(ctx context.Context, args ...any) (any, error) {
	if m.config.NoEventRemoval {
		return nil, ErrCommandForbidden
	}
	name, err := stringArg(args, 0, "name")
	if err != nil {
		return nil, err
	}
	return m.Remove(ctx, name), nil
}

func (m *Manager) cmdRemoveAll(ctx context.Context, _ ...any) (any, error) {
	if m.config.NoEventRemoval {
		return nil, ErrCommandForbidden
	}
	m.RemoveAll(ctx)
	return nil, nil
}

// Argument decoding for bus commands.

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func stringArg(args []any, i int, field string) (string, error) {
	s, ok := argAt(args, i).(string)
	if !ok {
		return "", invalid(field, "expected string, got %T", argAt(args, i))
	}
	return s, nil
}

func boolArg(args []any, i int, field string) (bool, error) {
	b, ok := argAt(args, i).(bool)
	if !ok {
		return false, invalid(field, "expected bool, got %T", argAt(args, i))
	}
	return b, nil
}

// targetArg accepts nil (every plugin), a single name, or a list of names.
func targetArg(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		names := make([]string, 0, len(t))
		for i, n := range t {
			s, ok := n.(string)
			if !ok {
				return nil, invalid("target", "element %d: expected string, got %T", i, n)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, invalid("target", "expected string or list, got %T", v)
	}
}

func mapArg(v any, field string) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	default:
		return nil, invalid(field, "expected object, got %T", v)
	}
}

// filterArg accepts an EnabledFilter, its string form, or a bool where true
// means enabled only and false disabled only.
func filterArg(v any) (EnabledFilter, error) {
	switch f := v.(type) {
	case nil:
		return FilterAll, nil
	case EnabledFilter:
		return f, nil
	case string:
		return ParseEnabledFilter(f)
	case bool:
		if f {
			return FilterEnabled, nil
		}
		return FilterDisabled, nil
	default:
		return FilterAll, invalid("filter", "unsupported filter %T", v)
	}
}

func invokeArgs(args []any) ([]string, string, []any, error) {
	target, err := targetArg(argAt(args, 0))
	if err != nil {
		return nil, "", nil, err
	}
	method, err := stringArg(args, 1, "method")
	if err != nil {
		return nil, "", nil, err
	}
	var rest []any
	if len(args) > 2 {
		rest = args[2:]
	}
	return target, method, rest, nil
}
