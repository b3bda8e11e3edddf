package lua

import (
	"context"
	"fmt"
	"maps"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/plugin"
)

// Plugin is a capability backed by a Lua script.
//
// The script returns a table; every function in it becomes a method, in
// name order, except onPluginLoad and onPluginUnload, which are served as
// lifecycle hooks. Positional arguments are converted to Lua values. An
// *plugin.Envelope argument becomes a table with payload, pluginName,
// pluginOptions and eventbus fields; payload changes are written back to
// the envelope when the call returns.
type Plugin struct {
	path     string
	manifest *Manifest

	state   *State
	bridge  *Bridge
	module  *lua.LTable
	methods *plugin.MethodSet

	// Subscriptions made from Lua, by ID, so off() can find them.
	subs map[string]event.Subscription
}

var (
	_ plugin.Capability = (*Plugin)(nil)
	_ plugin.Loadable   = (*Plugin)(nil)
	_ plugin.Unloadable = (*Plugin)(nil)
)

// Open runs the script at path in a fresh state. manifest may be nil.
func Open(ctx context.Context, path string, manifest *Manifest, opts ...StateOption) (*Plugin, error) {
	state := NewState(opts...)

	ret, err := state.DoFile(ctx, path)
	if err != nil {
		_ = state.Close()
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	module, ok := ret.(*lua.LTable)
	if !ok {
		_ = state.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrNotModule, path, ret.Type())
	}

	p := &Plugin{
		path:     path,
		manifest: manifest,
		state:    state,
		bridge:   NewBridge(state.L),
		module:   module,
		methods:  plugin.NewMethodSet(),
		subs:     make(map[string]event.Subscription),
	}

	for _, name := range functionNames(module) {
		if name == plugin.HookLoad || name == plugin.HookUnload {
			continue
		}
		p.methods.Add(name, p.method(name))
	}
	return p, nil
}

// functionNames returns the string keys of t holding functions, sorted.
func functionNames(t *lua.LTable) []string {
	var names []string
	t.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		if _, ok := v.(*lua.LFunction); ok {
			names = append(names, string(key))
		}
	})
	sort.Strings(names)
	return names
}

// Methods implements plugin.Capability.
func (p *Plugin) Methods() *plugin.MethodSet {
	return p.methods
}

// Path returns the script path.
func (p *Plugin) Path() string {
	return p.path
}

// Manifest returns the directory manifest, or nil for a single-file plugin.
func (p *Plugin) Manifest() *Manifest {
	return p.manifest
}

// OnPluginLoad implements plugin.Loadable.
func (p *Plugin) OnPluginLoad(ctx context.Context, env *plugin.Envelope) error {
	p.pruneSubs()
	return p.hook(ctx, plugin.HookLoad, env)
}

// OnPluginUnload implements plugin.Unloadable.
func (p *Plugin) OnPluginUnload(ctx context.Context, env *plugin.Envelope) error {
	return p.hook(ctx, plugin.HookUnload, env)
}

// pruneSubs forgets subscriptions that fired once or were revoked with the
// plugin's scope.
func (p *Plugin) pruneSubs() {
	for id, sub := range p.subs {
		if !sub.IsActive() {
			delete(p.subs, id)
		}
	}
}

func (p *Plugin) hook(ctx context.Context, name string, env *plugin.Envelope) error {
	if _, ok := p.module.RawGetString(name).(*lua.LFunction); !ok {
		return nil
	}
	_, err := p.method(name)(ctx, env)
	return err
}

// Close releases the Lua state.
func (p *Plugin) Close() error {
	return p.state.Close()
}

// method returns a plugin.Method calling the module function name.
func (p *Plugin) method(name string) plugin.Method {
	return func(ctx context.Context, args ...any) (any, error) {
		fn, ok := p.module.RawGetString(name).(*lua.LFunction)
		if !ok {
			return nil, fmt.Errorf("lua plugin %s: %q is not a function", p.path, name)
		}

		tracker := p.bridge.NewTracker()
		type bound struct {
			env     *plugin.Envelope
			table   *lua.LTable
			payload *lua.LTable
		}
		var envs []bound

		largs := make([]lua.LValue, len(args))
		for i, arg := range args {
			env, ok := arg.(*plugin.Envelope)
			if !ok {
				largs[i] = p.bridge.ToLuaValue(arg)
				continue
			}
			t, payload := p.envelopeTable(tracker, env)
			envs = append(envs, bound{env: env, table: t, payload: payload})
			largs[i] = t
		}

		results, err := p.state.Call(ctx, fn, largs...)

		for _, b := range envs {
			p.syncPayload(tracker, b.env, b.table, b.payload)
		}
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, nil
		}
		return p.bridge.ToGoValue(results[0]), nil
	}
}

// envelopeTable builds the Lua view of env.
func (p *Plugin) envelopeTable(tracker *Tracker, env *plugin.Envelope) (*lua.LTable, *lua.LTable) {
	if env.Payload == nil {
		env.Payload = make(map[string]any)
	}
	payload := tracker.Table(env.Payload)

	t := p.state.L.NewTable()
	t.RawSetString("payload", payload)
	t.RawSetString("pluginName", lua.LString(env.PluginName))
	t.RawSetString("pluginOptions", p.bridge.ToLuaValue(p.options(env.PluginOptions)))
	if env.Eventbus != nil {
		t.RawSetString("eventbus", p.eventbusTable(env.Eventbus))
	}
	return t, payload
}

// options merges the manifest defaults beneath the registered options.
func (p *Plugin) options(registered map[string]any) map[string]any {
	if p.manifest == nil || len(p.manifest.Options) == 0 {
		return registered
	}
	merged := maps.Clone(p.manifest.Options)
	maps.Copy(merged, registered)
	return merged
}

// syncPayload writes the Lua payload back into env.Payload in place. A
// payload table replaced wholesale from Lua replaces the map contents.
func (p *Plugin) syncPayload(tracker *Tracker, env *plugin.Envelope, t, original *lua.LTable) {
	current, ok := t.RawGetString("payload").(*lua.LTable)
	if !ok {
		clear(env.Payload)
		return
	}
	if current == original {
		tracker.WriteBack(current)
		return
	}
	replaced, _ := p.bridge.ToGoValue(current).(map[string]any)
	clear(env.Payload)
	maps.Copy(env.Payload, replaced)
}
