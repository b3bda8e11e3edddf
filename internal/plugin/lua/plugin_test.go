package lua

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/plugin"
)

const counterModule = `
local M = {}

function M.add(a, b)
  return a + b + 3
end

function M.test(env)
  env.payload.count = (env.payload.count or 0) + 1
  env.payload.last = env.pluginName
  env.payload.greeting = env.pluginOptions.greeting
end

function M.onPluginLoad(env)
  if env.eventbus then
    M.sub = env.eventbus.on("app:ping", function(who)
      return env.pluginName .. " pong " .. who
    end)
  end
end

function M.onPluginUnload(env)
  unloaded = (unloaded or 0) + 1
end

return M
`

func newLuaManager(t *testing.T, dir string, opts ...plugin.Option) *plugin.Manager {
	t.Helper()
	loader := plugin.RoutingLoader{
		Modules: plugin.NewModuleLoader(),
		Paths:   NewLoader(WithPaths(dir)),
	}
	return plugin.NewManager(append([]plugin.Option{plugin.WithLoader(loader)}, opts...)...)
}

func TestPluginMethods(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, filepath.Join(dir, "counter.lua"), counterModule)

	p, err := Open(context.Background(), script, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, []string{"add", "test"}, p.Methods().Names())
	assert.Equal(t, script, p.Path())
	assert.Nil(t, p.Manifest())
}

func TestPluginInvokeSync(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "counter.lua"), counterModule)
	ctx := context.Background()

	m := newLuaManager(t, dir)
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "a", Target: "./counter.lua"}))
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "b", Target: "counter.lua"}))

	entry, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, plugin.TypePath, entry.Type())

	res, err := m.InvokeSync(ctx, nil, "add", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{6, 6}, res)
}

func TestPluginInvokeSyncEvent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "counter.lua"), counterModule)
	ctx := context.Background()

	m := newLuaManager(t, dir)
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{
		Name:    "A",
		Target:  "counter.lua",
		Options: map[string]any{"greeting": "hej"},
	}))
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "B", Target: "counter.lua"}))

	shared := map[string]any{}
	payload, err := m.InvokeSyncEvent(ctx, plugin.EventRequest{
		Method:        "test",
		CopyProps:     map[string]any{"count": 0},
		PassthruProps: map[string]any{"shared": shared},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, payload["count"])
	assert.Equal(t, "B", payload["last"])
	assert.Equal(t, 2, payload[plugin.InvocationCountKey])
	assert.Equal(t, []string{"A", "B"}, payload[plugin.InvokedPluginsKey])
	assert.NotContains(t, payload, "greeting", "B has no greeting option")

	_, err = m.InvokeSyncEvent(ctx, plugin.EventRequest{Method: "test", Target: []string{"A"}})
	require.NoError(t, err)
}

func TestPluginManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "greeter", "init.lua"), counterModule)
	writeFile(t, filepath.Join(dir, "greeter", ManifestFile), `{"name": "greeter", "options": {"greeting": "hello"}}`)
	ctx := context.Background()

	m := newLuaManager(t, dir)
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "g", Target: "./greeter"}))

	out, err := m.DispatchEvent(ctx, "test", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["greeting"])
}

func TestPluginScopedSubscriptions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "counter.lua"), counterModule)
	ctx := context.Background()

	bus := event.NewBus()
	m := newLuaManager(t, dir)
	require.NoError(t, m.SetEventbus(ctx, bus, ""))
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "a", Target: "counter.lua"}))
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "b", Target: "counter.lua"}))

	results, err := bus.Request(ctx, "app:ping", "me")
	require.NoError(t, err)
	assert.Equal(t, []any{"a pong me", "b pong me"}, results)

	require.True(t, m.Remove(ctx, "a"))
	assert.Equal(t, 1, bus.CountByTopic("app:ping"))

	results, err = bus.Request(ctx, "app:ping", "me")
	require.NoError(t, err)
	assert.Equal(t, []any{"b pong me"}, results)
}

func TestPluginEventbusFromLua(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "caller.lua"), `
local M = {}
local bus

function M.onPluginLoad(env)
  bus = env.eventbus
end

function M.names()
  local res = bus.request("plugins:get:names")
  return res[1]
end

function M.listen()
  local id = bus.once("app:tick", function(n) return n * 2 end)
  local first = bus.request("app:tick", 21)
  local ok, err = pcall(bus.request, "app:tick", 1)
  return {first = first[1], again = ok, removed = bus.off(id)}
end

return M
`)
	ctx := context.Background()

	bus := event.NewBus()
	m := newLuaManager(t, dir)
	require.NoError(t, m.SetEventbus(ctx, bus, ""))
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "caller", Target: "caller.lua"}))

	res, err := m.InvokeSync(ctx, nil, "names")
	require.NoError(t, err)
	assert.Equal(t, []any{"caller"}, res)

	res, err = m.InvokeSync(ctx, nil, "listen")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"first": 42, "again": false, "removed": false}, res)
}

func TestPluginErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "failing.lua"), `
return {
  fail = function() error("plugin failure") end,
}
`)
	ctx := context.Background()

	m := newLuaManager(t, dir)
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "f", Target: "failing.lua"}))

	_, err := m.InvokeSync(ctx, nil, "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin failure")

	var ierr *plugin.InvocationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "f", ierr.Plugin)

	err = m.Register(ctx, plugin.RegisterConfig{Name: "missing", Target: "./missing.lua"})
	assert.ErrorIs(t, err, plugin.ErrLoad)
	assert.ErrorIs(t, err, ErrScriptNotFound)
}

func TestPluginClosedOnRemove(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "counter.lua"), counterModule)
	ctx := context.Background()

	m := newLuaManager(t, dir)
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "a", Target: "counter.lua"}))
	entry, _ := m.Get("a")
	p := entry.Instance().(*Plugin)

	require.NoError(t, m.Reload(ctx, "a"))
	assert.True(t, p.state.IsClosed())

	reloaded, _ := m.Get("a")
	fresh := reloaded.Instance().(*Plugin)
	assert.False(t, fresh.state.IsClosed())

	m.Remove(ctx, "a")
	assert.True(t, fresh.state.IsClosed())
}

func TestPluginForgetsRevokedSubscriptions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "counter.lua"), counterModule)
	ctx := context.Background()

	buses := []*event.LocalBus{event.NewBus(), event.NewBus()}
	m := newLuaManager(t, dir)
	require.NoError(t, m.SetEventbus(ctx, buses[0], ""))
	require.NoError(t, m.Register(ctx, plugin.RegisterConfig{Name: "a", Target: "counter.lua"}))
	entry, _ := m.Get("a")
	p := entry.Instance().(*Plugin)

	for i := range 5 {
		require.NoError(t, m.SetEventbus(ctx, buses[(i+1)%2], ""))
	}

	require.Len(t, p.subs, 1)
	for _, sub := range p.subs {
		assert.True(t, sub.IsActive())
	}
	assert.Equal(t, 1, buses[1].CountByTopic("app:ping"))
	assert.Equal(t, 0, buses[0].CountByTopic("app:ping"))
}
