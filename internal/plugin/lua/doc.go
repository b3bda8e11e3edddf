// Package lua loads plugins written in Lua.
//
// A Lua plugin is a script that returns a table of functions:
//
//	local M = {}
//
//	function M.add(a, b)
//	  return a + b
//	end
//
//	function M.onSave(env)
//	  env.payload.saved = true
//	end
//
//	function M.onPluginLoad(env)
//	  if env.eventbus then
//	    env.eventbus.on("app:ping", function() return "pong" end)
//	  end
//	end
//
//	return M
//
// Every function becomes a plugin method. onPluginLoad and onPluginUnload
// are lifecycle hooks rather than methods.
//
// # Loader
//
// Loader implements plugin.Loader for path targets. It tries the target as
// given and then under each search path:
//
//	loader := lua.NewLoader(lua.WithPaths("/etc/plughost/plugins"))
//	m := plugin.NewManager(plugin.WithLoader(plugin.RoutingLoader{Paths: loader}))
//	err := m.Register(ctx, plugin.RegisterConfig{Name: "saver", Target: "saver.lua"})
//
// A directory target runs init.lua, or the main script named in its
// plugin.json manifest. Manifest options are defaults beneath the options
// given at registration.
//
// # Bridge
//
// The Bridge converts between Go and Lua values. Integral numbers become
// int, tables become []any or map[string]any, and Go pointers travel
// through Lua as userdata. Envelope payloads go through a Tracker, which
// writes Lua changes back into the original Go maps in place.
//
// # Thread Safety
//
// Each Plugin owns one gopher-lua state, which is not goroutine-safe. Use a
// plugin, and bus topics it subscribed to, only from the goroutine that owns
// the plugin manager.
package lua
