// Package plugin provides an in-process plugin registry and dispatcher.
//
// A plugin is a named Capability: an object exposing an ordered set of
// callable methods. The Manager keeps plugins in registration order and
// dispatches calls to them by method name through three protocols:
//
//   - InvokeSync calls a method with positional arguments on every selected
//     plugin that exposes it and aggregates the results.
//   - InvokeAsync does the same and returns a single Future, awaiting any
//     results that are themselves Futures.
//   - InvokeSyncEvent threads one shared Envelope through every selected
//     plugin so each can read and mutate the payload left by the previous.
//
// # Quick Start
//
//	m := plugin.NewManager(plugin.WithLogger(logger))
//
//	greeter := plugin.NewMethodSet().
//		Add("greet", func(ctx context.Context, args ...any) (any, error) {
//			return fmt.Sprintf("hello %v", args[0]), nil
//		})
//
//	err := m.Register(ctx, plugin.RegisterConfig{Name: "greeter", Instance: greeter})
//	res, err := m.InvokeSync(ctx, nil, "greet", "world")
//
// # Targets
//
// Every dispatch takes a target: nil selects every registered plugin in
// registration order, a list selects those names in list order. Unknown and
// disabled plugins are skipped. ManagerConfig.ThrowOnInvalidTarget and
// ThrowOnInvalidMethod turn an empty match into NoTargetError or
// NoMethodError; by default an empty match is not an error.
//
// # Lifecycle
//
// A capability implementing Loadable or Unloadable, or exposing a method
// named onPluginLoad or onPluginUnload, is called when it is registered,
// removed, or moved to a different bus. Hook failures are logged and
// reported to Subscribe observers, never returned.
//
// # Event Bus
//
// SetEventbus binds the manager to an event.Bus. Each plugin then gets an
// event.Scope on that bus, available as Envelope.Eventbus; everything the
// plugin subscribes through it is revoked when the plugin is removed or
// the bus changes. The manager also exposes its operations as bus commands
// under a prefix ("plugins" by default), e.g. "plugins:invoke:sync".
//
// # Loaders
//
// Plugins registered by target rather than instance are resolved through a
// Loader. ModuleLoader maps module names to factories; the lua subpackage
// loads plugin scripts from paths. RoutingLoader picks one by target shape.
//
// # Thread Safety
//
// A Manager belongs to one goroutine and takes no locks, so plugin code may
// call back into it during a dispatch. Futures and the bus are safe for
// concurrent use.
package plugin
