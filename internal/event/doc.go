// Package event provides the shared message bus used by the plugin runtime.
//
// The bus is a synchronous publish/subscribe hub keyed by colon-separated
// topics (see package topic). It offers the four operations the plugin
// manager depends on:
//
//   - Subscribe: bind a Handler to a topic pattern
//   - Unsubscribe: remove a previously returned Subscription
//   - Request: invoke every matching handler and collect the results
//   - Emit: invoke every matching handler and discard the results
//
// # Scopes
//
// A Scope wraps a Bus and remembers each subscription made through it.
// The plugin manager hands every plugin its own Scope; when the plugin is
// removed, or the manager moves to a different bus, Scope.RevokeAll drops
// exactly that plugin's subscriptions.
//
//	bus := event.NewBus()
//	scope := event.NewScope(bus)
//	scope.Subscribe("app:saved", func(ctx context.Context, args ...any) (any, error) {
//	    return nil, nil
//	})
//	scope.RevokeAll() // bus.Count() == 0
//
// # Ordering
//
// Handlers run in the publisher's goroutine ordered by Priority, then by
// subscription order. A handler may subscribe or unsubscribe while a
// publish is in flight; a subscription cancelled mid-publish is skipped.
package event
