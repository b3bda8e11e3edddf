package event

import (
	"context"

	"github.com/dshills/plughost/internal/event/topic"
)

// Priority determines handler execution order.
// Lower values execute first; equal priorities run in subscription order.
type Priority int

const (
	// PriorityCritical runs before everything else.
	PriorityCritical Priority = 0

	// PriorityHigh runs before plugin handlers.
	PriorityHigh Priority = 100

	// PriorityNormal is the default priority.
	PriorityNormal Priority = 200

	// PriorityLow is for observers that should see events last.
	PriorityLow Priority = 300
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch {
	case p <= PriorityCritical:
		return "critical"
	case p <= PriorityHigh:
		return "high"
	case p <= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Handler receives the arguments of a Request or Emit.
// The returned value is collected by Request and ignored by Emit;
// a nil value is never collected.
type Handler func(ctx context.Context, args ...any) (any, error)

// Bus is the shared publish/subscribe contract the plugin manager depends on.
type Bus interface {
	// Subscribe registers handler for every topic matching pattern.
	Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error)

	// Unsubscribe removes a subscription previously returned by Subscribe.
	Unsubscribe(sub Subscription) error

	// Request invokes every matching handler in order and collects their
	// non-nil results. The first handler error aborts the request.
	Request(ctx context.Context, t topic.Topic, args ...any) ([]any, error)

	// Emit invokes every matching handler and discards results.
	// Handler failures are reported to the bus error handler, not the caller.
	Emit(ctx context.Context, t topic.Topic, args ...any) error
}

// Stats contains bus statistics.
type Stats struct {
	// Requests is the number of Request calls that reached at least one handler.
	Requests uint64

	// Emits is the number of Emit calls that reached at least one handler.
	Emits uint64

	// HandlersExecuted is the total number of handler executions.
	HandlersExecuted uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// ActiveSubscribers is the current number of active subscriptions.
	ActiveSubscribers int
}

// ErrorHandler is called for handler failures during Emit.
type ErrorHandler func(t topic.Topic, err error)
