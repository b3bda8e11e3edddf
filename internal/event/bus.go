package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dshills/plughost/internal/event/topic"
)

// LocalBus is the in-process Bus implementation.
//
// Handlers run synchronously in the publisher's goroutine, in priority then
// subscription order. Subscribing and unsubscribing are safe to call
// concurrently and from inside a handler.
type LocalBus struct {
	registry *Registry
	config   busConfig

	seq atomic.Uint64

	requests         atomic.Uint64
	emits            atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64
}

var _ Bus = (*LocalBus)(nil)

// NewBus creates a new in-process bus with the given options.
func NewBus(opts ...BusOption) *LocalBus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &LocalBus{
		registry: NewRegistry(),
		config:   config,
	}
}

// Subscribe creates a new subscription for the given topic pattern.
func (b *LocalBus) Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if !pattern.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}

	sub := newSubscription(b.seq.Add(1), pattern, handler, opts...)
	b.registry.Add(sub)
	return sub, nil
}

// Unsubscribe cancels and removes a subscription.
func (b *LocalBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return ErrInvalidSubscription
	}

	sub.Cancel()
	if !b.registry.Remove(sub.ID()) {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Request invokes every matching handler and collects their non-nil results
// in order. It returns ErrNoHandlers when nothing is subscribed to t.
func (b *LocalBus) Request(ctx context.Context, t topic.Topic, args ...any) ([]any, error) {
	if !t.IsValid() || t.IsWildcard() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}

	subs := b.registry.MatchActive(t)
	if len(subs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHandlers, t)
	}
	b.requests.Add(1)

	var results []any
	for _, sub := range subs {
		if !sub.IsActive() {
			continue
		}
		res, err := b.deliver(ctx, sub, t, args)
		if err != nil {
			return nil, err
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, nil
}

// Emit invokes every matching handler and discards their results.
// Failures go to the configured ErrorHandler.
func (b *LocalBus) Emit(ctx context.Context, t topic.Topic, args ...any) error {
	if !t.IsValid() || t.IsWildcard() {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}

	subs := b.registry.MatchActive(t)
	if len(subs) == 0 {
		return nil
	}
	b.emits.Add(1)

	for _, sub := range subs {
		if !sub.IsActive() {
			continue
		}
		if _, err := b.deliver(ctx, sub, t, args); err != nil && b.config.errorHandler != nil {
			b.config.errorHandler(t, err)
		}
	}
	return nil
}

// deliver runs one handler with panic recovery and once-handling.
func (b *LocalBus) deliver(ctx context.Context, sub *subscription, t topic.Topic, args []any) (res any, err error) {
	b.handlersExecuted.Add(1)

	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			res = nil
			err = &PanicError{SubscriptionID: sub.ID(), Topic: t, Value: r}
		}
	}()

	res, err = sub.handler(ctx, args...)
	if err != nil {
		b.handlerErrors.Add(1)
		return nil, &HandlerError{SubscriptionID: sub.ID(), Topic: t, Err: err}
	}

	if sub.config.Once {
		sub.Cancel()
		b.registry.Remove(sub.ID())
	}
	return res, nil
}

// Count returns the number of subscriptions on the bus.
func (b *LocalBus) Count() int {
	return b.registry.Count()
}

// CountByTopic returns the number of subscriptions for an exact pattern.
func (b *LocalBus) CountByTopic(pattern topic.Topic) int {
	return b.registry.CountByTopic(pattern)
}

// Topics returns every subscribed pattern, sorted.
func (b *LocalBus) Topics() []topic.Topic {
	return b.registry.Topics()
}

// Stats returns current bus statistics.
func (b *LocalBus) Stats() Stats {
	return Stats{
		Requests:          b.requests.Load(),
		Emits:             b.emits.Load(),
		HandlersExecuted:  b.handlersExecuted.Load(),
		HandlerErrors:     b.handlerErrors.Load(),
		HandlerPanics:     b.handlerPanics.Load(),
		ActiveSubscribers: b.registry.CountActive(),
	}
}
