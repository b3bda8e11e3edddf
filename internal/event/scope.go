package event

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/plughost/internal/event/topic"
)

// Scope is a revocable view over a Bus. It records every subscription made
// through it so that RevokeAll can remove exactly those subscriptions,
// leaving everyone else's untouched.
//
// A Scope is itself a Bus, so it can be handed to code that expects one.
// Once revoked it must not be reused; every call returns ErrScopeRevoked.
type Scope struct {
	bus Bus

	mu      sync.Mutex
	subs    map[string]Subscription
	order   []string
	revoked bool
}

var _ Bus = (*Scope)(nil)

// NewScope creates a scope over bus.
func NewScope(bus Bus) *Scope {
	return &Scope{
		bus:  bus,
		subs: make(map[string]Subscription),
	}
}

// Bus returns the underlying bus.
func (s *Scope) Bus() Bus {
	return s.bus
}

// Subscribe subscribes on the underlying bus and records the subscription.
func (s *Scope) Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revoked {
		return nil, ErrScopeRevoked
	}

	sub, err := s.bus.Subscribe(pattern, handler, opts...)
	if err != nil {
		return nil, err
	}
	s.subs[sub.ID()] = sub
	s.order = append(s.order, sub.ID())
	return sub, nil
}

// Unsubscribe removes a subscription made through this scope. Subscriptions
// made by anyone else are rejected with ErrSubscriptionNotFound.
func (s *Scope) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return ErrInvalidSubscription
	}

	s.mu.Lock()
	if s.revoked {
		s.mu.Unlock()
		return ErrScopeRevoked
	}
	if _, ok := s.subs[sub.ID()]; !ok {
		s.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	s.forget(sub.ID())
	s.mu.Unlock()

	return s.bus.Unsubscribe(sub)
}

// Request forwards to the underlying bus.
func (s *Scope) Request(ctx context.Context, t topic.Topic, args ...any) ([]any, error) {
	if s.Revoked() {
		return nil, ErrScopeRevoked
	}
	return s.bus.Request(ctx, t, args...)
}

// Emit forwards to the underlying bus.
func (s *Scope) Emit(ctx context.Context, t topic.Topic, args ...any) error {
	if s.Revoked() {
		return ErrScopeRevoked
	}
	return s.bus.Emit(ctx, t, args...)
}

// RevokeAll unsubscribes every recorded subscription from the underlying bus
// and marks the scope revoked. Subscriptions that already left the bus
// (for example WithOnce subscriptions that fired) are skipped silently.
// Calling RevokeAll twice is a no-op.
func (s *Scope) RevokeAll() error {
	s.mu.Lock()
	if s.revoked {
		s.mu.Unlock()
		return nil
	}
	s.revoked = true
	pending := make([]Subscription, 0, len(s.order))
	for _, id := range s.order {
		pending = append(pending, s.subs[id])
	}
	s.subs = make(map[string]Subscription)
	s.order = nil
	s.mu.Unlock()

	var errs []error
	for _, sub := range pending {
		if err := s.bus.Unsubscribe(sub); err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Revoked reports whether RevokeAll has been called.
func (s *Scope) Revoked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked
}

// Count returns the number of subscriptions currently recorded.
func (s *Scope) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// forget drops a record. Must be called with mu held.
func (s *Scope) forget(id string) {
	delete(s.subs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
