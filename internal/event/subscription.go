package event

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/plughost/internal/event/topic"
)

// Subscription represents a handler bound to a topic pattern.
// It doubles as the token used to unsubscribe.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Topic returns the subscribed topic pattern.
	Topic() topic.Topic

	// Owner returns the value passed with WithOwner, or nil.
	Owner() any

	// IsActive returns true until the subscription is cancelled.
	IsActive() bool

	// Cancel stops delivery to this subscription. It does not remove the
	// subscription from its bus; use Bus.Unsubscribe for that.
	Cancel()
}

// SubscriptionConfig contains configuration for a subscription.
type SubscriptionConfig struct {
	// Priority determines execution order (lower values execute first).
	Priority Priority

	// Owner is an opaque value identifying who subscribed.
	Owner any

	// Once cancels the subscription after its first successful delivery.
	Once bool
}

// DefaultSubscriptionConfig returns a default subscription configuration.
func DefaultSubscriptionConfig() SubscriptionConfig {
	return SubscriptionConfig{Priority: PriorityNormal}
}

// SubscriptionOption is a function that configures a subscription.
type SubscriptionOption func(*SubscriptionConfig)

// WithPriority sets the subscription priority.
func WithPriority(p Priority) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Priority = p
	}
}

// WithOwner attaches an opaque owner value to the subscription.
func WithOwner(owner any) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Owner = owner
	}
}

// WithOnce sets the subscription to auto-cancel after the first event.
func WithOnce() SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Once = true
	}
}

type subscription struct {
	id      string
	seq     uint64
	topic   topic.Topic
	handler Handler
	config  SubscriptionConfig
	active  atomic.Bool
}

func newSubscription(seq uint64, t topic.Topic, h Handler, opts ...SubscriptionOption) *subscription {
	config := DefaultSubscriptionConfig()
	for _, opt := range opts {
		opt(&config)
	}

	s := &subscription{
		id:      uuid.NewString(),
		seq:     seq,
		topic:   t,
		handler: h,
		config:  config,
	}
	s.active.Store(true)
	return s
}

func (s *subscription) ID() string         { return s.id }
func (s *subscription) Topic() topic.Topic { return s.topic }
func (s *subscription) Owner() any         { return s.config.Owner }
func (s *subscription) IsActive() bool     { return s.active.Load() }
func (s *subscription) Cancel()            { s.active.Store(false) }
