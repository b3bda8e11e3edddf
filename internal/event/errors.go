package event

import (
	"errors"
	"fmt"

	"github.com/dshills/plughost/internal/event/topic"
)

// Sentinel errors for the plugin bus.
var (
	// ErrInvalidTopic is returned when a topic is empty or malformed.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrInvalidSubscription is returned when a nil subscription is passed.
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrSubscriptionNotFound is returned when trying to unsubscribe a non-existent subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNoHandlers is returned by Request when no subscription matches the topic.
	ErrNoHandlers = errors.New("no handlers for topic")

	// ErrHandlerPanic is matched by PanicError.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrScopeRevoked is returned by every Scope operation after RevokeAll.
	ErrScopeRevoked = errors.New("event scope has been revoked")
)

// HandlerError wraps an error returned by a handler during Request.
type HandlerError struct {
	// SubscriptionID is the ID of the subscription whose handler failed.
	SubscriptionID string

	// Topic is the concrete topic that was published.
	Topic topic.Topic

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s: %v", e.SubscriptionID, e.Topic, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a recovered handler panic.
type PanicError struct {
	// SubscriptionID is the ID of the subscription whose handler panicked.
	SubscriptionID string

	// Topic is the concrete topic that was published.
	Topic topic.Topic

	// Value is the value passed to panic().
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s for %s panicked: %v", e.SubscriptionID, e.Topic, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
