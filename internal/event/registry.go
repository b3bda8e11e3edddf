package event

import (
	"sort"
	"sync"

	"github.com/dshills/plughost/internal/event/topic"
)

// Registry indexes subscriptions by topic pattern.
// It is thread-safe for concurrent access.
type Registry struct {
	mu      sync.RWMutex
	subs    map[topic.Topic][]*subscription
	byID    map[string]*subscription
	matcher *topic.Matcher
}

// NewRegistry creates a new subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:    make(map[topic.Topic][]*subscription),
		byID:    make(map[string]*subscription),
		matcher: topic.NewMatcher(),
	}
}

// Add adds a subscription under its topic pattern.
func (r *Registry) Add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pattern := sub.Topic()
	r.subs[pattern] = append(r.subs[pattern], sub)
	r.byID[sub.ID()] = sub
	r.matcher.Add(pattern)
}

// Remove removes a subscription by ID.
func (r *Registry) Remove(subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.byID[subID]
	if !exists {
		return false
	}

	pattern := sub.Topic()
	subs := r.subs[pattern]
	for i, s := range subs {
		if s.ID() == subID {
			r.subs[pattern] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}

	if len(r.subs[pattern]) == 0 {
		delete(r.subs, pattern)
		r.matcher.Remove(pattern)
	}

	delete(r.byID, subID)
	return true
}

// Get returns a subscription by ID.
func (r *Registry) Get(subID string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, exists := r.byID[subID]
	return sub, exists
}

// MatchActive returns the active subscriptions matching a concrete topic,
// ordered by priority and then by subscription order.
func (r *Registry) MatchActive(eventTopic topic.Topic) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*subscription
	for _, pattern := range r.matcher.Match(eventTopic) {
		for _, sub := range r.subs[pattern] {
			if sub.IsActive() {
				all = append(all, sub)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		pi, pj := all[i].config.Priority, all[j].config.Priority
		if pi != pj {
			return pi < pj
		}
		return all[i].seq < all[j].seq
	})
	return all
}

// Count returns the total number of subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// CountByTopic returns the number of subscriptions for a specific pattern.
func (r *Registry) CountByTopic(pattern topic.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[pattern])
}

// CountActive returns the number of active subscriptions.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, sub := range r.byID {
		if sub.IsActive() {
			count++
		}
	}
	return count
}

// Topics returns every pattern that has at least one subscription.
func (r *Registry) Topics() []topic.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]topic.Topic, 0, len(r.subs))
	for t := range r.subs {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

// Clear removes all subscriptions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[topic.Topic][]*subscription)
	r.byID = make(map[string]*subscription)
	r.matcher.Clear()
}
