// Package events notifies readers that the cache state has moved on.
package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/models"
)

// Change is published after an action has been fully applied. Handlers
// read the new state through the dispatcher; the change only says which
// action produced it.
type Change struct {
	// Seq increases by one per applied action.
	Seq uint64

	// ActionType is the action that was applied.
	ActionType actions.Type

	// Narrows lists the narrow keys whose index or caught-up flags changed.
	Narrows []models.NarrowKey

	// Noop is set when the action left the state untouched.
	Noop bool

	At time.Time
}

// ChangeHandler is a callback function invoked when a change matches a subscription.
type ChangeHandler func(change *Change)

// Filter defines criteria for matching changes.
type Filter struct {
	// ActionTypes filters by action type (nil = all types).
	ActionTypes []actions.Type

	// Narrow filters to changes touching one narrow (empty = all).
	Narrow models.NarrowKey

	// IncludeNoop delivers changes that did not modify the state.
	IncludeNoop bool
}

// Matches returns true if the change matches the filter criteria.
func (f *Filter) Matches(change *Change) bool {
	if change == nil {
		return false
	}
	if change.Noop && !f.IncludeNoop {
		return false
	}
	if len(f.ActionTypes) > 0 && !slices.Contains(f.ActionTypes, change.ActionType) {
		return false
	}
	if f.Narrow != "" && !slices.Contains(change.Narrows, f.Narrow) {
		return false
	}
	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler ChangeHandler
}

// Publisher defines the interface for change publishing and subscription.
type Publisher interface {
	// Publish sends a change to all matching subscribers.
	Publish(ctx context.Context, change *Change)

	// Subscribe registers a handler to receive changes matching the filter.
	Subscribe(id string, filter Filter, handler ChangeHandler) error

	// Unsubscribe removes a subscription by ID.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryPublisher implements Publisher using in-process pub/sub.
type InMemoryPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
}

// NewInMemoryPublisher creates a new in-memory change publisher.
func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{
		subscriptions: make(map[string]*subscription),
	}
}

// Publish sends a change to all matching subscribers, synchronously and
// outside the lock.
func (p *InMemoryPublisher) Publish(ctx context.Context, change *Change) {
	if change == nil {
		return
	}

	p.mu.RLock()
	var handlers []ChangeHandler
	for _, sub := range p.subscriptions {
		if sub.filter.Matches(change) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	for _, handler := range handlers {
		if ctx.Err() != nil {
			return
		}
		handler(change)
	}
}

// Subscribe registers a handler to receive changes matching the filter.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler ChangeHandler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}

	p.subscriptions[id] = &subscription{
		id:      id,
		filter:  filter,
		handler: handler,
	}
	return nil
}

// Unsubscribe removes a subscription by ID.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(p.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Close removes all subscriptions.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = make(map[string]*subscription)
}

// Errors for publisher operations.
var (
	ErrInvalidSubscriptionID = &PublisherError{Message: "subscription ID is required"}
	ErrNilHandler            = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &PublisherError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
