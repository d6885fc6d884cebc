// Copyright 2026 The kondense authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch provides the fan-out notification bus between the object
// store and its consumers.
//
// The store publishes one event per committed mutation; subscribers receive
// the events matching their (kind, namespace, selector) scope over a bounded
// channel. Events for the same object arrive in commit order; no ordering is
// guaranteed across distinct objects. Delivery is at-least-once overall: a
// subscriber that falls behind is disconnected with WatchClosedError and must
// re-list current state before watching again (relist-then-watch).
package watch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/labels"

	"kondense/pkg/api"
)

// EventType classifies a watch event.
type EventType string

const (
	Added    EventType = "Added"
	Modified EventType = "Modified"
	Deleted  EventType = "Deleted"
)

// Event is one committed store mutation.
//
// Object is a snapshot taken at commit time; for Deleted events it is the
// final state the object had before removal.
type Event struct {
	Type   EventType
	Object *api.Object
}

// WatchClosedError reports that a subscription was force-closed because its
// queue overflowed. The consumer must relist and resubscribe.
//
// Disconnecting slow subscribers is a deliberate backpressure policy: bounded
// memory is preferred over unbounded buffering.
type WatchClosedError struct {
	SubscriptionID string
	QueueSize      int
}

func (e *WatchClosedError) Error() string {
	return fmt.Sprintf("watch %s closed: subscriber exceeded queue of %d events", e.SubscriptionID, e.QueueSize)
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	id       string
	kind     string // "" matches all kinds
	ns       string // "" matches all namespaces
	selector labels.Selector
	ch       chan Event

	mu     sync.Mutex
	closed bool
	err    error
}

// ID returns the unique subscription identifier, useful in logs.
func (s *Subscription) ID() string { return s.id }

// Events returns the receive channel. The channel is closed when the
// subscription ends; check Err afterwards to distinguish a consumer Close
// from an overflow disconnect.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Err returns the terminal error, if any. A *WatchClosedError means the
// subscriber lagged and must relist.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// matches reports whether the subscription wants events for obj.
func (s *Subscription) matches(obj *api.Object) bool {
	if s.kind != "" && s.kind != obj.Kind {
		return false
	}
	if s.ns != "" && s.ns != obj.Namespace {
		return false
	}
	return s.selector.Matches(labels.Set(obj.Labels))
}

// close terminates the subscription with err (nil for consumer-initiated).
func (s *Subscription) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

// Bus fans out store events to subscribers.
//
// Thread-safe. Publish never blocks: a subscriber whose channel is full is
// disconnected rather than buffered indefinitely.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a consumer for events in the given scope.
//
// kind and namespace may be empty to match everything; selector nil means
// labels.Everything(). buffer bounds the subscriber queue; once full the
// subscription is closed with WatchClosedError.
func (b *Bus) Subscribe(kind, namespace string, selector labels.Selector, buffer int) *Subscription {
	if selector == nil {
		selector = labels.Everything()
	}
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{
		id:       uuid.NewString(),
		kind:     kind,
		ns:       namespace,
		selector: selector,
		ch:       make(chan Event, buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe ends a subscription from the consumer side. The event channel
// is closed with a nil Err.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	sub.close(nil)
}

// Publish delivers an event to every matching subscriber.
//
// The store calls Publish while still holding its commit lock, so events
// arrive at each subscriber in global commit order; in particular, events for
// a single object are delivered in resource-version order. Subscribers that
// cannot keep up are disconnected with WatchClosedError.
//
// Returns the number of subscribers that received the event.
func (b *Bus) Publish(event Event) int {
	b.mu.RLock()
	var overflowed []*Subscription
	sent := 0
	for _, sub := range b.subs {
		if !sub.matches(event.Object) {
			continue
		}
		select {
		case sub.ch <- event:
			sent++
		default:
			overflowed = append(overflowed, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range overflowed {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()
		sub.close(&WatchClosedError{SubscriptionID: sub.id, QueueSize: cap(sub.ch)})
	}
	return sent
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
