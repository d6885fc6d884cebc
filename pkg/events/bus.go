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

// Package events provides the internal pub/sub bus used for component
// observability.
//
// This bus is distinct from the watch bus: watch events carry object state
// and drive reconciliation, while these events describe what the kernel is
// doing (reconcile lifecycle, scheduling failures, store conflicts) and feed
// logging and metrics. Delivery here is best-effort; a dropped observability
// event never affects convergence.
package events

import (
	"sync"
	"time"
)

// Event is the base interface for all observability events.
type Event interface {
	// EventType returns a dot-notation identifier like "reconcile.settled".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Bus is a thread-safe fan-out bus with bounded per-subscriber channels.
//
// Events published before Start are buffered and replayed on Start, so
// components may publish during wiring without losing events to subscribers
// registered later in the startup sequence.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event

	startMu  sync.Mutex
	started  bool
	preStart []Event
}

// NewBus creates a bus buffering up to capacity pre-start events.
func NewBus(capacity int) *Bus {
	return &Bus{preStart: make([]Event, 0, capacity)}
}

// Subscribe returns a channel receiving all subsequent events. The channel
// is never closed; stop reading to abandon it. Events are dropped for a
// subscriber whose buffer is full.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, buffer)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Before Start
// the event is buffered instead. Returns the number of subscribers reached
// (0 while buffering).
func (b *Bus) Publish(event Event) int {
	b.startMu.Lock()
	if !b.started {
		b.preStart = append(b.preStart, event)
		b.startMu.Unlock()
		return 0
	}
	b.startMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	sent := 0
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
			sent++
		default:
			// Subscriber lagging; observability events are droppable.
		}
	}
	return sent
}

// Start replays buffered events and switches the bus to direct delivery.
// Idempotent.
func (b *Bus) Start() {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return
	}
	b.started = true

	b.mu.RLock()
	subscribers := b.subscribers
	b.mu.RUnlock()

	for _, event := range b.preStart {
		for _, ch := range subscribers {
			select {
			case ch <- event:
			default:
			}
		}
	}
	b.preStart = nil
}
