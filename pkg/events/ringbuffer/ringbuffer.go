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

// Package ringbuffer provides a thread-safe fixed-capacity circular buffer.
//
// The event recorder uses it to keep a bounded history of recent
// observability events for debugging without unbounded memory growth.
package ringbuffer

import "sync"

// RingBuffer holds the most recent items of type T up to a fixed capacity;
// older items are overwritten once the buffer is full.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // next write position
	count int
}

// New creates a buffer holding at most capacity items. capacity must be
// positive.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Append inserts an item, overwriting the oldest one when full.
func (rb *RingBuffer[T]) Append(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % len(rb.items)
	if rb.count < len(rb.items) {
		rb.count++
	}
}

// Recent returns up to n items, newest last. n larger than the current count
// returns everything.
func (rb *RingBuffer[T]) Recent(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := rb.head - n
	if start < 0 {
		start += len(rb.items)
	}
	for i := range n {
		out[i] = rb.items[(start+i)%len(rb.items)]
	}
	return out
}

// Len returns the number of items currently stored.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Cap returns the fixed capacity.
func (rb *RingBuffer[T]) Cap() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.items)
}
