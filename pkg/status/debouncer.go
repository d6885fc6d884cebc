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

package status

import (
	"sync"
	"time"

	"kondense/pkg/api"
)

// debouncer coalesces bursts of triggers per object key into a single
// callback after a quiet window, so a storm of child updates costs the
// parent one status write instead of one per child event.
//
// Thread-safe.
type debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	callback func(api.ObjectKey)
	pending  map[api.ObjectKey]*time.Timer
	stopped  bool
}

func newDebouncer(window time.Duration, callback func(api.ObjectKey)) *debouncer {
	return &debouncer{
		window:   window,
		callback: callback,
		pending:  make(map[api.ObjectKey]*time.Timer),
	}
}

// Trigger schedules (or keeps) a pending callback for key. Repeated
// triggers within the window collapse into one firing.
func (d *debouncer) Trigger(key api.ObjectKey) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if _, waiting := d.pending[key]; waiting {
		return
	}
	d.pending[key] = time.AfterFunc(d.window, func() {
		d.fire(key)
	})
}

func (d *debouncer) fire(key api.ObjectKey) {
	d.mu.Lock()
	delete(d.pending, key)
	stopped := d.stopped
	d.mu.Unlock()

	if !stopped {
		d.callback(key)
	}
}

// Flush fires all pending callbacks immediately.
func (d *debouncer) Flush() {
	d.mu.Lock()
	keys := make([]api.ObjectKey, 0, len(d.pending))
	for key, timer := range d.pending {
		timer.Stop()
		keys = append(keys, key)
	}
	d.pending = make(map[api.ObjectKey]*time.Timer)
	d.mu.Unlock()

	for _, key := range keys {
		d.callback(key)
	}
}

// Stop cancels all pending callbacks and rejects new triggers.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, timer := range d.pending {
		timer.Stop()
		delete(d.pending, key)
	}
}
