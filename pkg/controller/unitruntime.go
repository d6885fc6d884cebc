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

package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kondense/pkg/api"
	"kondense/pkg/store"
	"kondense/pkg/watch"
)

// UnitRuntime simulates the execution substrate for units. A real deployment
// would delegate to an agent on the target; here a bound unit becomes ready
// after a fixed startup delay, which is enough to drive the readiness paths
// of the reconciler and the status aggregator.
type UnitRuntime struct {
	store        *store.Store
	logger       *slog.Logger
	startupDelay time.Duration
	watchBuffer  int

	mu      sync.Mutex
	pending map[api.ObjectKey]*time.Timer
	stopped bool
}

// NewUnitRuntime creates a unit runtime marking bound units ready after
// startupDelay.
func NewUnitRuntime(st *store.Store, logger *slog.Logger, startupDelay time.Duration, watchBuffer int) *UnitRuntime {
	return &UnitRuntime{
		store:        st,
		logger:       logger.With("component", "unit-runtime"),
		startupDelay: startupDelay,
		watchBuffer:  watchBuffer,
		pending:      make(map[api.ObjectKey]*time.Timer),
	}
}

// Start watches units and drives their readiness until ctx is cancelled.
func (r *UnitRuntime) Start(ctx context.Context) error {
	defer r.stop()

	for {
		initial, sub := r.store.ListAndWatch(api.KindUnit, "", nil, r.watchBuffer)
		for _, obj := range initial {
			r.observe(obj)
		}

		if err := r.consume(ctx, sub.Events()); err != nil {
			r.store.Bus().Unsubscribe(sub)
			return nil //nolint:nilerr // context cancellation is a clean shutdown
		}

		// Watch queue overflowed; resubscribe and rebuild from a fresh list.
		r.logger.Warn("unit watch dropped, relisting", "error", sub.Err())
	}
}

func (r *UnitRuntime) consume(ctx context.Context, ch <-chan watch.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if event.Type == watch.Deleted {
				r.cancel(event.Object.Key())
				continue
			}
			r.observe(event.Object)
		}
	}
}

func (r *UnitRuntime) observe(obj *api.Object) {
	if obj.Terminating() || obj.Status.Ready {
		r.cancel(obj.Key())
		return
	}
	spec, ok := obj.Spec.(api.UnitSpec)
	if !ok || spec.TargetName == "" {
		return
	}
	r.schedule(obj.Key())
}

// schedule arms the startup timer for key if one is not already pending.
func (r *UnitRuntime) schedule(key api.ObjectKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if _, exists := r.pending[key]; exists {
		return
	}
	r.pending[key] = time.AfterFunc(r.startupDelay, func() {
		r.markReady(key)
	})
}

func (r *UnitRuntime) cancel(key api.ObjectKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, exists := r.pending[key]; exists {
		timer.Stop()
		delete(r.pending, key)
	}
}

func (r *UnitRuntime) markReady(key api.ObjectKey) {
	r.mu.Lock()
	delete(r.pending, key)
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return
	}

	_, err := r.store.MutateStatus(key, func(status *api.Status) {
		status.Ready = true
	})
	if err != nil {
		if store.IsNotFound(err) {
			return
		}
		r.logger.Error("failed to mark unit ready", "key", key, "error", err)
		return
	}
	r.logger.Debug("unit became ready", "key", key)
}

func (r *UnitRuntime) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for key, timer := range r.pending {
		timer.Stop()
		delete(r.pending, key)
	}
}
