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

// Package gc implements cascade deletion.
//
// The collector watches every kind. When an object is purged, all objects
// declaring it as an owner are deleted too, unless they opted out with the
// orphan label. Deletion respects finalizers: a child holding a finalizer
// stays terminating until the finalizer is cleared, and the cascade
// continues transitively from its eventual purge event.
package gc

import (
	"context"
	"log/slog"

	"kondense/pkg/api"
	"kondense/pkg/events"
	"kondense/pkg/store"
	"kondense/pkg/watch"
)

// WatchBuffer is the collector's subscription queue size.
const WatchBuffer = 256

// Collector cascades deletions through owner references.
type Collector struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

// New creates a collector.
func New(st *store.Store, bus *events.Bus, logger *slog.Logger) *Collector {
	return &Collector{
		store:  st,
		bus:    bus,
		logger: logger.With("component", "gc"),
	}
}

// Start watches all kinds until ctx is cancelled, relisting after watch
// drops. The relist rescans for orphans whose owners vanished while the
// watch was down.
func (c *Collector) Start(ctx context.Context) error {
	c.logger.Info("garbage collector starting")
	for {
		snapshot, sub := c.store.ListAndWatch("", "", nil, WatchBuffer)
		for _, obj := range snapshot {
			c.collectIfOrphaned(obj)
		}

		closed := false
		for !closed {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					closed = true
					break
				}
				if ev.Type == watch.Deleted {
					c.cascade(ev.Object)
				}
			case <-ctx.Done():
				c.store.Bus().Unsubscribe(sub)
				c.logger.Info("garbage collector stopped", "reason", ctx.Err())
				return nil
			}
		}

		if err := sub.Err(); err != nil {
			c.bus.Publish(events.NewWatchDropped(sub.ID(), "gc"))
			c.logger.Warn("watch dropped, relisting", "error", err)
			continue
		}
		return nil
	}
}

// cascade deletes all objects owned by the purged owner whose remaining
// owners are also gone.
func (c *Collector) cascade(owner *api.Object) {
	for obj := range c.store.List("", "", nil) {
		if !obj.OwnedBy(owner.Kind, owner.Name) || obj.Namespace != owner.Namespace {
			continue
		}
		c.collect(obj, owner.Key())
	}
}

// collectIfOrphaned deletes an object whose owners have all vanished. Used
// on relist to catch deletions missed while not watching.
func (c *Collector) collectIfOrphaned(obj *api.Object) {
	if len(obj.OwnerReferences) == 0 {
		return
	}
	for _, ref := range obj.OwnerReferences {
		if _, err := c.store.Get(ref.Kind, obj.Namespace, ref.Name); err == nil {
			return
		}
	}
	c.collect(obj, api.ObjectKey{})
}

// collect deletes obj if every owner is gone and it did not opt out.
func (c *Collector) collect(obj *api.Object, cause api.ObjectKey) {
	if obj.Orphaned() {
		c.logger.Debug("skipping orphaned object", "key", obj.Key().String())
		return
	}
	for _, ref := range obj.OwnerReferences {
		if _, err := c.store.Get(ref.Kind, obj.Namespace, ref.Name); err == nil {
			// A live owner remains; no cascade.
			return
		}
	}
	if err := c.store.DeleteKey(obj.Key(), 0); err != nil && !store.IsNotFound(err) {
		c.logger.Warn("cascade delete failed", "key", obj.Key().String(), "error", err)
		return
	}
	c.bus.Publish(events.NewGCDeleted(obj.Key(), cause))
}
