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

// Package status implements the aggregator that rolls child health up into
// parent status.
//
// Aggregation is a pure function of the observed child set: ready counts and
// the Available condition are recomputed from scratch on every firing, never
// incremented. Writes are debounced per parent so bursts of child updates
// coalesce into a single status write instead of thrashing the parent's
// resource version.
package status

import (
	"context"
	"log/slog"
	"time"

	"kondense/pkg/api"
	"kondense/pkg/events"
	"kondense/pkg/store"
)

const (
	// DefaultDebounceWindow is the coalescing window for parent status
	// writes.
	DefaultDebounceWindow = 100 * time.Millisecond

	// WatchBuffer is the aggregator's subscription queue size.
	WatchBuffer = 256
)

// Aggregation is the rolled-up health of a child set.
type Aggregation struct {
	Ready int
	Total int
}

// Aggregate computes child health counts. Pure; never mutates children.
func Aggregate(children []*api.Object) Aggregation {
	var agg Aggregation
	for _, child := range children {
		if child.Terminating() {
			continue
		}
		agg.Total++
		if child.Status.Ready {
			agg.Ready++
		}
	}
	return agg
}

// Aggregator watches Unit events and maintains ReadyCount, DesiredCount and
// the Available condition on owning Workloads.
type Aggregator struct {
	store     *store.Store
	bus       *events.Bus
	logger    *slog.Logger
	debouncer *debouncer
}

// New creates an aggregator. window <= 0 uses DefaultDebounceWindow.
func New(st *store.Store, bus *events.Bus, logger *slog.Logger, window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	a := &Aggregator{
		store:  st,
		bus:    bus,
		logger: logger.With("component", "status-aggregator"),
	}
	a.debouncer = newDebouncer(window, a.writeParentStatus)
	return a
}

// Start consumes unit events until ctx is cancelled, relisting after watch
// drops.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("status aggregator starting")
	for {
		snapshot, sub := a.store.ListAndWatch(api.KindUnit, "", nil, WatchBuffer)
		for _, unit := range snapshot {
			a.trigger(unit)
		}

		closed := false
		for !closed {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					closed = true
					break
				}
				a.trigger(ev.Object)
			case <-ctx.Done():
				a.store.Bus().Unsubscribe(sub)
				a.debouncer.Stop()
				a.logger.Info("status aggregator stopped", "reason", ctx.Err())
				return nil
			}
		}

		if err := sub.Err(); err != nil {
			a.bus.Publish(events.NewWatchDropped(sub.ID(), "status-aggregator"))
			a.logger.Warn("watch dropped, relisting", "error", err)
			continue
		}
		return nil
	}
}

// trigger schedules a debounced status write for the unit's owning parent.
func (a *Aggregator) trigger(unit *api.Object) {
	ref := unit.ControllerRef()
	if ref == nil {
		return
	}
	a.debouncer.Trigger(api.ObjectKey{Kind: ref.Kind, Namespace: unit.Namespace, Name: ref.Name})
}

// writeParentStatus recomputes and writes one parent's aggregated status.
func (a *Aggregator) writeParentStatus(parentKey api.ObjectKey) {
	parent, err := a.store.GetKey(parentKey)
	if err != nil {
		// Parent deleted between trigger and fire.
		return
	}

	var children []*api.Object
	for child := range a.store.List(api.KindUnit, parentKey.Namespace, nil) {
		if child.OwnedBy(parentKey.Kind, parentKey.Name) {
			children = append(children, child)
		}
	}
	agg := Aggregate(children)

	desired := agg.Total
	if spec, ok := parent.Spec.(api.WorkloadSpec); ok {
		desired = spec.Replicas
	}

	condition := api.Condition{
		Type:   api.ConditionAvailable,
		Status: api.ConditionFalse,
		Reason: api.ReasonChildrenNotReady,
	}
	if agg.Ready >= desired {
		condition.Status = api.ConditionTrue
		condition.Reason = api.ReasonChildrenReady
	}

	if _, err := a.store.MutateStatus(parentKey, func(status *api.Status) {
		status.ReadyCount = agg.Ready
		status.DesiredCount = desired
		status.Conditions, _ = api.SetCondition(status.Conditions, condition)
	}); err != nil && !store.IsNotFound(err) {
		a.logger.Warn("failed to write aggregated status",
			"key", parentKey.String(), "error", err)
	}
}
