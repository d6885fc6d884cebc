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

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kondense/pkg/api"
	"kondense/pkg/engine"
	"kondense/pkg/events"
	"kondense/pkg/store"
)

// DefaultUnschedulableRetry is how long the binder waits before re-trying an
// unschedulable unit absent any cluster-state change.
const DefaultUnschedulableRetry = 30 * time.Second

// Binder is the engine handler that assigns unbound Units to Targets.
//
// Unschedulable units are never a terminal failure: the binder surfaces the
// condition in unit status and retries both on a timer and whenever a Target
// changes (joins, relabels, taint removed) — the TargetWatch wakes every
// unbound unit on any target event.
type Binder struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
	retry  time.Duration
}

// NewBinder creates a binder. retry <= 0 uses DefaultUnschedulableRetry.
func NewBinder(st *store.Store, bus *events.Bus, logger *slog.Logger, retry time.Duration) *Binder {
	if retry <= 0 {
		retry = DefaultUnschedulableRetry
	}
	return &Binder{
		store:  st,
		bus:    bus,
		logger: logger.With("component", "binder"),
		retry:  retry,
	}
}

// Kind implements engine.Handler.
func (b *Binder) Kind() string { return api.KindUnit }

// TargetWatch wakes every unbound unit whenever any Target changes.
func (b *Binder) TargetWatch() engine.Watch {
	return engine.Watch{
		Kind: api.KindTarget,
		MapToKeys: func(*api.Object) []api.ObjectKey {
			var keys []api.ObjectKey
			for unit := range b.store.List(api.KindUnit, "", nil) {
				spec, ok := unit.Spec.(api.UnitSpec)
				if ok && spec.TargetName == "" && !unit.Terminating() {
					keys = append(keys, unit.Key())
				}
			}
			return keys
		},
	}
}

// Handle implements engine.Handler: one placement attempt for one unit.
func (b *Binder) Handle(ctx context.Context, key api.ObjectKey) (engine.Result, error) {
	unit, err := b.store.GetKey(key)
	if err != nil {
		if store.IsNotFound(err) {
			return engine.Result{}, nil
		}
		return engine.Result{}, err
	}
	if unit.Terminating() {
		return engine.Result{}, nil
	}
	spec, ok := unit.Spec.(api.UnitSpec)
	if !ok {
		return engine.Result{}, nil
	}
	if spec.TargetName != "" {
		return engine.Result{}, nil
	}
	if ctx.Err() != nil {
		return engine.Result{}, nil
	}

	var targets []*api.Object
	for target := range b.store.List(api.KindTarget, "", nil) {
		targets = append(targets, target)
	}
	siblings := b.siblings(unit)

	targetName, err := Schedule(unit, targets, siblings)
	if err != nil {
		var unschedulable *UnschedulableError
		if errors.As(err, &unschedulable) {
			return b.markUnschedulable(key, unschedulable)
		}
		return engine.Result{}, err
	}

	// Bind: write the assignment into the unit spec, then record the
	// outcome on status.
	if _, err := b.store.Mutate(key, func(obj *api.Object) error {
		s, ok := obj.Spec.(api.UnitSpec)
		if !ok || s.TargetName != "" {
			return nil
		}
		s.TargetName = targetName
		obj.Spec = s
		return nil
	}); err != nil {
		return engine.Result{}, err
	}

	if _, err := b.store.MutateStatus(key, func(status *api.Status) {
		status.Conditions, _ = api.SetCondition(status.Conditions, api.Condition{
			Type:    api.ConditionScheduled,
			Status:  api.ConditionTrue,
			Reason:  api.ReasonBound,
			Message: "bound to target " + targetName,
		})
	}); err != nil && !store.IsNotFound(err) {
		return engine.Result{}, err
	}

	b.bus.Publish(events.NewScheduleBound(key, targetName))
	return engine.Result{Updates: 1}, nil
}

// markUnschedulable surfaces the placement failure in status and asks for a
// timed retry. The error itself is swallowed: unschedulable is a waiting
// state, not a failure that should consume retry budget.
func (b *Binder) markUnschedulable(key api.ObjectKey, cause *UnschedulableError) (engine.Result, error) {
	if _, err := b.store.MutateStatus(key, func(status *api.Status) {
		status.Conditions, _ = api.SetCondition(status.Conditions, api.Condition{
			Type:    api.ConditionScheduled,
			Status:  api.ConditionFalse,
			Reason:  api.ReasonUnschedulable,
			Message: cause.Error(),
		})
	}); err != nil && !store.IsNotFound(err) {
		return engine.Result{}, err
	}

	b.bus.Publish(events.NewScheduleFailed(key, cause.Error()))
	return engine.Result{RequeueAfter: b.retry}, nil
}

// siblings returns the other units controlled by the same workload.
func (b *Binder) siblings(unit *api.Object) []*api.Object {
	ref := unit.ControllerRef()
	if ref == nil {
		return nil
	}
	var siblings []*api.Object
	for other := range b.store.List(api.KindUnit, unit.Namespace, nil) {
		if other.Name == unit.Name {
			continue
		}
		if other.OwnedBy(ref.Kind, ref.Name) && !other.Terminating() {
			siblings = append(siblings, other)
		}
	}
	return siblings
}
