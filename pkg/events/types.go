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

package events

import (
	"time"

	"kondense/pkg/api"
)

// baseEvent carries the timestamp shared by all concrete event types.
type baseEvent struct {
	occurred time.Time
}

func (e baseEvent) Timestamp() time.Time { return e.occurred }

func newBase() baseEvent { return baseEvent{occurred: time.Now()} }

// ReconcileStartedEvent is published when a worker picks up a key.
type ReconcileStartedEvent struct {
	baseEvent
	Key api.ObjectKey
}

func NewReconcileStarted(key api.ObjectKey) *ReconcileStartedEvent {
	return &ReconcileStartedEvent{baseEvent: newBase(), Key: key}
}

func (e *ReconcileStartedEvent) EventType() string { return "reconcile.started" }

// ReconcileSettledEvent is published when a reconcile pass finishes with no
// remaining diff.
type ReconcileSettledEvent struct {
	baseEvent
	Key      api.ObjectKey
	Duration time.Duration
}

func NewReconcileSettled(key api.ObjectKey, d time.Duration) *ReconcileSettledEvent {
	return &ReconcileSettledEvent{baseEvent: newBase(), Key: key, Duration: d}
}

func (e *ReconcileSettledEvent) EventType() string { return "reconcile.settled" }

// ReconcileRequeuedEvent is published when a pass applied nothing but asked
// to run again on a timer, e.g. an unschedulable unit waiting for capacity.
// The object has not converged.
type ReconcileRequeuedEvent struct {
	baseEvent
	Key      api.ObjectKey
	After    time.Duration
	Duration time.Duration
}

func NewReconcileRequeued(key api.ObjectKey, after, d time.Duration) *ReconcileRequeuedEvent {
	return &ReconcileRequeuedEvent{baseEvent: newBase(), Key: key, After: after, Duration: d}
}

func (e *ReconcileRequeuedEvent) EventType() string { return "reconcile.requeued" }

// ReconcileProgressedEvent is published when a pass applied intents and the
// object is expected to converge on subsequent wake-ups.
type ReconcileProgressedEvent struct {
	baseEvent
	Key      api.ObjectKey
	Creates  int
	Updates  int
	Deletes  int
	Duration time.Duration
}

func NewReconcileProgressed(key api.ObjectKey, creates, updates, deletes int, d time.Duration) *ReconcileProgressedEvent {
	return &ReconcileProgressedEvent{
		baseEvent: newBase(),
		Key:       key,
		Creates:   creates,
		Updates:   updates,
		Deletes:   deletes,
		Duration:  d,
	}
}

func (e *ReconcileProgressedEvent) EventType() string { return "reconcile.progressed" }

// ReconcileFailedEvent is published when a reconcile pass returns an error
// and will be retried with backoff.
type ReconcileFailedEvent struct {
	baseEvent
	Key      api.ObjectKey
	Retries  int
	Reason   string
	Terminal bool // retry budget exhausted, surfaced to status instead of retried
}

func NewReconcileFailed(key api.ObjectKey, retries int, reason string, terminal bool) *ReconcileFailedEvent {
	return &ReconcileFailedEvent{baseEvent: newBase(), Key: key, Retries: retries, Reason: reason, Terminal: terminal}
}

func (e *ReconcileFailedEvent) EventType() string { return "reconcile.failed" }

// ScheduleFailedEvent is published when placement finds no feasible target.
type ScheduleFailedEvent struct {
	baseEvent
	Key    api.ObjectKey
	Reason string
}

func NewScheduleFailed(key api.ObjectKey, reason string) *ScheduleFailedEvent {
	return &ScheduleFailedEvent{baseEvent: newBase(), Key: key, Reason: reason}
}

func (e *ScheduleFailedEvent) EventType() string { return "schedule.failed" }

// ScheduleBoundEvent is published when a unit is bound to a target.
type ScheduleBoundEvent struct {
	baseEvent
	Key    api.ObjectKey
	Target string
}

func NewScheduleBound(key api.ObjectKey, target string) *ScheduleBoundEvent {
	return &ScheduleBoundEvent{baseEvent: newBase(), Key: key, Target: target}
}

func (e *ScheduleBoundEvent) EventType() string { return "schedule.bound" }

// StoreConflictEvent is published when an optimistic-concurrency write is
// rejected and will be retried by its caller.
type StoreConflictEvent struct {
	baseEvent
	Key api.ObjectKey
}

func NewStoreConflict(key api.ObjectKey) *StoreConflictEvent {
	return &StoreConflictEvent{baseEvent: newBase(), Key: key}
}

func (e *StoreConflictEvent) EventType() string { return "store.conflict" }

// WatchDroppedEvent is published when a watch subscription is disconnected
// for lagging.
type WatchDroppedEvent struct {
	baseEvent
	SubscriptionID string
	Consumer       string
}

func NewWatchDropped(subscriptionID, consumer string) *WatchDroppedEvent {
	return &WatchDroppedEvent{baseEvent: newBase(), SubscriptionID: subscriptionID, Consumer: consumer}
}

func (e *WatchDroppedEvent) EventType() string { return "watch.dropped" }

// GCDeletedEvent is published when the garbage collector cascades a delete.
type GCDeletedEvent struct {
	baseEvent
	Key   api.ObjectKey
	Owner api.ObjectKey
}

func NewGCDeleted(key, owner api.ObjectKey) *GCDeletedEvent {
	return &GCDeletedEvent{baseEvent: newBase(), Key: key, Owner: owner}
}

func (e *GCDeletedEvent) EventType() string { return "gc.deleted" }
