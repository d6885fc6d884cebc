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

// Package api defines the core object model shared by all kondense components.
//
// Every piece of cluster state is an Object: a (kind, namespace, name) identity
// carrying a user-owned spec and a controller-owned status. Objects are
// versioned with a per-object monotonic resource version used for optimistic
// concurrency, and may declare owner references for cascade deletion and
// finalizers to block purging until cleanup hooks complete.
package api

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Built-in kinds understood by the reconciliation kernel.
//
// The store and watch bus are kind-agnostic; only the registered reconcilers
// attach meaning to these.
const (
	// KindWorkload is a replicated parent object (spec: WorkloadSpec).
	KindWorkload = "Workload"

	// KindUnit is a single schedulable instance owned by a Workload
	// (spec: UnitSpec).
	KindUnit = "Unit"

	// KindTarget is a placement target for Units, e.g. a machine or a zone
	// slice (spec: TargetSpec). Targets are cluster-scoped: their namespace
	// is empty.
	KindTarget = "Target"
)

// OrphanLabel, when present on an object with value "true", excludes it from
// cascade deletion when its owners are removed.
const OrphanLabel = "kondense/orphan-on-delete"

// ObjectKey uniquely identifies an object in the store.
type ObjectKey struct {
	Kind      string
	Namespace string
	Name      string
}

// String returns the key in "Kind/namespace/name" form.
func (k ObjectKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Namespace, k.Name)
}

// OwnerRef identifies an object whose deletion cascades to this one.
//
// Owners are referenced by kind and name within the same namespace.
type OwnerRef struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name"`

	// Controller marks the managing owner. At most one owner reference per
	// object may have Controller set; the reconciler engine enforces this
	// single-controller invariant when adopting children.
	Controller bool `yaml:"controller,omitempty"`
}

// Phase describes where an object is in its reconciliation lifecycle.
type Phase string

const (
	// PhasePending means the spec changed and has not been reconciled yet.
	PhasePending Phase = "Pending"

	// PhaseReconciling means a diff was computed and intents are in flight.
	PhaseReconciling Phase = "Reconciling"

	// PhaseSettled means observed children match the desired set. This is
	// the only phase in which the engine is idle for the object.
	PhaseSettled Phase = "Settled"
)

// Status is the controller-owned half of an object.
//
// Status is written only through Store.PutStatus, never by the intent
// submitter; the reconciler engine and the status aggregator are its only
// writers.
type Status struct {
	// Phase is maintained by the reconciler engine for parent objects.
	Phase Phase

	// ObservedVersion is the spec generation the engine last acted on.
	// ObservedVersion < Generation means a reconcile is due.
	ObservedVersion uint64

	// Ready indicates the object itself is healthy. Meaningful for leaf
	// objects (Units); set by the unit runtime.
	Ready bool

	// ReadyCount and DesiredCount are aggregated child health for parent
	// objects, maintained by the status aggregator.
	ReadyCount   int
	DesiredCount int

	// Conditions carry terminal or noteworthy states (Unschedulable,
	// RetryBudgetExhausted, Available, ...).
	Conditions []Condition
}

// Object is the unit of state managed by the kernel.
//
// The spec payload is one of the per-kind spec structs (WorkloadSpec,
// UnitSpec, TargetSpec). Spec payloads are treated as immutable once
// submitted: mutating a spec requires submitting a fresh payload through
// Store.Put, never editing one in place.
type Object struct {
	Kind      string
	Namespace string
	Name      string

	// UID is assigned by the store on create and never reused. A delete
	// followed by a create of the same key yields a distinct UID.
	UID string

	// ResourceVersion is a per-object counter, strictly increasing across
	// every committed mutation. Zero means "not yet stored".
	ResourceVersion uint64

	// Generation counts spec and metadata commits only; status writes leave
	// it unchanged. Reconcilers record the generation they acted on, so a
	// status write never looks like new desired state.
	Generation uint64

	Labels map[string]string

	// OwnerReferences lists the objects whose deletion cascades to this
	// one. An object is garbage-collected once all owners are gone, unless
	// labelled with OrphanLabel.
	OwnerReferences []OwnerRef

	// Finalizers block purging. A deleted object with finalizers enters the
	// terminating state (DeletionTimestamp set) and is removed only when
	// the last finalizer is cleared.
	Finalizers []string

	// DeletionTimestamp is non-nil while the object is terminating.
	DeletionTimestamp *time.Time

	Spec   any
	Status Status
}

// Key returns the object's store key.
func (o *Object) Key() ObjectKey {
	return ObjectKey{Kind: o.Kind, Namespace: o.Namespace, Name: o.Name}
}

// Terminating reports whether the object has been deleted but is held by
// finalizers.
func (o *Object) Terminating() bool {
	return o.DeletionTimestamp != nil
}

// Orphaned reports whether the object opted out of cascade deletion.
func (o *Object) Orphaned() bool {
	return o.Labels[OrphanLabel] == "true"
}

// ControllerRef returns the owner reference marked as controller, or nil.
func (o *Object) ControllerRef() *OwnerRef {
	for i := range o.OwnerReferences {
		if o.OwnerReferences[i].Controller {
			return &o.OwnerReferences[i]
		}
	}
	return nil
}

// OwnedBy reports whether ref appears among the object's owner references,
// ignoring the Controller flag.
func (o *Object) OwnedBy(kind, name string) bool {
	for _, ref := range o.OwnerReferences {
		if ref.Kind == kind && ref.Name == name {
			return true
		}
	}
	return false
}

// DeepCopy returns a copy sharing no mutable bookkeeping state with the
// original. The spec payload is shared: payloads are immutable by contract.
func (o *Object) DeepCopy() *Object {
	if o == nil {
		return nil
	}
	out := *o
	out.Labels = maps.Clone(o.Labels)
	out.OwnerReferences = slices.Clone(o.OwnerReferences)
	out.Finalizers = slices.Clone(o.Finalizers)
	out.Status.Conditions = slices.Clone(o.Status.Conditions)
	if o.DeletionTimestamp != nil {
		ts := *o.DeletionTimestamp
		out.DeletionTimestamp = &ts
	}
	return &out
}
