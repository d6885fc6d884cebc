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

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"kondense/pkg/api"
	"kondense/pkg/store"
)

// ApplyError reports a failed create/update/delete intent. The engine
// retries it with backoff and escalates to the parent's status conditions
// once the retry budget is exhausted.
type ApplyError struct {
	Op  string // "create", "update", "delete"
	Key api.ObjectKey
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ExpandFunc maps a parent spec to its desired child set. It must be pure
// and deterministic: same spec in, same ordered slots out.
type ExpandFunc func(parent *api.Object) ([]ChildSpec, error)

// EqualFunc decides whether an observed child already carries a desired
// spec. Implementations should ignore fields owned by other controllers
// (e.g. a unit's target binding).
type EqualFunc func(desired ChildSpec, observed *api.Object) bool

// StrategyFunc extracts the update strategy from a parent spec.
type StrategyFunc func(parent *api.Object) api.UpdateStrategy

// ParentReconciler is the generic diff-and-apply handler: it expands a
// parent's spec into desired children, diffs against the observed children
// it owns, and issues intents to converge.
type ParentReconciler struct {
	store      *store.Store
	parentKind string
	childKind  string
	expand     ExpandFunc
	equal      EqualFunc
	strategy   StrategyFunc
	logger     *slog.Logger
}

// NewParentReconciler wires a diff-based handler for parentKind objects
// owning childKind children.
func NewParentReconciler(st *store.Store, logger *slog.Logger, parentKind, childKind string, expand ExpandFunc, equal EqualFunc, strategy StrategyFunc) *ParentReconciler {
	return &ParentReconciler{
		store:      st,
		parentKind: parentKind,
		childKind:  childKind,
		expand:     expand,
		equal:      equal,
		strategy:   strategy,
		logger:     logger.With("component", "reconciler", "kind", parentKind),
	}
}

// Kind implements Handler.
func (r *ParentReconciler) Kind() string { return r.parentKind }

// OwnerWatch returns the child-kind watch that wakes the owning parent on
// any child event.
func (r *ParentReconciler) OwnerWatch() Watch {
	parentKind := r.parentKind
	return Watch{
		Kind: r.childKind,
		MapToKeys: func(obj *api.Object) []api.ObjectKey {
			ref := obj.ControllerRef()
			if ref == nil || ref.Kind != parentKind {
				return nil
			}
			return []api.ObjectKey{{Kind: parentKind, Namespace: obj.Namespace, Name: ref.Name}}
		},
	}
}

// Handle implements Handler.
//
// A pass that applies intents leaves the parent in PhaseReconciling and
// relies on the resulting watch events for the next wake-up; a pass with an
// empty diff and all children ready settles the parent. A cancelled context
// aborts the pass cleanly: the event that caused the cancellation has
// already requeued the key.
func (r *ParentReconciler) Handle(ctx context.Context, key api.ObjectKey) (Result, error) {
	parent, err := r.store.GetKey(key)
	if err != nil {
		if store.IsNotFound(err) {
			// Deleted; cascade cleanup is the garbage collector's job.
			return Result{}, nil
		}
		return Result{}, err
	}
	if parent.Terminating() {
		return Result{}, nil
	}

	desired, err := r.expand(parent)
	if err != nil {
		return Result{}, fmt.Errorf("expanding %s: %w", key, err)
	}

	var observed []*api.Object
	for child := range r.store.List(r.childKind, key.Namespace, nil) {
		if child.OwnedBy(r.parentKind, key.Name) {
			observed = append(observed, child)
		}
	}

	diff := computeDiff(desired, observed, r.equal)
	strategy := r.strategy(parent)

	var result Result
	var applyErr error
	switch strategy.Order {
	case api.OrderRecreate:
		result, applyErr = r.applyRecreate(ctx, parent, diff)
	default:
		result, applyErr = r.applySurge(ctx, parent, diff, strategy, observed, len(desired))
	}
	if applyErr != nil {
		return result, applyErr
	}

	r.updatePhase(key, parent, diff, observed, len(desired), result)
	return result, nil
}

// applySurge creates replacements before deleting what they replace,
// bounded by maxSurge and maxUnavailable so observed capacity never dips.
func (r *ParentReconciler) applySurge(ctx context.Context, parent *api.Object, diff Diff, strategy api.UpdateStrategy, observed []*api.Object, desiredCount int) (Result, error) {
	var result Result

	total, ready := countChildren(observed)

	for _, update := range diff.ToUpdate {
		if ctx.Err() != nil {
			return result, nil
		}
		if err := r.updateChild(parent, update); err != nil {
			return result, err
		}
		result.Updates++
	}

	createBudget := desiredCount + strategy.MaxSurge - total
	for _, want := range diff.ToCreate {
		if createBudget <= 0 {
			break
		}
		if ctx.Err() != nil {
			return result, nil
		}
		if err := r.createChild(parent, want); err != nil {
			return result, err
		}
		result.Creates++
		createBudget--
	}

	// Unready children are deleted freely; deleting a ready child consumes
	// the unavailability budget.
	deleteBudget := ready - (desiredCount - strategy.MaxUnavailable)
	for _, child := range diff.ToDelete {
		if ctx.Err() != nil {
			return result, nil
		}
		if child.Status.Ready {
			if deleteBudget <= 0 {
				continue
			}
			deleteBudget--
		}
		if err := r.deleteChild(child); err != nil {
			return result, err
		}
		result.Deletes++
	}

	return result, nil
}

// applyRecreate deletes outdated children before creating replacements, so
// two children never coexist at one identity slot.
func (r *ParentReconciler) applyRecreate(ctx context.Context, parent *api.Object, diff Diff) (Result, error) {
	var result Result

	for _, child := range diff.ToDelete {
		if ctx.Err() != nil {
			return result, nil
		}
		if err := r.deleteChild(child); err != nil {
			return result, err
		}
		result.Deletes++
	}
	for _, update := range diff.ToUpdate {
		if ctx.Err() != nil {
			return result, nil
		}
		if err := r.updateChild(parent, update); err != nil {
			return result, err
		}
		result.Updates++
	}
	for _, want := range diff.ToCreate {
		if ctx.Err() != nil {
			return result, nil
		}
		if err := r.createChild(parent, want); err != nil {
			return result, err
		}
		result.Creates++
	}

	return result, nil
}

func (r *ParentReconciler) createChild(parent *api.Object, want ChildSpec) error {
	child := &api.Object{
		Kind:      r.childKind,
		Namespace: parent.Namespace,
		Name:      want.Slot,
		Labels:    want.Labels,
		OwnerReferences: []api.OwnerRef{
			{Kind: r.parentKind, Name: parent.Name, Controller: true},
		},
		Spec: want.Spec,
	}
	key := child.Key()
	if _, err := r.store.Put(child, 0); err != nil {
		return &ApplyError{Op: "create", Key: key, Err: err}
	}
	return nil
}

func (r *ParentReconciler) updateChild(parent *api.Object, update ChildUpdate) error {
	key := update.Existing.Key()

	// Single-owner invariant: never rewrite a child controlled by someone
	// else.
	if ref := update.Existing.ControllerRef(); ref == nil || ref.Kind != r.parentKind || ref.Name != parent.Name {
		return &ApplyError{Op: "update", Key: key, Err: fmt.Errorf("child is not controlled by %s/%s", r.parentKind, parent.Name)}
	}

	next := update.Existing.DeepCopy()
	next.Labels = update.Desired.Labels
	next.Spec = update.Desired.Spec
	if _, err := r.store.Put(next, update.Existing.ResourceVersion); err != nil {
		return &ApplyError{Op: "update", Key: key, Err: err}
	}
	return nil
}

func (r *ParentReconciler) deleteChild(child *api.Object) error {
	if err := r.store.DeleteKey(child.Key(), child.ResourceVersion); err != nil {
		return &ApplyError{Op: "delete", Key: child.Key(), Err: err}
	}
	return nil
}

// updatePhase records the lifecycle phase and observed spec version on the
// parent's status.
func (r *ParentReconciler) updatePhase(key api.ObjectKey, parent *api.Object, diff Diff, observed []*api.Object, desiredCount int, result Result) {
	_, ready := countChildren(observed)
	settled := diff.Empty() && !result.Changed() && ready >= desiredCount

	if _, err := r.store.MutateStatus(key, func(status *api.Status) {
		status.ObservedVersion = parent.Generation
		if settled {
			status.Phase = api.PhaseSettled
			status.Conditions, _ = api.SetCondition(status.Conditions, api.Condition{
				Type:   api.ConditionProgressing,
				Status: api.ConditionTrue,
				Reason: api.ReasonChildrenReady,
			})
		} else {
			status.Phase = api.PhaseReconciling
		}
	}); err != nil && !store.IsNotFound(err) {
		r.logger.Warn("failed to update phase", "key", key.String(), "error", err)
	}
}

// countChildren returns (total, ready) among non-terminating children.
func countChildren(observed []*api.Object) (int, int) {
	total, ready := 0, 0
	for _, child := range observed {
		if child.Terminating() {
			continue
		}
		total++
		if child.Status.Ready {
			ready++
		}
	}
	return total, ready
}
