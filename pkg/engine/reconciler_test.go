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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kondense/pkg/api"
	"kondense/pkg/core/logging"
	"kondense/pkg/store"
	"kondense/pkg/watch"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(watch.NewBus(), nil, logging.NewLogger("ERROR"))
}

func workloadObj(name string, spec api.WorkloadSpec) *api.Object {
	return &api.Object{
		Kind:      api.KindWorkload,
		Namespace: "default",
		Name:      name,
		Labels:    map[string]string{"app": name},
		Spec:      spec,
	}
}

func listUnits(t *testing.T, st *store.Store) []*api.Object {
	t.Helper()
	var units []*api.Object
	for u := range st.List(api.KindUnit, "default", nil) {
		units = append(units, u)
	}
	return units
}

func markReady(t *testing.T, st *store.Store, units ...*api.Object) {
	t.Helper()
	for _, u := range units {
		_, err := st.MutateStatus(u.Key(), func(status *api.Status) {
			status.Ready = true
		})
		require.NoError(t, err)
	}
}

func TestWorkloadReconciler_ExpandsReplicas(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	_, err := st.Put(workloadObj("web", api.WorkloadSpec{
		Replicas: 3,
		Template: api.UnitTemplate{Image: "web:v1"},
	}), 0)
	require.NoError(t, err)

	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}
	result, err := r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Creates)

	units := listUnits(t, st)
	require.Len(t, units, 3)
	for _, u := range units {
		ref := u.ControllerRef()
		require.NotNil(t, ref)
		assert.Equal(t, api.KindWorkload, ref.Kind)
		assert.Equal(t, "web", ref.Name)
		assert.Equal(t, "web", u.Labels[WorkloadLabel])
		assert.NotEmpty(t, u.Labels[TemplateHashLabel])
		assert.Equal(t, "web", u.Labels["app"], "parent labels propagate")
	}

	parent, err := st.GetKey(key)
	require.NoError(t, err)
	assert.Equal(t, api.PhaseReconciling, parent.Status.Phase)
	assert.Equal(t, uint64(1), parent.Status.ObservedVersion)
}

func TestWorkloadReconciler_SettlesWhenChildrenReady(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	_, err := st.Put(workloadObj("web", api.WorkloadSpec{
		Replicas: 2,
		Template: api.UnitTemplate{Image: "web:v1"},
	}), 0)
	require.NoError(t, err)
	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}

	_, err = r.Handle(context.Background(), key)
	require.NoError(t, err)

	// Converged but unready: still reconciling.
	result, err := r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, result.Changed(), "second pass must be idempotent")

	parent, err := st.GetKey(key)
	require.NoError(t, err)
	assert.Equal(t, api.PhaseReconciling, parent.Status.Phase)

	markReady(t, st, listUnits(t, st)...)

	_, err = r.Handle(context.Background(), key)
	require.NoError(t, err)

	parent, err = st.GetKey(key)
	require.NoError(t, err)
	assert.Equal(t, api.PhaseSettled, parent.Status.Phase)

	progressing := api.FindCondition(parent.Status.Conditions, api.ConditionProgressing)
	require.NotNil(t, progressing)
	assert.Equal(t, api.ConditionTrue, progressing.Status)
	assert.Equal(t, api.ReasonChildrenReady, progressing.Reason)
}

func TestWorkloadReconciler_ScaleDown(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	spec := api.WorkloadSpec{Replicas: 3, Template: api.UnitTemplate{Image: "web:v1"}}
	version, err := st.Put(workloadObj("web", spec), 0)
	require.NoError(t, err)
	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}

	_, err = r.Handle(context.Background(), key)
	require.NoError(t, err)

	spec.Replicas = 1
	_, err = st.Put(workloadObj("web", spec), version)
	require.NoError(t, err)

	result, err := r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deletes)
	assert.Len(t, listUnits(t, st), 1)
}

func TestWorkloadReconciler_RollingUpdateRespectsBudgets(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	spec := api.WorkloadSpec{
		Replicas: 2,
		Template: api.UnitTemplate{Image: "web:v1"},
		// Default strategy: surge with MaxSurge=1, MaxUnavailable=0.
	}
	version, err := st.Put(workloadObj("web", spec), 0)
	require.NoError(t, err)
	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}

	_, err = r.Handle(context.Background(), key)
	require.NoError(t, err)
	markReady(t, st, listUnits(t, st)...)
	oldHash := listUnits(t, st)[0].Labels[TemplateHashLabel]

	// Roll to a new template.
	spec.Template.Image = "web:v2"
	_, err = st.Put(workloadObj("web", spec), version)
	require.NoError(t, err)

	// Pass 1: one surge create, no ready unit deleted — capacity never dips.
	result, err := r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Creates)
	assert.Equal(t, 0, result.Deletes)
	assert.Len(t, listUnits(t, st), 3)

	// Pass 2: surge slot filled, replacement not ready yet — nothing moves.
	result, err = r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, result.Changed())

	// Replacement becomes ready: one old unit may go.
	for _, u := range listUnits(t, st) {
		if u.Labels[TemplateHashLabel] != oldHash {
			markReady(t, st, u)
		}
	}
	result, err = r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Creates, "surge slot still occupied")
	assert.Equal(t, 1, result.Deletes)

	// Drive to convergence.
	for range 5 {
		for _, u := range listUnits(t, st) {
			markReady(t, st, u)
		}
		result, err = r.Handle(context.Background(), key)
		require.NoError(t, err)
		if !result.Changed() {
			break
		}
	}

	units := listUnits(t, st)
	require.Len(t, units, 2)
	for _, u := range units {
		assert.NotEqual(t, oldHash, u.Labels[TemplateHashLabel])
		assert.Equal(t, "web:v2", u.Spec.(api.UnitSpec).Template.Image)
	}
}

func TestWorkloadReconciler_RecreateDeletesFirst(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	spec := api.WorkloadSpec{
		Replicas: 2,
		Template: api.UnitTemplate{Image: "web:v1"},
		Strategy: api.UpdateStrategy{Order: api.OrderRecreate},
	}
	version, err := st.Put(workloadObj("web", spec), 0)
	require.NoError(t, err)
	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}

	_, err = r.Handle(context.Background(), key)
	require.NoError(t, err)
	markReady(t, st, listUnits(t, st)...)

	spec.Template.Image = "web:v2"
	_, err = st.Put(workloadObj("web", spec), version)
	require.NoError(t, err)

	// One pass replaces everything: recreate has no availability budget.
	result, err := r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deletes)
	assert.Equal(t, 2, result.Creates)

	units := listUnits(t, st)
	require.Len(t, units, 2)
	for _, u := range units {
		assert.Equal(t, "web:v2", u.Spec.(api.UnitSpec).Template.Image)
	}
}

func TestWorkloadReconciler_PreservesTargetBinding(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	_, err := st.Put(workloadObj("web", api.WorkloadSpec{
		Replicas: 1,
		Template: api.UnitTemplate{Image: "web:v1"},
	}), 0)
	require.NoError(t, err)
	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}

	_, err = r.Handle(context.Background(), key)
	require.NoError(t, err)

	// Binder assigns a target.
	unit := listUnits(t, st)[0]
	_, err = st.Mutate(unit.Key(), func(obj *api.Object) error {
		spec := obj.Spec.(api.UnitSpec)
		spec.TargetName = "node-1"
		obj.Spec = spec
		return nil
	})
	require.NoError(t, err)

	// The reconciler must not see the binding as drift.
	result, err := r.Handle(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, result.Changed(), "target binding is not reconciler-owned drift")

	unit = listUnits(t, st)[0]
	assert.Equal(t, "node-1", unit.Spec.(api.UnitSpec).TargetName)
}

func TestWorkloadReconciler_RefusesForeignChildren(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	spec := api.WorkloadSpec{Replicas: 1, Template: api.UnitTemplate{Image: "web:v1"}}
	_, err := st.Put(workloadObj("web", spec), 0)
	require.NoError(t, err)
	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}

	// An object occupies the desired slot, referencing "web" as a plain
	// owner but controlled by another workload.
	slot := "web-" + spec.Template.Hash() + "-0"
	_, err = st.Put(&api.Object{
		Kind:      api.KindUnit,
		Namespace: "default",
		Name:      slot,
		OwnerReferences: []api.OwnerRef{
			{Kind: api.KindWorkload, Name: "other", Controller: true},
			{Kind: api.KindWorkload, Name: "web"},
		},
		Spec: api.UnitSpec{Template: api.UnitTemplate{Image: "squatter:v1"}},
	}, 0)
	require.NoError(t, err)

	_, err = r.Handle(context.Background(), key)
	require.Error(t, err)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "update", applyErr.Op)
	assert.Contains(t, err.Error(), "not controlled by")
}

func TestWorkloadReconciler_SkipsMissingAndTerminating(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	// Missing parent: the delete already happened, nothing to do.
	result, err := r.Handle(context.Background(), api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "gone"})
	require.NoError(t, err)
	assert.False(t, result.Changed())

	// Terminating parent: finalizer owner is in charge now.
	obj := workloadObj("web", api.WorkloadSpec{Replicas: 1, Template: api.UnitTemplate{Image: "web:v1"}})
	obj.Finalizers = []string{"hold"}
	version, err := st.Put(obj, 0)
	require.NoError(t, err)
	require.NoError(t, st.Delete(api.KindWorkload, "default", "web", version))

	result, err = r.Handle(context.Background(), obj.Key())
	require.NoError(t, err)
	assert.False(t, result.Changed())
	assert.Empty(t, listUnits(t, st))
}

func TestWorkloadReconciler_CancelledContextAbortsCleanly(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	_, err := st.Put(workloadObj("web", api.WorkloadSpec{
		Replicas: 5,
		Template: api.UnitTemplate{Image: "web:v1"},
	}), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.Handle(ctx, api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"})
	require.NoError(t, err, "cancellation is not a failure")
	assert.False(t, result.Changed())
	assert.Empty(t, listUnits(t, st), "no intents applied under a cancelled context")
}

func TestOwnerWatch_MapsChildToParent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewWorkloadReconciler(st, logging.NewLogger("ERROR"))

	w := r.OwnerWatch()
	assert.Equal(t, api.KindUnit, w.Kind)

	owned := &api.Object{
		Kind:            api.KindUnit,
		Namespace:       "default",
		Name:            "web-abc-0",
		OwnerReferences: []api.OwnerRef{{Kind: api.KindWorkload, Name: "web", Controller: true}},
	}
	keys := w.MapToKeys(owned)
	require.Len(t, keys, 1)
	assert.Equal(t, api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}, keys[0])

	orphan := &api.Object{Kind: api.KindUnit, Namespace: "default", Name: "stray"}
	assert.Empty(t, w.MapToKeys(orphan))
}
