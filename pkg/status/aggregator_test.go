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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kondense/pkg/api"
	"kondense/pkg/core/logging"
	"kondense/pkg/events"
	"kondense/pkg/store"
	"kondense/pkg/watch"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ready := &api.Object{Kind: api.KindUnit, Name: "u-0", Status: api.Status{Ready: true}}
	notReady := &api.Object{Kind: api.KindUnit, Name: "u-1"}
	terminating := &api.Object{
		Kind:              api.KindUnit,
		Name:              "u-2",
		DeletionTimestamp: &now,
		Status:            api.Status{Ready: true},
	}

	agg := Aggregate([]*api.Object{ready, notReady, terminating})
	assert.Equal(t, 2, agg.Total, "terminating children are excluded")
	assert.Equal(t, 1, agg.Ready)

	assert.Equal(t, Aggregation{}, Aggregate(nil))
}

func startAggregator(t *testing.T, window time.Duration) *store.Store {
	t.Helper()

	bus := events.NewBus(64)
	bus.Start()
	st := store.New(watch.NewBus(), bus, logging.NewLogger("ERROR"))
	agg := New(st, bus, logging.NewLogger("ERROR"), window)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agg.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("aggregator did not stop")
		}
	})
	return st
}

func putParent(t *testing.T, st *store.Store, name string, replicas int) api.ObjectKey {
	t.Helper()
	obj := &api.Object{
		Kind:      api.KindWorkload,
		Namespace: "default",
		Name:      name,
		Spec:      api.WorkloadSpec{Replicas: replicas},
	}
	_, err := st.Put(obj, 0)
	require.NoError(t, err)
	return obj.Key()
}

func putChild(t *testing.T, st *store.Store, parent, name string, ready bool) api.ObjectKey {
	t.Helper()
	obj := &api.Object{
		Kind:      api.KindUnit,
		Namespace: "default",
		Name:      name,
		OwnerReferences: []api.OwnerRef{
			{Kind: api.KindWorkload, Name: parent, Controller: true},
		},
		Spec: api.UnitSpec{},
	}
	_, err := st.Put(obj, 0)
	require.NoError(t, err)
	if ready {
		_, err = st.MutateStatus(obj.Key(), func(status *api.Status) {
			status.Ready = true
		})
		require.NoError(t, err)
	}
	return obj.Key()
}

func available(st *store.Store, key api.ObjectKey) func() bool {
	return func() bool {
		parent, err := st.GetKey(key)
		if err != nil {
			return false
		}
		cond := api.FindCondition(parent.Status.Conditions, api.ConditionAvailable)
		return cond != nil && cond.Status == api.ConditionTrue
	}
}

func TestAggregator_RollsUpChildReadiness(t *testing.T) {
	t.Parallel()
	st := startAggregator(t, 10*time.Millisecond)

	parent := putParent(t, st, "web", 2)
	putChild(t, st, "web", "web-0", true)
	putChild(t, st, "web", "web-1", false)

	// One of two ready: Available must be False with accurate counts.
	require.Eventually(t, func() bool {
		got, err := st.GetKey(parent)
		return err == nil && got.Status.ReadyCount == 1 && got.Status.DesiredCount == 2
	}, 2*time.Second, 10*time.Millisecond)

	got, err := st.GetKey(parent)
	require.NoError(t, err)
	cond := api.FindCondition(got.Status.Conditions, api.ConditionAvailable)
	require.NotNil(t, cond)
	assert.Equal(t, api.ConditionFalse, cond.Status)
	assert.Equal(t, api.ReasonChildrenNotReady, cond.Reason)

	// Second child becomes ready: Available flips to True.
	child1 := api.ObjectKey{Kind: api.KindUnit, Namespace: "default", Name: "web-1"}
	_, err = st.MutateStatus(child1, func(status *api.Status) {
		status.Ready = true
	})
	require.NoError(t, err)

	require.Eventually(t, available(st, parent), 2*time.Second, 10*time.Millisecond)
	got, err = st.GetKey(parent)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Status.ReadyCount)
}

func TestAggregator_IgnoresUnownedUnits(t *testing.T) {
	t.Parallel()
	st := startAggregator(t, 10*time.Millisecond)

	parent := putParent(t, st, "web", 0)

	// A unit without a controller reference triggers no aggregation.
	stray := &api.Object{
		Kind:      api.KindUnit,
		Namespace: "default",
		Name:      "stray-0",
		Spec:      api.UnitSpec{},
	}
	_, err := st.Put(stray, 0)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	got, err := st.GetKey(parent)
	require.NoError(t, err)
	assert.Nil(t, api.FindCondition(got.Status.Conditions, api.ConditionAvailable))
}

func TestAggregator_CountsOnlyOwnChildren(t *testing.T) {
	t.Parallel()
	st := startAggregator(t, 10*time.Millisecond)

	web := putParent(t, st, "web", 1)
	putParent(t, st, "api", 1)
	putChild(t, st, "web", "web-0", true)
	putChild(t, st, "api", "api-0", false)

	require.Eventually(t, available(st, web), 2*time.Second, 10*time.Millisecond)

	got, err := st.GetKey(web)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Status.ReadyCount, "api's child must not leak into web's counts")
}

func TestAggregator_DebouncesBursts(t *testing.T) {
	t.Parallel()
	st := startAggregator(t, 50*time.Millisecond)

	parent := putParent(t, st, "web", 3)
	for _, name := range []string{"web-0", "web-1", "web-2"} {
		putChild(t, st, "web", name, true)
	}

	require.Eventually(t, available(st, parent), 2*time.Second, 10*time.Millisecond)

	// Three child creations inside one window coalesce into few writes;
	// the final state reflects all of them regardless.
	got, err := st.GetKey(parent)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Status.ReadyCount)
	assert.Equal(t, 3, got.Status.DesiredCount)
}
