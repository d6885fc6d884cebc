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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kondense/pkg/api"
	"kondense/pkg/core/logging"
	"kondense/pkg/events"
	"kondense/pkg/store"
	"kondense/pkg/watch"
)

func newTestMetrics(t *testing.T, queueLen func() int) (*Metrics, *store.Store) {
	t.Helper()
	st := store.New(watch.NewBus(), nil, logging.NewLogger("ERROR"))
	if queueLen == nil {
		queueLen = func() int { return 0 }
	}
	return NewMetrics(prometheus.NewRegistry(), st, queueLen), st
}

func TestNewMetrics_GaugesSampleLiveState(t *testing.T) {
	t.Parallel()

	depth := 0
	m, st := newTestMetrics(t, func() int { return depth })

	assert.Equal(t, 0.0, testutil.ToFloat64(m.StoreObjects))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineQueueDepth))

	_, err := st.Put(&api.Object{
		Kind:      api.KindWorkload,
		Namespace: "default",
		Name:      "web",
		Spec:      api.WorkloadSpec{Replicas: 1},
	}, 0)
	require.NoError(t, err)
	depth = 3

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreObjects))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EngineQueueDepth))
}

func TestMetricsRecorder_CountsEvents(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t, nil)
	r := NewMetricsRecorder(m, events.NewBus(16))

	key := api.ObjectKey{Kind: api.KindWorkload, Namespace: "default", Name: "web"}

	r.handle(events.NewReconcileSettled(key, time.Millisecond))
	r.handle(events.NewReconcileProgressed(key, 1, 0, 0, time.Millisecond))
	r.handle(events.NewReconcileRequeued(key, time.Second, time.Millisecond))
	r.handle(events.NewReconcileFailed(key, 1, "boom", false))
	r.handle(events.NewStoreConflict(key))
	r.handle(events.NewStoreConflict(key))
	r.handle(events.NewWatchDropped("sub-1", "engine/Workload"))
	r.handle(events.NewGCDeleted(key, key))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReconcileTotal), "settled, progressed and requeued passes all count")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WatchDrops))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GCDeletes))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.EventsObserved))
}
