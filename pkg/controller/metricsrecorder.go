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

	"github.com/prometheus/client_golang/prometheus"

	"kondense/pkg/events"
	"kondense/pkg/metrics"
	"kondense/pkg/store"
)

// Metrics holds all controller Prometheus metrics.
//
// Create one instance per controller run against an instance-based
// registry (prometheus.NewRegistry()), never the default registry.
type Metrics struct {
	ReconcileDuration prometheus.Histogram
	ReconcileTotal    prometheus.Counter
	ReconcileErrors   prometheus.Counter

	ScheduleBound         prometheus.Counter
	ScheduleUnschedulable prometheus.Counter

	StoreConflicts prometheus.Counter
	StoreObjects   prometheus.GaugeFunc

	EngineQueueDepth prometheus.GaugeFunc

	WatchDrops prometheus.Counter
	GCDeletes  prometheus.Counter

	EventsObserved prometheus.Counter
}

// NewMetrics creates all controller metrics and registers them with registry.
// queueLen samples the engine's work queue depth on scrape.
func NewMetrics(registry prometheus.Registerer, st *store.Store, queueLen func() int) *Metrics {
	return &Metrics{
		ReconcileDuration: metrics.NewHistogramWithBuckets(
			registry,
			"kondense_reconcile_duration_seconds",
			"Time spent in reconcile passes",
			metrics.DurationBuckets(),
		),
		ReconcileTotal: metrics.NewCounter(
			registry,
			"kondense_reconcile_total",
			"Total number of completed reconcile passes",
		),
		ReconcileErrors: metrics.NewCounter(
			registry,
			"kondense_reconcile_errors_total",
			"Total number of failed reconcile passes",
		),
		ScheduleBound: metrics.NewCounter(
			registry,
			"kondense_schedule_bound_total",
			"Total number of units bound to a target",
		),
		ScheduleUnschedulable: metrics.NewCounter(
			registry,
			"kondense_schedule_unschedulable_total",
			"Total number of placement attempts that found no feasible target",
		),
		StoreConflicts: metrics.NewCounter(
			registry,
			"kondense_store_conflicts_total",
			"Total number of optimistic concurrency conflicts",
		),
		StoreObjects: metrics.NewGaugeFunc(
			registry,
			"kondense_store_objects",
			"Number of objects currently in the store",
			func() float64 { return float64(st.Len()) },
		),
		EngineQueueDepth: metrics.NewGaugeFunc(
			registry,
			"kondense_engine_queue_depth",
			"Number of keys waiting in the reconcile work queue",
			func() float64 { return float64(queueLen()) },
		),
		WatchDrops: metrics.NewCounter(
			registry,
			"kondense_watch_drops_total",
			"Total number of watch subscriptions closed due to queue overflow",
		),
		GCDeletes: metrics.NewCounter(
			registry,
			"kondense_gc_deletes_total",
			"Total number of objects removed by garbage collection",
		),
		EventsObserved: metrics.NewCounter(
			registry,
			"kondense_events_total",
			"Total number of controller events observed",
		),
	}
}

// MetricsRecorder bridges controller events to Prometheus metrics.
//
// Subscribe happens at construction time so the recorder sees events
// buffered before bus.Start().
type MetricsRecorder struct {
	metrics *Metrics
	ch      <-chan events.Event
}

// NewMetricsRecorder subscribes to bus and returns a recorder updating m.
func NewMetricsRecorder(m *Metrics, bus *events.Bus) *MetricsRecorder {
	return &MetricsRecorder{
		metrics: m,
		ch:      bus.Subscribe(200),
	}
}

// Start processes events until ctx is cancelled.
func (r *MetricsRecorder) Start(ctx context.Context) error {
	for {
		select {
		case event := <-r.ch:
			r.handle(event)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *MetricsRecorder) handle(event events.Event) {
	r.metrics.EventsObserved.Inc()

	switch e := event.(type) {
	case *events.ReconcileSettledEvent:
		r.metrics.ReconcileTotal.Inc()
		r.metrics.ReconcileDuration.Observe(e.Duration.Seconds())
	case *events.ReconcileProgressedEvent:
		r.metrics.ReconcileTotal.Inc()
		r.metrics.ReconcileDuration.Observe(e.Duration.Seconds())
	case *events.ReconcileRequeuedEvent:
		r.metrics.ReconcileTotal.Inc()
		r.metrics.ReconcileDuration.Observe(e.Duration.Seconds())
	case *events.ReconcileFailedEvent:
		r.metrics.ReconcileErrors.Inc()
	case *events.ScheduleBoundEvent:
		r.metrics.ScheduleBound.Inc()
	case *events.ScheduleFailedEvent:
		r.metrics.ScheduleUnschedulable.Inc()
	case *events.StoreConflictEvent:
		r.metrics.StoreConflicts.Inc()
	case *events.WatchDroppedEvent:
		r.metrics.WatchDrops.Inc()
	case *events.GCDeletedEvent:
		r.metrics.GCDeletes.Inc()
	}
}
