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

// Package controller wires the kondense components into a running system.
//
// The controller is event-driven:
//  1. Build the store and watch bus
//  2. Seed declared objects from the manifest
//  3. Create components and subscribe them to the event bus
//  4. Start everything under one errgroup and release buffered events
//  5. Run until the context is cancelled
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	coreconfig "kondense/pkg/core/config"
	"kondense/pkg/engine"
	"kondense/pkg/engine/gc"
	"kondense/pkg/events"
	"kondense/pkg/metrics"
	"kondense/pkg/scheduler"
	"kondense/pkg/status"
	"kondense/pkg/store"
	"kondense/pkg/watch"
)

const (
	// EventBusCapacity bounds events buffered before the bus is started.
	EventBusCapacity = 256

	// EventHistorySize bounds the recorder's retained event history.
	EventHistorySize = 500
)

// Run builds the controller from cfg, seeds the store from manifestPath,
// and runs all components until ctx is cancelled.
//
// Returns nil on graceful shutdown and an error if any component fails.
func Run(ctx context.Context, cfg *coreconfig.Config, manifestPath string, logger *slog.Logger) error {
	logger.Info("kondense controller starting",
		"workers", cfg.Engine.Workers,
		"manifest", manifestPath)

	manifest, err := LoadManifestFile(manifestPath)
	if err != nil {
		return err
	}
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	// Event bus with pre-start buffering so components can publish during
	// wiring without losing events to late subscribers.
	eventBus := events.NewBus(EventBusCapacity)
	recorder := events.NewRecorder(eventBus, logger, EventHistorySize)

	// Core state. The watch bus is fed by the store at commit time, which
	// is what gives subscribers per-object ordering.
	watchBus := watch.NewBus()
	st := store.New(watchBus, eventBus, logger)

	// Reconciler engine with the workload reconciler and the placement
	// binder. The binder shares the engine's queue and backoff machinery.
	eng := engine.New(st, eventBus, logger, engine.Config{
		Workers:     cfg.Engine.Workers,
		BaseDelay:   cfg.Engine.GetBaseDelay(),
		MaxDelay:    cfg.Engine.GetMaxDelay(),
		MaxRetries:  cfg.Engine.MaxRetries,
		WatchBuffer: cfg.Engine.WatchBuffer,
	})

	registry := prometheus.NewRegistry()
	controllerMetrics := NewMetrics(registry, st, eng.QueueLen)
	metricsRecorder := NewMetricsRecorder(controllerMetrics, eventBus)
	metricsServer := metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), registry, logger)

	workloads := engine.NewWorkloadReconciler(st, logger)
	eng.Register(workloads, workloads.OwnerWatch())

	binder := scheduler.NewBinder(st, eventBus, logger, cfg.Scheduler.GetUnschedulableRetry())
	eng.Register(binder, binder.TargetWatch())

	collector := gc.New(st, eventBus, logger)
	aggregator := status.New(st, eventBus, logger, cfg.Status.GetDebounceWindow())
	unitRuntime := NewUnitRuntime(st, logger, cfg.Runtime.GetStartupDelay(), cfg.Engine.WatchBuffer)

	// Seed before starting components. Watchers list after subscribing, so
	// seeded objects are delivered to every component at least once.
	if err := manifest.Seed(st, logger); err != nil {
		return err
	}

	// All subscriptions are in place; release buffered events.
	eventBus.Start()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return recorder.Start(gCtx)
	})
	g.Go(func() error {
		return metricsRecorder.Start(gCtx)
	})
	g.Go(func() error {
		return eng.Start(gCtx)
	})
	g.Go(func() error {
		return collector.Start(gCtx)
	})
	g.Go(func() error {
		return aggregator.Start(gCtx)
	})
	g.Go(func() error {
		return unitRuntime.Start(gCtx)
	})
	g.Go(func() error {
		return metricsServer.Start(gCtx)
	})

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("controller component failed: %w", err)
	}
	logger.Info("controller shut down", "reason", ctx.Err())
	return nil
}
