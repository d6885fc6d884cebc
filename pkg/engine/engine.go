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

// Package engine implements the level-triggered reconciliation engine.
//
// The engine owns a single rate-limited work queue of object keys fed by
// watch subscriptions. A bounded worker pool drains the queue and dispatches
// each key to the handler registered for its kind. The queue deduplicates
// keys and never processes the same key concurrently, so handlers get
// at-most-one reconciliation in flight per object identity while distinct
// objects reconcile in parallel.
//
// Reconciliation is level-triggered: a handler always reads current desired
// and observed state from the store and never replays event history. When a
// new event arrives for a key whose reconciliation is still in flight, the
// in-flight context is cancelled — only the latest state matters.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/util/workqueue"

	"kondense/pkg/api"
	"kondense/pkg/events"
	"kondense/pkg/store"
)

// Result reports what a handler did in one reconciliation pass.
type Result struct {
	// Creates, Updates and Deletes count the intents applied.
	Creates int
	Updates int
	Deletes int

	// RequeueAfter schedules another pass even without new events, e.g. for
	// unschedulable units retried on a timer.
	RequeueAfter time.Duration
}

// Changed reports whether the pass applied any intents.
func (r Result) Changed() bool {
	return r.Creates > 0 || r.Updates > 0 || r.Deletes > 0
}

// Handler reconciles objects of one kind.
//
// Handle must be idempotent: reconciling an already-converged object applies
// no intents. It must issue intents through the store and return rather than
// block waiting for external completion; future watch events resume the work.
type Handler interface {
	// Kind returns the object kind this handler owns.
	Kind() string

	// Handle drives the object toward its desired state. ctx is cancelled
	// when newer state for the same key arrives or the engine shuts down.
	Handle(ctx context.Context, key api.ObjectKey) (Result, error)
}

// Watch routes events of a kind to handler keys.
type Watch struct {
	// Kind of objects to watch. Empty watches every kind.
	Kind string

	// MapToKeys derives the handler keys to wake for an event. Nil maps an
	// object to its own key (identity), which only makes sense when the
	// watched kind equals the handler kind.
	MapToKeys func(obj *api.Object) []api.ObjectKey
}

// Config tunes the engine.
type Config struct {
	// Workers is the size of the worker pool. Defaults to 4.
	Workers int

	// BaseDelay and MaxDelay bound the per-key exponential failure backoff.
	// Defaults: 1s and 5m.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxRetries is the retry budget per key. Once exhausted, the failure
	// is surfaced to the object's status conditions instead of retried.
	// Defaults to 12.
	MaxRetries int

	// WatchBuffer is the per-subscription event queue size. Defaults to 256.
	WatchBuffer int
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 12
	}
	if c.WatchBuffer <= 0 {
		c.WatchBuffer = 256
	}
}

// registration pairs a handler with one of its watches.
type registration struct {
	handler Handler
	watch   Watch
}

// Engine runs registered handlers against the store.
type Engine struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
	cfg    Config

	queue         workqueue.TypedRateLimitingInterface[api.ObjectKey]
	handlers      map[string]Handler
	registrations []registration

	mu       sync.Mutex
	inflight map[api.ObjectKey]context.CancelFunc
}

// New creates an engine. Handlers must be registered before Start.
func New(st *store.Store, bus *events.Bus, logger *slog.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	limiter := newJitteredRateLimiter(cfg.BaseDelay, cfg.MaxDelay)
	return &Engine{
		store:    st,
		bus:      bus,
		logger:   logger.With("component", "engine"),
		cfg:      cfg,
		queue:    workqueue.NewTypedRateLimitingQueue(limiter),
		handlers: make(map[string]Handler),
		inflight: make(map[api.ObjectKey]context.CancelFunc),
	}
}

// Register adds a handler. The engine always watches the handler's own kind
// with identity mapping; extra watches route other kinds' events to handler
// keys (e.g. child events to their owner).
//
// Not safe to call after Start.
func (e *Engine) Register(h Handler, extra ...Watch) {
	e.handlers[h.Kind()] = h
	e.registrations = append(e.registrations, registration{
		handler: h,
		watch:   Watch{Kind: h.Kind()},
	})
	for _, w := range extra {
		e.registrations = append(e.registrations, registration{handler: h, watch: w})
	}
}

// QueueLen returns the current work queue depth.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Start runs watch pumps and workers until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("engine starting",
		"workers", e.cfg.Workers,
		"handlers", len(e.handlers),
		"max_retries", e.cfg.MaxRetries)

	g, gCtx := errgroup.WithContext(ctx)

	for _, reg := range e.registrations {
		g.Go(func() error {
			return e.runWatch(gCtx, reg)
		})
	}
	for range e.cfg.Workers {
		g.Go(func() error {
			e.runWorker(gCtx)
			return nil
		})
	}

	// Shut the queue down when the context ends so blocked workers return.
	g.Go(func() error {
		<-gCtx.Done()
		e.queue.ShutDown()
		return nil
	})

	err := g.Wait()
	e.logger.Info("engine stopped", "reason", ctx.Err())
	return err
}

// runWatch pumps one subscription into the queue, relisting and
// resubscribing whenever the watch is dropped for lagging.
func (e *Engine) runWatch(ctx context.Context, reg registration) error {
	for {
		snapshot, sub := e.store.ListAndWatch(reg.watch.Kind, "", nil, e.cfg.WatchBuffer)
		for _, obj := range snapshot {
			e.enqueueFor(reg, obj)
		}

		closed := false
		for !closed {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					closed = true
					break
				}
				e.enqueueFor(reg, ev.Object)
			case <-ctx.Done():
				e.store.Bus().Unsubscribe(sub)
				return nil
			}
		}

		// Overflow disconnect: relist-then-watch.
		if err := sub.Err(); err != nil {
			e.bus.Publish(events.NewWatchDropped(sub.ID(), "engine/"+reg.handler.Kind()))
			e.logger.Warn("watch dropped, relisting", "kind", reg.watch.Kind, "error", err)
			continue
		}
		return nil
	}
}

// enqueueFor maps an event object to handler keys and enqueues them,
// cancelling any stale in-flight reconciliation for those keys.
func (e *Engine) enqueueFor(reg registration, obj *api.Object) {
	var keys []api.ObjectKey
	if reg.watch.MapToKeys != nil {
		keys = reg.watch.MapToKeys(obj)
	} else {
		keys = []api.ObjectKey{obj.Key()}
	}
	for _, key := range keys {
		if key.Kind != reg.handler.Kind() {
			continue
		}
		e.cancelInflight(key)
		e.queue.Add(key)
	}
}

func (e *Engine) runWorker(ctx context.Context) {
	for {
		key, shutdown := e.queue.Get()
		if shutdown {
			return
		}
		e.process(ctx, key)
		e.queue.Done(key)
	}
}

// process runs one reconciliation pass for key.
func (e *Engine) process(ctx context.Context, key api.ObjectKey) {
	handler, ok := e.handlers[key.Kind]
	if !ok {
		e.queue.Forget(key)
		return
	}

	keyCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.inflight[key] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.inflight[key] != nil {
			delete(e.inflight, key)
		}
		e.mu.Unlock()
		cancel()
	}()

	e.bus.Publish(events.NewReconcileStarted(key))
	start := time.Now()

	result, err := handler.Handle(keyCtx, key)
	elapsed := time.Since(start)

	if err != nil {
		e.handleFailure(key, err)
		return
	}

	e.queue.Forget(key)
	switch {
	case result.Changed():
		e.bus.Publish(events.NewReconcileProgressed(key, result.Creates, result.Updates, result.Deletes, elapsed))
	case result.RequeueAfter > 0:
		// Nothing applied but another pass is pending: not converged.
		e.bus.Publish(events.NewReconcileRequeued(key, result.RequeueAfter, elapsed))
	default:
		e.bus.Publish(events.NewReconcileSettled(key, elapsed))
	}
	if result.RequeueAfter > 0 {
		e.queue.AddAfter(key, result.RequeueAfter)
	}
}

// handleFailure retries with backoff until the budget is exhausted, then
// surfaces the failure into the object's status conditions. Escalation is
// the only terminal-but-non-crashing failure path.
func (e *Engine) handleFailure(key api.ObjectKey, err error) {
	retries := e.queue.NumRequeues(key)
	if retries < e.cfg.MaxRetries {
		e.bus.Publish(events.NewReconcileFailed(key, retries, err.Error(), false))
		e.queue.AddRateLimited(key)
		return
	}

	e.queue.Forget(key)
	e.bus.Publish(events.NewReconcileFailed(key, retries, err.Error(), true))

	if _, statusErr := e.store.MutateStatus(key, func(status *api.Status) {
		status.Conditions, _ = api.SetCondition(status.Conditions, api.Condition{
			Type:    api.ConditionProgressing,
			Status:  api.ConditionFalse,
			Reason:  api.ReasonRetryBudgetExhausted,
			Message: err.Error(),
		})
	}); statusErr != nil && !store.IsNotFound(statusErr) {
		e.logger.Error("failed to surface exhausted retry budget",
			"key", key.String(), "error", statusErr)
	}
}

// cancelInflight cancels the reconciliation in flight for key, if any. The
// queue guarantees the next pass starts only after the cancelled one
// returns.
func (e *Engine) cancelInflight(key api.ObjectKey) {
	e.mu.Lock()
	cancel := e.inflight[key]
	delete(e.inflight, key)
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
