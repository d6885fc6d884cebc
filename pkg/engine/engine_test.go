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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kondense/pkg/api"
	"kondense/pkg/core/logging"
	"kondense/pkg/events"
	"kondense/pkg/store"
)

// stubHandler reconciles a synthetic kind with a programmable outcome.
type stubHandler struct {
	kind   string
	calls  atomic.Int64
	handle func(ctx context.Context, key api.ObjectKey) (Result, error)
}

func (h *stubHandler) Kind() string { return h.kind }

func (h *stubHandler) Handle(ctx context.Context, key api.ObjectKey) (Result, error) {
	h.calls.Add(1)
	if h.handle != nil {
		return h.handle(ctx, key)
	}
	return Result{}, nil
}

func startEngine(t *testing.T, st *store.Store, cfg Config, handlers ...Handler) *Engine {
	t.Helper()

	bus := events.NewBus(64)
	bus.Start()
	eng := New(st, bus, logging.NewLogger("ERROR"), cfg)
	for _, h := range handlers {
		eng.Register(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return eng
}

func TestEngine_DispatchesWatchEvents(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	var seen atomic.Int64
	h := &stubHandler{
		kind: "Gadget",
		handle: func(_ context.Context, key api.ObjectKey) (Result, error) {
			if key.Name == "g-1" {
				seen.Add(1)
			}
			return Result{}, nil
		},
	}
	startEngine(t, st, Config{Workers: 2}, h)

	_, err := st.Put(&api.Object{Kind: "Gadget", Namespace: "default", Name: "g-1", Spec: struct{}{}}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return seen.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond, "handler never saw the created object")
}

func TestEngine_ReconcilesPreexistingState(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	// Object exists before the engine starts: the initial list covers it.
	_, err := st.Put(&api.Object{Kind: "Gadget", Namespace: "default", Name: "g-0", Spec: struct{}{}}, 0)
	require.NoError(t, err)

	h := &stubHandler{kind: "Gadget"}
	startEngine(t, st, Config{Workers: 1}, h)

	require.Eventually(t, func() bool {
		return h.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_RetriesWithBackoff(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	h := &stubHandler{
		kind: "Gadget",
		handle: func(context.Context, api.ObjectKey) (Result, error) {
			return Result{}, errors.New("transient failure")
		},
	}
	startEngine(t, st, Config{
		Workers:    1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		MaxRetries: 100,
	}, h)

	_, err := st.Put(&api.Object{Kind: "Gadget", Namespace: "default", Name: "g-1", Spec: struct{}{}}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.calls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond, "failing key must be retried")
}

func TestEngine_ExhaustedBudgetSurfacesCondition(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	h := &stubHandler{
		kind: "Gadget",
		handle: func(context.Context, api.ObjectKey) (Result, error) {
			return Result{}, errors.New("permanent failure")
		},
	}
	startEngine(t, st, Config{
		Workers:    1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		MaxRetries: 3,
	}, h)

	_, err := st.Put(&api.Object{Kind: "Gadget", Namespace: "default", Name: "g-1", Spec: struct{}{}}, 0)
	require.NoError(t, err)

	key := api.ObjectKey{Kind: "Gadget", Namespace: "default", Name: "g-1"}
	require.Eventually(t, func() bool {
		obj, err := st.GetKey(key)
		if err != nil {
			return false
		}
		cond := api.FindCondition(obj.Status.Conditions, api.ConditionProgressing)
		return cond != nil && cond.Status == api.ConditionFalse && cond.Reason == api.ReasonRetryBudgetExhausted
	}, 5*time.Second, 10*time.Millisecond, "exhausted budget must land in status conditions")

	// The failure stops being retried once escalated: the condition write is
	// idempotent, so the retry cycle runs dry instead of looping forever.
	require.Eventually(t, func() bool {
		before := h.calls.Load()
		time.Sleep(50 * time.Millisecond)
		return h.calls.Load() == before
	}, 5*time.Second, 10*time.Millisecond, "escalated key must stop retrying")
}

func TestEngine_RequeueAfter(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	h := &stubHandler{kind: "Gadget"}
	h.handle = func(context.Context, api.ObjectKey) (Result, error) {
		if h.calls.Load() == 1 {
			return Result{RequeueAfter: 10 * time.Millisecond}, nil
		}
		return Result{}, nil
	}
	startEngine(t, st, Config{Workers: 1}, h)

	_, err := st.Put(&api.Object{Kind: "Gadget", Namespace: "default", Name: "g-1", Spec: struct{}{}}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond, "RequeueAfter must schedule a second pass without new events")
}

func TestEngine_IgnoresForeignKinds(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	h := &stubHandler{kind: "Gadget"}
	startEngine(t, st, Config{Workers: 1}, h)

	_, err := st.Put(&api.Object{Kind: "Widget", Namespace: "default", Name: "w-1", Spec: struct{}{}}, 0)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.calls.Load(), "events for unhandled kinds must not reach the handler")
}

func TestEngine_RequeueWithoutChangeIsNotSettled(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	bus := events.NewBus(64)
	ch := bus.Subscribe(64)
	bus.Start()

	h := &stubHandler{
		kind: "Gadget",
		handle: func(context.Context, api.ObjectKey) (Result, error) {
			return Result{RequeueAfter: time.Hour}, nil
		},
	}
	eng := New(st, bus, logging.NewLogger("ERROR"), Config{Workers: 1})
	eng.Register(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	_, err := st.Put(&api.Object{Kind: "Gadget", Namespace: "default", Name: "g-1", Spec: struct{}{}}, 0)
	require.NoError(t, err)

	// The pass applied nothing but asked for a timer wake-up: the engine
	// must report it as requeued, never as settled.
	var requeued *events.ReconcileRequeuedEvent
	sawSettled := false
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-ch:
				switch e := ev.(type) {
				case *events.ReconcileRequeuedEvent:
					requeued = e
					return true
				case *events.ReconcileSettledEvent:
					sawSettled = true
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond, "requeued pass never reported")
	assert.False(t, sawSettled, "pass with pending requeue reported as settled")
	require.NotNil(t, requeued)
	assert.Equal(t, time.Hour, requeued.After)
}
