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
	"context"
	"log/slog"

	"kondense/pkg/events/ringbuffer"
)

// RecorderBufferSize is the subscription buffer for the event recorder.
const RecorderBufferSize = 200

// Recorder subscribes to the observability bus, logs every event, and keeps
// a bounded in-memory history for debugging.
type Recorder struct {
	eventChan <-chan Event
	logger    *slog.Logger
	history   *ringbuffer.RingBuffer[Event]
}

// NewRecorder subscribes to bus. historySize bounds the retained event
// history.
func NewRecorder(bus *Bus, logger *slog.Logger, historySize int) *Recorder {
	return &Recorder{
		eventChan: bus.Subscribe(RecorderBufferSize),
		logger:    logger.With("component", "event-recorder"),
		history:   ringbuffer.New[Event](historySize),
	}
}

// Start consumes events until ctx is cancelled. Always returns nil.
func (r *Recorder) Start(ctx context.Context) error {
	for {
		select {
		case event := <-r.eventChan:
			r.record(event)
		case <-ctx.Done():
			return nil
		}
	}
}

// Recent returns up to n recorded events, newest last.
func (r *Recorder) Recent(n int) []Event {
	return r.history.Recent(n)
}

func (r *Recorder) record(event Event) {
	r.history.Append(event)

	switch e := event.(type) {
	case *ReconcileStartedEvent:
		r.logger.Debug("reconcile started", "key", e.Key.String())
	case *ReconcileSettledEvent:
		r.logger.Info("reconcile settled", "key", e.Key.String(), "duration", e.Duration)
	case *ReconcileRequeuedEvent:
		r.logger.Debug("reconcile requeued", "key", e.Key.String(), "after", e.After)
	case *ReconcileProgressedEvent:
		r.logger.Info("reconcile progressed",
			"key", e.Key.String(),
			"creates", e.Creates,
			"updates", e.Updates,
			"deletes", e.Deletes,
			"duration", e.Duration)
	case *ReconcileFailedEvent:
		if e.Terminal {
			r.logger.Error("reconcile retry budget exhausted", "key", e.Key.String(), "retries", e.Retries, "reason", e.Reason)
		} else {
			r.logger.Warn("reconcile failed", "key", e.Key.String(), "retries", e.Retries, "reason", e.Reason)
		}
	case *ScheduleFailedEvent:
		r.logger.Warn("unit unschedulable", "key", e.Key.String(), "reason", e.Reason)
	case *ScheduleBoundEvent:
		r.logger.Info("unit bound", "key", e.Key.String(), "target", e.Target)
	case *StoreConflictEvent:
		r.logger.Debug("write conflict", "key", e.Key.String())
	case *WatchDroppedEvent:
		r.logger.Warn("watch subscription dropped", "subscription", e.SubscriptionID, "consumer", e.Consumer)
	case *GCDeletedEvent:
		r.logger.Info("cascade deleted", "key", e.Key.String(), "owner", e.Owner.String())
	default:
		r.logger.Debug("event", "type", event.EventType())
	}
}
