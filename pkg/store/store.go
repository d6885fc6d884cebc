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

// Package store implements the versioned in-memory object store that is the
// single source of truth for all cluster state.
//
// Every mutation goes through optimistic concurrency: callers submit the
// resource version they read, and a mismatch is rejected with ConflictError
// rather than silently overwritten. Each committed mutation publishes exactly
// one event to the watch bus, strictly after the store state is updated, so
// subscribers never observe a notification for a rolled-back write.
package store

import (
	"iter"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/labels"

	"kondense/pkg/api"
	"kondense/pkg/events"
	"kondense/pkg/watch"
)

// MaxMutateRetries bounds the conflict-retry loop in Mutate and MutateStatus.
const MaxMutateRetries = 5

// Store is the in-memory versioned object map.
//
// Thread-safe. The watch bus is notified while the commit lock is still held,
// which makes per-object event order identical to resource-version order.
type Store struct {
	mu      sync.RWMutex
	objects map[api.ObjectKey]*api.Object
	bus     *watch.Bus
	events  *events.Bus
	logger  *slog.Logger
}

// New creates a store publishing watch events to bus. eventBus receives a
// StoreConflictEvent for every optimistic concurrency race lost inside the
// Mutate retry loops; nil disables conflict reporting.
func New(bus *watch.Bus, eventBus *events.Bus, logger *slog.Logger) *Store {
	return &Store{
		objects: make(map[api.ObjectKey]*api.Object),
		bus:     bus,
		events:  eventBus,
		logger:  logger.With("component", "store"),
	}
}

// Bus returns the watch bus this store publishes to.
func (s *Store) Bus() *watch.Bus { return s.bus }

// Put creates or updates an object's spec and metadata.
//
// expectedVersion 0 means create: the object must not exist, it is validated,
// assigned a fresh UID and version 1, and its status is zeroed (status is
// never writable through Put). Any other expectedVersion means update: the
// object must exist at exactly that version; the stored status is carried
// over unchanged.
//
// Removing the last finalizer from a terminating object through Put purges it
// immediately.
//
// Returns the new resource version.
func (s *Store) Put(obj *api.Object, expectedVersion uint64) (uint64, error) {
	if err := api.ValidateObject(obj); err != nil {
		return 0, err
	}
	obj = obj.DeepCopy()
	key := obj.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.objects[key]

	if expectedVersion == 0 {
		if exists {
			return 0, &ConflictError{Key: key, Expected: 0, Current: cur.ResourceVersion}
		}
		obj.UID = uuid.NewString()
		obj.ResourceVersion = 1
		obj.Generation = 1
		obj.Status = api.Status{Phase: api.PhasePending}
		obj.DeletionTimestamp = nil
		s.objects[key] = obj
		s.publishLocked(watch.Added, obj)
		return obj.ResourceVersion, nil
	}

	if !exists {
		return 0, &NotFoundError{Key: key}
	}
	if cur.ResourceVersion != expectedVersion {
		return 0, &ConflictError{Key: key, Expected: expectedVersion, Current: cur.ResourceVersion}
	}

	obj.UID = cur.UID
	obj.ResourceVersion = cur.ResourceVersion + 1
	obj.Generation = cur.Generation + 1
	obj.Status = cur.Status
	obj.DeletionTimestamp = cur.DeletionTimestamp

	if obj.Terminating() && len(obj.Finalizers) == 0 {
		// Last finalizer cleared: purge.
		delete(s.objects, key)
		s.publishLocked(watch.Deleted, obj)
		return obj.ResourceVersion, nil
	}

	s.objects[key] = obj
	s.publishLocked(watch.Modified, obj)
	return obj.ResourceVersion, nil
}

// PutStatus updates only the status block of an existing object. The
// object's generation is unchanged: status writes never look like new
// desired state. Writing a status identical to the stored one commits
// nothing and publishes nothing.
//
// This is the sole status write path: the reconciler engine and the status
// aggregator use it, intent submitters never do.
func (s *Store) PutStatus(key api.ObjectKey, status api.Status, expectedVersion uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.objects[key]
	if !exists {
		return 0, &NotFoundError{Key: key}
	}
	if expectedVersion != 0 && cur.ResourceVersion != expectedVersion {
		return 0, &ConflictError{Key: key, Expected: expectedVersion, Current: cur.ResourceVersion}
	}
	if reflect.DeepEqual(cur.Status, status) {
		return cur.ResourceVersion, nil
	}

	next := cur.DeepCopy()
	next.Status = status
	next.ResourceVersion = cur.ResourceVersion + 1
	s.objects[key] = next
	s.publishLocked(watch.Modified, next)
	return next.ResourceVersion, nil
}

// Get returns a copy of the object, or NotFoundError.
func (s *Store) Get(kind, namespace, name string) (*api.Object, error) {
	key := api.ObjectKey{Kind: kind, Namespace: namespace, Name: name}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, &NotFoundError{Key: key}
	}
	return obj.DeepCopy(), nil
}

// GetKey is Get addressed by ObjectKey.
func (s *Store) GetKey(key api.ObjectKey) (*api.Object, error) {
	return s.Get(key.Kind, key.Namespace, key.Name)
}

// List returns a finite, restartable sequence of objects matching the scope,
// snapshot-consistent at call time. kind and namespace may be empty to match
// everything; selector nil means all labels.
func (s *Store) List(kind, namespace string, selector labels.Selector) iter.Seq[*api.Object] {
	if selector == nil {
		selector = labels.Everything()
	}

	s.mu.RLock()
	snapshot := make([]*api.Object, 0)
	for key, obj := range s.objects {
		if kind != "" && key.Kind != kind {
			continue
		}
		if namespace != "" && key.Namespace != namespace {
			continue
		}
		if !selector.Matches(labels.Set(obj.Labels)) {
			continue
		}
		snapshot = append(snapshot, obj.DeepCopy())
	}
	s.mu.RUnlock()

	return func(yield func(*api.Object) bool) {
		for _, obj := range snapshot {
			if !yield(obj) {
				return
			}
		}
	}
}

// Delete removes an object, or marks it terminating if it has finalizers.
//
// expectedVersion 0 skips the version check (unconditional delete, used by
// the garbage collector). Deleting an already-terminating object is a no-op.
func (s *Store) Delete(kind, namespace, name string, expectedVersion uint64) error {
	key := api.ObjectKey{Kind: kind, Namespace: namespace, Name: name}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.objects[key]
	if !exists {
		return &NotFoundError{Key: key}
	}
	if expectedVersion != 0 && cur.ResourceVersion != expectedVersion {
		return &ConflictError{Key: key, Expected: expectedVersion, Current: cur.ResourceVersion}
	}

	if cur.Terminating() {
		return nil
	}

	if len(cur.Finalizers) > 0 {
		next := cur.DeepCopy()
		now := time.Now()
		next.DeletionTimestamp = &now
		next.ResourceVersion = cur.ResourceVersion + 1
		next.Generation = cur.Generation + 1
		s.objects[key] = next
		s.publishLocked(watch.Modified, next)
		return nil
	}

	delete(s.objects, key)
	s.publishLocked(watch.Deleted, cur)
	return nil
}

// DeleteKey is Delete addressed by ObjectKey.
func (s *Store) DeleteKey(key api.ObjectKey, expectedVersion uint64) error {
	return s.Delete(key.Kind, key.Namespace, key.Name, expectedVersion)
}

// Mutate reads the object, applies fn to a copy, and writes it back with the
// read version, retrying on conflict up to MaxMutateRetries times.
//
// fn must be safe to call multiple times.
func (s *Store) Mutate(key api.ObjectKey, fn func(*api.Object) error) (uint64, error) {
	var lastErr error
	for range MaxMutateRetries {
		obj, err := s.GetKey(key)
		if err != nil {
			return 0, err
		}
		read := obj.ResourceVersion
		if err := fn(obj); err != nil {
			return 0, err
		}
		version, err := s.Put(obj, read)
		if err == nil {
			return version, nil
		}
		if !IsConflict(err) {
			return 0, err
		}
		s.reportConflict(key)
		lastErr = err
	}
	return 0, lastErr
}

// MutateStatus is Mutate for the status block.
func (s *Store) MutateStatus(key api.ObjectKey, fn func(*api.Status)) (uint64, error) {
	var lastErr error
	for range MaxMutateRetries {
		obj, err := s.GetKey(key)
		if err != nil {
			return 0, err
		}
		status := obj.Status
		fn(&status)
		version, err := s.PutStatus(key, status, obj.ResourceVersion)
		if err == nil {
			return version, nil
		}
		if !IsConflict(err) {
			return 0, err
		}
		s.reportConflict(key)
		lastErr = err
	}
	return 0, lastErr
}

// reportConflict publishes a lost optimistic concurrency race to the
// observability bus, if one is attached.
func (s *Store) reportConflict(key api.ObjectKey) {
	if s.events != nil {
		s.events.Publish(events.NewStoreConflict(key))
	}
}

// ListAndWatch subscribes to the scope and then snapshots it, in that order,
// so no mutation is lost between the two steps. Events already reflected in
// the snapshot may be delivered again; consumers must treat delivery as
// at-least-once.
func (s *Store) ListAndWatch(kind, namespace string, selector labels.Selector, buffer int) ([]*api.Object, *watch.Subscription) {
	sub := s.bus.Subscribe(kind, namespace, selector, buffer)
	var snapshot []*api.Object
	for obj := range s.List(kind, namespace, selector) {
		snapshot = append(snapshot, obj)
	}
	return snapshot, sub
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// publishLocked emits one watch event for a committed mutation. Must be
// called with the write lock held so per-object delivery order matches
// version order.
func (s *Store) publishLocked(eventType watch.EventType, obj *api.Object) {
	s.bus.Publish(watch.Event{Type: eventType, Object: obj.DeepCopy()})
	s.logger.Debug("committed",
		"event", string(eventType),
		"key", obj.Key().String(),
		"version", obj.ResourceVersion)
}
