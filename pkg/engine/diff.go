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
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"kondense/pkg/api"
)

// ChildSpec is one desired child in a parent's expansion.
type ChildSpec struct {
	// Slot is the stable identity key; it becomes the child's name. Diffing
	// matches desired to observed by slot, never by value equality.
	Slot string

	Labels map[string]string
	Spec   any
}

// ChildUpdate pairs an observed child with the spec it should have.
type ChildUpdate struct {
	Existing *api.Object
	Desired  ChildSpec
}

// Diff is the intent set that converges observed children onto the desired
// set. Orderings within each slice are deterministic: desired order for
// creates and updates, lexical name order for deletes.
type Diff struct {
	ToCreate []ChildSpec
	ToUpdate []ChildUpdate
	ToDelete []*api.Object
}

// Empty reports whether nothing needs to be done.
func (d Diff) Empty() bool {
	return len(d.ToCreate) == 0 && len(d.ToUpdate) == 0 && len(d.ToDelete) == 0
}

// computeDiff matches desired against observed by slot.
//
// equal decides whether an observed child already carries a desired spec;
// children that exist at a desired slot but fail equal land in ToUpdate.
// Terminating children are treated as absent: their slots show up in
// ToCreate (the create is retried until the old object is purged) and they
// never appear in ToDelete.
func computeDiff(desired []ChildSpec, observed []*api.Object, equal func(ChildSpec, *api.Object) bool) Diff {
	byName := make(map[string]*api.Object, len(observed))
	for _, child := range observed {
		if child.Terminating() {
			continue
		}
		byName[child.Name] = child
	}

	desiredSlots := sets.New[string]()
	var diff Diff
	for _, want := range desired {
		desiredSlots.Insert(want.Slot)
		have, exists := byName[want.Slot]
		if !exists {
			diff.ToCreate = append(diff.ToCreate, want)
			continue
		}
		if !equal(want, have) {
			diff.ToUpdate = append(diff.ToUpdate, ChildUpdate{Existing: have, Desired: want})
		}
	}

	for name, child := range byName {
		if !desiredSlots.Has(name) {
			diff.ToDelete = append(diff.ToDelete, child)
		}
	}
	slices.SortFunc(diff.ToDelete, func(a, b *api.Object) int {
		return strings.Compare(a.Name, b.Name)
	})

	return diff
}
