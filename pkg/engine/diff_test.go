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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kondense/pkg/api"
)

func child(name, payload string) *api.Object {
	return &api.Object{
		Kind:      api.KindUnit,
		Namespace: "default",
		Name:      name,
		Spec:      payload,
	}
}

func payloadEqual(want ChildSpec, have *api.Object) bool {
	return want.Spec == have.Spec
}

func TestComputeDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		desired    []ChildSpec
		observed   []*api.Object
		wantCreate []string
		wantUpdate []string
		wantDelete []string
	}{
		{
			name:       "empty observed creates everything",
			desired:    []ChildSpec{{Slot: "a", Spec: "v1"}, {Slot: "b", Spec: "v1"}},
			wantCreate: []string{"a", "b"},
		},
		{
			name:       "empty desired deletes everything",
			observed:   []*api.Object{child("a", "v1"), child("b", "v1")},
			wantDelete: []string{"a", "b"},
		},
		{
			name:     "converged is empty",
			desired:  []ChildSpec{{Slot: "a", Spec: "v1"}},
			observed: []*api.Object{child("a", "v1")},
		},
		{
			name:       "spec drift updates in place",
			desired:    []ChildSpec{{Slot: "a", Spec: "v2"}},
			observed:   []*api.Object{child("a", "v1")},
			wantUpdate: []string{"a"},
		},
		{
			name: "slot replacement creates and deletes",
			desired: []ChildSpec{
				{Slot: "a-new", Spec: "v2"},
			},
			observed:   []*api.Object{child("a-old", "v1")},
			wantCreate: []string{"a-new"},
			wantDelete: []string{"a-old"},
		},
		{
			name:       "deletes come out sorted",
			desired:    nil,
			observed:   []*api.Object{child("c", "v1"), child("a", "v1"), child("b", "v1")},
			wantDelete: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			diff := computeDiff(tt.desired, tt.observed, payloadEqual)

			var created []string
			for _, c := range diff.ToCreate {
				created = append(created, c.Slot)
			}
			var updated []string
			for _, u := range diff.ToUpdate {
				updated = append(updated, u.Existing.Name)
			}
			var deleted []string
			for _, d := range diff.ToDelete {
				deleted = append(deleted, d.Name)
			}

			assert.Equal(t, tt.wantCreate, created)
			assert.Equal(t, tt.wantUpdate, updated)
			assert.Equal(t, tt.wantDelete, deleted)
			assert.Equal(t,
				len(tt.wantCreate) == 0 && len(tt.wantUpdate) == 0 && len(tt.wantDelete) == 0,
				diff.Empty())
		})
	}
}

// A terminating child neither blocks its slot nor gets deleted again: the
// slot reappears in ToCreate and converges once the old object is purged.
func TestComputeDiff_TerminatingChildIsAbsent(t *testing.T) {
	t.Parallel()

	now := time.Now()
	terminating := child("a", "v1")
	terminating.DeletionTimestamp = &now

	diff := computeDiff([]ChildSpec{{Slot: "a", Spec: "v1"}}, []*api.Object{terminating}, payloadEqual)

	require.Len(t, diff.ToCreate, 1)
	assert.Equal(t, "a", diff.ToCreate[0].Slot)
	assert.Empty(t, diff.ToDelete)
	assert.Empty(t, diff.ToUpdate)
}
