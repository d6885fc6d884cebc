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

package api

import (
	"fmt"
	"hash/fnv"
	"slices"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/rand"
)

// UpdateOrder selects the create/delete ordering when a reconciler replaces
// children.
type UpdateOrder string

const (
	// OrderSurge creates replacement children before deleting the ones they
	// replace, so observed capacity never dips (rolling update).
	OrderSurge UpdateOrder = "Surge"

	// OrderRecreate deletes outdated children before creating replacements,
	// so two children never share an identity slot (recreate update).
	OrderRecreate UpdateOrder = "Recreate"
)

// UpdateStrategy bounds how aggressively a Workload is rolled to a new
// template.
type UpdateStrategy struct {
	// Order selects surge-first or recreate-first replacement. Defaults to
	// OrderSurge.
	Order UpdateOrder `yaml:"order,omitempty"`

	// MaxSurge is the number of children allowed above the desired replica
	// count during an update. Ignored for OrderRecreate.
	MaxSurge int `yaml:"maxSurge,omitempty"`

	// MaxUnavailable is the number of desired replicas that may be unready
	// during an update.
	MaxUnavailable int `yaml:"maxUnavailable,omitempty"`
}

// UnitTemplate is the per-replica payload stamped into each Unit a Workload
// expands to. Changing any field changes the template hash and triggers a
// rollout.
type UnitTemplate struct {
	Image string            `yaml:"image"`
	Env   map[string]string `yaml:"env,omitempty"`
}

// Hash returns a short, stable identifier for the template contents,
// comparable to the pod-template-hash used by Deployment rollouts.
func (t UnitTemplate) Hash() string {
	h := fnv.New32a()
	fmt.Fprintf(h, "image=%s;", t.Image)
	// Deterministic env ordering.
	keys := make([]string, 0, len(t.Env))
	for k := range t.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "env.%s=%s;", k, t.Env[k])
	}
	return rand.SafeEncodeString(fmt.Sprint(h.Sum32()))
}

// SoftPreference is a weighted soft placement preference: targets whose
// labels match Selector gain Weight points during scoring.
type SoftPreference struct {
	// Weight must be in [1,100].
	Weight   int32             `yaml:"weight"`
	Selector map[string]string `yaml:"selector"`
}

// AntiAffinity spreads sibling Units of the same Workload across topology
// domains.
type AntiAffinity struct {
	// TopologyKey names the target label whose value defines the domain
	// (e.g. "zone", "host").
	TopologyKey string `yaml:"topologyKey"`

	// Hard excludes any domain already holding a sibling; soft (Hard=false)
	// only penalizes such domains proportionally to sibling count.
	Hard bool `yaml:"hard,omitempty"`

	// Weight scales the soft penalty per co-located sibling. Ignored when
	// Hard is set. Defaults to 1.
	Weight int32 `yaml:"weight,omitempty"`
}

// Placement collects the scheduling constraints a Unit carries.
type Placement struct {
	// Selector restricts eligible targets to those whose labels match every
	// term. Empty means any target.
	Selector map[string]string `yaml:"selector,omitempty"`

	// Tolerations let the unit ignore matching target taints.
	Tolerations []corev1.Toleration `yaml:"tolerations,omitempty"`

	// Preferences are weighted soft constraints added to eligible targets'
	// scores.
	Preferences []SoftPreference `yaml:"preferences,omitempty"`

	// AntiAffinity, when set, constrains co-location with sibling units.
	AntiAffinity *AntiAffinity `yaml:"antiAffinity,omitempty"`
}

// WorkloadSpec is the spec payload of a Workload object.
type WorkloadSpec struct {
	Replicas  int            `yaml:"replicas"`
	Template  UnitTemplate   `yaml:"template"`
	Placement Placement      `yaml:"placement,omitempty"`
	Strategy  UpdateStrategy `yaml:"strategy,omitempty"`
}

// UnitSpec is the spec payload of a Unit object.
type UnitSpec struct {
	Template  UnitTemplate `yaml:"template"`
	Placement Placement    `yaml:"placement,omitempty"`

	// TargetName is the placement binding. Empty until the binder assigns a
	// target; written exactly once by the binder through Store.Put.
	TargetName string `yaml:"targetName,omitempty"`
}

// TargetSpec is the spec payload of a Target object.
type TargetSpec struct {
	// Taints repel units that do not tolerate them. NoSchedule and
	// NoExecute exclude, PreferNoSchedule penalizes.
	Taints []corev1.Taint `yaml:"taints,omitempty"`
}
