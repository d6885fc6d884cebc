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
	"fmt"
	"log/slog"
	"reflect"

	"kondense/pkg/api"
	"kondense/pkg/store"
)

// Labels stamped on the units a workload expands to.
const (
	// WorkloadLabel names the owning workload on each unit.
	WorkloadLabel = "kondense/workload"

	// TemplateHashLabel carries the hash of the template a unit was stamped
	// from. A template change changes the hash, and with it every slot
	// name, which is what turns a spec edit into a rollout.
	TemplateHashLabel = "kondense/template-hash"
)

// NewWorkloadReconciler returns the built-in Workload handler: it expands a
// WorkloadSpec into one Unit per replica, slots keyed by template hash and
// ordinal.
func NewWorkloadReconciler(st *store.Store, logger *slog.Logger) *ParentReconciler {
	return NewParentReconciler(
		st,
		logger,
		api.KindWorkload,
		api.KindUnit,
		expandWorkload,
		unitSpecEqual,
		workloadStrategy,
	)
}

// expandWorkload maps a workload spec to its desired unit set.
//
// Slot names embed the template hash, so a template change yields an
// entirely new slot set and the old units land in ToDelete while the new
// ones land in ToCreate — the rolling/recreate strategies then sequence the
// replacement.
func expandWorkload(parent *api.Object) ([]ChildSpec, error) {
	spec, ok := parent.Spec.(api.WorkloadSpec)
	if !ok {
		return nil, fmt.Errorf("workload %s has spec payload %T", parent.Key(), parent.Spec)
	}

	hash := spec.Template.Hash()
	desired := make([]ChildSpec, 0, spec.Replicas)
	for i := range spec.Replicas {
		labels := map[string]string{
			WorkloadLabel:     parent.Name,
			TemplateHashLabel: hash,
		}
		for k, v := range parent.Labels {
			if _, reserved := labels[k]; !reserved {
				labels[k] = v
			}
		}
		desired = append(desired, ChildSpec{
			Slot:   fmt.Sprintf("%s-%s-%d", parent.Name, hash, i),
			Labels: labels,
			Spec: api.UnitSpec{
				Template:  spec.Template,
				Placement: spec.Placement,
			},
		})
	}
	return desired, nil
}

// unitSpecEqual ignores the target binding: TargetName is owned by the
// binder and must not cause the workload reconciler to rewrite bound units.
func unitSpecEqual(want ChildSpec, have *api.Object) bool {
	wantSpec, ok := want.Spec.(api.UnitSpec)
	if !ok {
		return false
	}
	haveSpec, ok := have.Spec.(api.UnitSpec)
	if !ok {
		return false
	}
	return reflect.DeepEqual(wantSpec.Template, haveSpec.Template) &&
		reflect.DeepEqual(wantSpec.Placement, haveSpec.Placement)
}

func workloadStrategy(parent *api.Object) api.UpdateStrategy {
	spec, ok := parent.Spec.(api.WorkloadSpec)
	if !ok {
		return api.UpdateStrategy{}
	}
	strategy := spec.Strategy
	// MaxSurge=0 with MaxUnavailable=0 cannot make rollout progress; default
	// to one surge unit, as an unset strategy means "rolling".
	if strategy.Order != api.OrderRecreate && strategy.MaxSurge == 0 && strategy.MaxUnavailable == 0 {
		strategy.MaxSurge = 1
	}
	return strategy
}
