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

// Package scheduler implements placement of Units onto Targets.
//
// Placement is a pure predicate+scoring function: hard constraints (label
// selector, untolerated NoSchedule/NoExecute taints, hard anti-affinity)
// filter the candidate set, soft constraints (weighted preferences,
// PreferNoSchedule penalties, soft anti-affinity) rank what remains. Given
// identical inputs the same target is always selected; ties break on target
// name.
package scheduler

import (
	"fmt"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"

	"kondense/pkg/api"
)

// PreferNoSchedulePenalty is subtracted from a target's score for each
// PreferNoSchedule taint the unit does not tolerate.
const PreferNoSchedulePenalty = 10

// UnschedulableError reports that no feasible target exists for a unit.
//
// It is never fatal: the binder surfaces it in the unit's status and retries
// on a timer and on relevant cluster-state changes.
type UnschedulableError struct {
	Key     api.ObjectKey
	Targets int // candidates considered

	// Per-predicate exclusion counts for the status message.
	BySelector     int
	ByTaints       int
	ByAntiAffinity int
}

func (e *UnschedulableError) Error() string {
	if e.Targets == 0 {
		return fmt.Sprintf("unit %s unschedulable: no targets available", e.Key)
	}
	var parts []string
	if e.BySelector > 0 {
		parts = append(parts, fmt.Sprintf("%d failed selector", e.BySelector))
	}
	if e.ByTaints > 0 {
		parts = append(parts, fmt.Sprintf("%d had untolerated taints", e.ByTaints))
	}
	if e.ByAntiAffinity > 0 {
		parts = append(parts, fmt.Sprintf("%d excluded by anti-affinity", e.ByAntiAffinity))
	}
	return fmt.Sprintf("unit %s unschedulable: 0/%d targets eligible (%s)",
		e.Key, e.Targets, strings.Join(parts, ", "))
}

// Schedule selects the target for unit, or returns UnschedulableError.
//
// targets are the candidate Target objects; siblings are already-placed Units
// belonging to the same group (typically the same Workload) and are consulted
// only when the unit declares anti-affinity. The function reads state and
// never mutates its inputs.
func Schedule(unit *api.Object, targets, siblings []*api.Object) (string, error) {
	spec, ok := unit.Spec.(api.UnitSpec)
	if !ok {
		return "", fmt.Errorf("object %s is not a unit", unit.Key())
	}

	// Deterministic candidate order: lexical by name. Combined with the
	// strictly-greater comparison below, ties resolve to the smallest name.
	candidates := slices.Clone(targets)
	slices.SortFunc(candidates, func(a, b *api.Object) int {
		return strings.Compare(a.Name, b.Name)
	})

	domainCounts := siblingDomains(spec.Placement.AntiAffinity, siblings, candidates)

	unschedulable := &UnschedulableError{Key: unit.Key(), Targets: len(candidates)}
	var (
		best      *api.Object
		bestScore int64
	)
	for _, target := range candidates {
		eligible, reason := feasible(spec.Placement, target, domainCounts)
		if !eligible {
			switch reason {
			case reasonSelector:
				unschedulable.BySelector++
			case reasonTaints:
				unschedulable.ByTaints++
			case reasonAntiAffinity:
				unschedulable.ByAntiAffinity++
			}
			continue
		}
		s := score(spec.Placement, target, domainCounts)
		if best == nil || s > bestScore {
			best = target
			bestScore = s
		}
	}

	if best == nil {
		return "", unschedulable
	}
	return best.Name, nil
}

type exclusionReason int

const (
	reasonNone exclusionReason = iota
	reasonSelector
	reasonTaints
	reasonAntiAffinity
)

// feasible applies the hard constraints.
func feasible(p api.Placement, target *api.Object, domainCounts map[string]int) (bool, exclusionReason) {
	if len(p.Selector) > 0 {
		sel := labels.SelectorFromSet(labels.Set(p.Selector))
		if !sel.Matches(labels.Set(target.Labels)) {
			return false, reasonSelector
		}
	}

	for _, taint := range targetTaints(target) {
		if taint.Effect != corev1.TaintEffectNoSchedule && taint.Effect != corev1.TaintEffectNoExecute {
			continue
		}
		if !tolerated(taint, p.Tolerations) {
			return false, reasonTaints
		}
	}

	if aa := p.AntiAffinity; aa != nil && aa.Hard {
		domain := target.Labels[aa.TopologyKey]
		if domainCounts[domain] > 0 {
			return false, reasonAntiAffinity
		}
	}

	return true, reasonNone
}

// score ranks an eligible target: weighted preference matches, minus
// PreferNoSchedule penalties, minus the soft anti-affinity penalty.
func score(p api.Placement, target *api.Object, domainCounts map[string]int) int64 {
	var s int64

	targetSet := labels.Set(target.Labels)
	for _, pref := range p.Preferences {
		if labels.SelectorFromSet(labels.Set(pref.Selector)).Matches(targetSet) {
			s += int64(pref.Weight)
		}
	}

	for _, taint := range targetTaints(target) {
		if taint.Effect != corev1.TaintEffectPreferNoSchedule {
			continue
		}
		if !tolerated(taint, p.Tolerations) {
			s -= PreferNoSchedulePenalty
		}
	}

	if aa := p.AntiAffinity; aa != nil && !aa.Hard {
		weight := aa.Weight
		if weight == 0 {
			weight = 1
		}
		s -= int64(weight) * int64(domainCounts[target.Labels[aa.TopologyKey]])
	}

	return s
}

// siblingDomains counts already-placed siblings per topology domain.
func siblingDomains(aa *api.AntiAffinity, siblings, targets []*api.Object) map[string]int {
	if aa == nil {
		return nil
	}
	byName := make(map[string]*api.Object, len(targets))
	for _, t := range targets {
		byName[t.Name] = t
	}
	counts := make(map[string]int)
	for _, sib := range siblings {
		spec, ok := sib.Spec.(api.UnitSpec)
		if !ok || spec.TargetName == "" {
			continue
		}
		target, ok := byName[spec.TargetName]
		if !ok {
			continue
		}
		counts[target.Labels[aa.TopologyKey]]++
	}
	return counts
}

// tolerated reports whether any toleration matches the taint.
func tolerated(taint corev1.Taint, tolerations []corev1.Toleration) bool {
	for i := range tolerations {
		if tolerations[i].ToleratesTaint(&taint) {
			return true
		}
	}
	return false
}

func targetTaints(target *api.Object) []corev1.Taint {
	spec, ok := target.Spec.(api.TargetSpec)
	if !ok {
		return nil
	}
	return spec.Taints
}
