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

import "time"

// Condition types surfaced in object status.
const (
	// ConditionAvailable is set on parents when ready children meet the
	// desired count.
	ConditionAvailable = "Available"

	// ConditionProgressing is cleared (False) when the retry budget for a
	// parent is exhausted.
	ConditionProgressing = "Progressing"

	// ConditionScheduled reports placement outcome on Units. False with
	// reason ReasonUnschedulable means no feasible target existed.
	ConditionScheduled = "Scheduled"
)

// Well-known condition reasons.
const (
	ReasonUnschedulable        = "Unschedulable"
	ReasonRetryBudgetExhausted = "RetryBudgetExhausted"
	ReasonChildrenReady        = "ChildrenReady"
	ReasonChildrenNotReady     = "ChildrenNotReady"
	ReasonBound                = "Bound"
)

// ConditionStatus is True, False, or Unknown.
type ConditionStatus string

const (
	ConditionTrue    ConditionStatus = "True"
	ConditionFalse   ConditionStatus = "False"
	ConditionUnknown ConditionStatus = "Unknown"
)

// Condition is one observation about an object, keyed by Type.
//
// Shaped after the Kubernetes metav1.Condition convention: one condition per
// type, LastTransitionTime updated only when Status flips.
type Condition struct {
	Type               string
	Status             ConditionStatus
	Reason             string
	Message            string
	LastTransitionTime time.Time
}

// SetCondition upserts cond into conditions, keyed by Type.
//
// LastTransitionTime is preserved when the status value is unchanged, so
// callers can re-assert conditions without churning transition times. Returns
// the updated slice and whether anything changed.
func SetCondition(conditions []Condition, cond Condition) ([]Condition, bool) {
	if cond.LastTransitionTime.IsZero() {
		cond.LastTransitionTime = time.Now()
	}
	for i, existing := range conditions {
		if existing.Type != cond.Type {
			continue
		}
		if existing.Status == cond.Status &&
			existing.Reason == cond.Reason &&
			existing.Message == cond.Message {
			return conditions, false
		}
		if existing.Status == cond.Status {
			cond.LastTransitionTime = existing.LastTransitionTime
		}
		conditions[i] = cond
		return conditions, true
	}
	return append(conditions, cond), true
}

// FindCondition returns the condition of the given type, or nil.
func FindCondition(conditions []Condition, condType string) *Condition {
	for i := range conditions {
		if conditions[i].Type == condType {
			return &conditions[i]
		}
	}
	return nil
}

// RemoveCondition deletes the condition of the given type if present.
// Returns the updated slice and whether a condition was removed.
func RemoveCondition(conditions []Condition, condType string) ([]Condition, bool) {
	for i := range conditions {
		if conditions[i].Type == condType {
			return append(conditions[:i], conditions[i+1:]...), true
		}
	}
	return conditions, false
}
