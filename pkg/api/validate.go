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
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// ValidationError reports a malformed object rejected before reaching the
// store. Invalid objects are never stored and never reconciled.
type ValidationError struct {
	Key    ObjectKey
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid object %s: field %q: %s", e.Key, e.Field, e.Detail)
}

// ValidateObject checks structural validity of an object on submission.
//
// Names and namespaces must be DNS-1123 subdomains, label keys qualified
// names, and per-kind spec payloads must carry the matching spec type with
// sane field values.
func ValidateObject(o *Object) error {
	if o.Kind == "" {
		return &ValidationError{Key: o.Key(), Field: "kind", Detail: "must not be empty"}
	}
	if errs := validation.IsDNS1123Subdomain(o.Name); len(errs) > 0 {
		return &ValidationError{Key: o.Key(), Field: "name", Detail: strings.Join(errs, "; ")}
	}
	if o.Namespace != "" {
		if errs := validation.IsDNS1123Label(o.Namespace); len(errs) > 0 {
			return &ValidationError{Key: o.Key(), Field: "namespace", Detail: strings.Join(errs, "; ")}
		}
	}
	for k, v := range o.Labels {
		if errs := validation.IsQualifiedName(k); len(errs) > 0 {
			return &ValidationError{Key: o.Key(), Field: "labels", Detail: fmt.Sprintf("key %q: %s", k, strings.Join(errs, "; "))}
		}
		if errs := validation.IsValidLabelValue(v); len(errs) > 0 {
			return &ValidationError{Key: o.Key(), Field: "labels", Detail: fmt.Sprintf("value %q: %s", v, strings.Join(errs, "; "))}
		}
	}
	controllers := 0
	for _, ref := range o.OwnerReferences {
		if ref.Kind == "" || ref.Name == "" {
			return &ValidationError{Key: o.Key(), Field: "ownerReferences", Detail: "kind and name must not be empty"}
		}
		if ref.Controller {
			controllers++
		}
	}
	if controllers > 1 {
		return &ValidationError{Key: o.Key(), Field: "ownerReferences", Detail: "at most one controller owner allowed"}
	}
	return validateSpec(o)
}

// validateSpec checks the per-kind spec payload.
func validateSpec(o *Object) error {
	switch o.Kind {
	case KindWorkload:
		spec, ok := o.Spec.(WorkloadSpec)
		if !ok {
			return specTypeError(o, "WorkloadSpec")
		}
		if spec.Replicas < 0 {
			return &ValidationError{Key: o.Key(), Field: "spec.replicas", Detail: "must not be negative"}
		}
		if spec.Strategy.MaxSurge < 0 || spec.Strategy.MaxUnavailable < 0 {
			return &ValidationError{Key: o.Key(), Field: "spec.strategy", Detail: "maxSurge and maxUnavailable must not be negative"}
		}
		if spec.Strategy.Order != "" && spec.Strategy.Order != OrderSurge && spec.Strategy.Order != OrderRecreate {
			return &ValidationError{Key: o.Key(), Field: "spec.strategy.order", Detail: fmt.Sprintf("unknown order %q", spec.Strategy.Order)}
		}
		return validatePlacement(o, spec.Placement)
	case KindUnit:
		spec, ok := o.Spec.(UnitSpec)
		if !ok {
			return specTypeError(o, "UnitSpec")
		}
		return validatePlacement(o, spec.Placement)
	case KindTarget:
		if _, ok := o.Spec.(TargetSpec); !ok {
			return specTypeError(o, "TargetSpec")
		}
		if o.Namespace != "" {
			return &ValidationError{Key: o.Key(), Field: "namespace", Detail: "targets are cluster-scoped"}
		}
		return nil
	default:
		// Unknown kinds pass through: the store is kind-agnostic and tests
		// register synthetic kinds.
		return nil
	}
}

func validatePlacement(o *Object, p Placement) error {
	for i, pref := range p.Preferences {
		if pref.Weight < 1 || pref.Weight > 100 {
			return &ValidationError{
				Key:    o.Key(),
				Field:  fmt.Sprintf("spec.placement.preferences[%d].weight", i),
				Detail: "must be in [1,100]",
			}
		}
	}
	if aa := p.AntiAffinity; aa != nil {
		if aa.TopologyKey == "" {
			return &ValidationError{Key: o.Key(), Field: "spec.placement.antiAffinity.topologyKey", Detail: "must not be empty"}
		}
		if !aa.Hard && aa.Weight < 0 {
			return &ValidationError{Key: o.Key(), Field: "spec.placement.antiAffinity.weight", Detail: "must not be negative"}
		}
	}
	return nil
}

func specTypeError(o *Object, want string) error {
	return &ValidationError{
		Key:    o.Key(),
		Field:  "spec",
		Detail: fmt.Sprintf("kind %s requires a %s payload, got %T", o.Kind, want, o.Spec),
	}
}
