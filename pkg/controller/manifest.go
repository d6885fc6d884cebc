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

package controller

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"kondense/pkg/api"
	"kondense/pkg/store"
)

// Manifest is the declarative seed document loaded at startup. It declares
// the targets and workloads the controller should converge towards.
type Manifest struct {
	Targets   []TargetEntry   `yaml:"targets"`
	Workloads []WorkloadEntry `yaml:"workloads"`
}

// TargetEntry declares a placement target.
type TargetEntry struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
	Spec   api.TargetSpec    `yaml:"spec,omitempty"`
}

// WorkloadEntry declares a workload and its desired spec.
type WorkloadEntry struct {
	Name      string            `yaml:"name"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels,omitempty"`
	Spec      api.WorkloadSpec  `yaml:"spec"`
}

// LoadManifest parses a manifest document from YAML.
func LoadManifest(manifestYAML string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal([]byte(manifestYAML), &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// LoadManifestFile reads and parses a manifest from a file path.
// An empty path yields an empty manifest.
func LoadManifestFile(path string) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file %q: %w", path, err)
	}
	return LoadManifest(string(data))
}

// Validate checks the manifest for structural problems before seeding.
func (m *Manifest) Validate() error {
	for i, t := range m.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}
	}
	for i, w := range m.Workloads {
		if w.Name == "" {
			return fmt.Errorf("workload %d: name is required", i)
		}
		if w.Namespace == "" {
			return fmt.Errorf("workload %q: namespace is required", w.Name)
		}
		if w.Spec.Replicas < 0 {
			return fmt.Errorf("workload %q: replicas must not be negative", w.Name)
		}
	}
	return nil
}

// Seed writes the manifest's objects into the store. Objects that already
// exist are updated in place; seeding is idempotent across restarts.
func (m *Manifest) Seed(st *store.Store, logger *slog.Logger) error {
	for _, t := range m.Targets {
		obj := &api.Object{
			Kind:   api.KindTarget,
			Name:   t.Name,
			Labels: t.Labels,
			Spec:   t.Spec,
		}
		if err := seedObject(st, obj); err != nil {
			return fmt.Errorf("failed to seed target %q: %w", t.Name, err)
		}
	}
	for _, w := range m.Workloads {
		obj := &api.Object{
			Kind:      api.KindWorkload,
			Namespace: w.Namespace,
			Name:      w.Name,
			Labels:    w.Labels,
			Spec:      w.Spec,
		}
		if err := seedObject(st, obj); err != nil {
			return fmt.Errorf("failed to seed workload %s/%s: %w", w.Namespace, w.Name, err)
		}
	}
	logger.Info("manifest seeded",
		"targets", len(m.Targets),
		"workloads", len(m.Workloads))
	return nil
}

func seedObject(st *store.Store, obj *api.Object) error {
	current, err := st.Get(obj.Kind, obj.Namespace, obj.Name)
	if store.IsNotFound(err) {
		_, err = st.Put(obj, 0)
		return err
	}
	if err != nil {
		return err
	}
	_, err = st.Put(obj, current.ResourceVersion)
	return err
}
