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

// Package config provides data models for the kernel configuration.
//
// These models represent the structure of the configuration YAML passed on
// the command line. Duration fields are strings in Go duration syntax
// ("500ms", "5m"); typed accessors parse them with safe defaults.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	// Logging configures logging behavior.
	Logging LoggingConfig `yaml:"logging"`

	// Engine configures the reconciler engine.
	Engine EngineConfig `yaml:"engine"`

	// Scheduler configures unit placement.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Status configures the status aggregator.
	Status StatusConfig `yaml:"status"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Runtime configures the built-in unit runtime.
	Runtime RuntimeConfig `yaml:"runtime"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level is one of ERROR, WARNING, INFO, DEBUG. Defaults to INFO.
	Level string `yaml:"level"`
}

// EngineConfig configures the reconciler engine.
type EngineConfig struct {
	// Workers is the reconciliation worker pool size.
	Workers int `yaml:"workers"`

	// BaseDelay is the initial per-key retry backoff.
	BaseDelay string `yaml:"base_delay"`

	// MaxDelay caps the per-key retry backoff.
	MaxDelay string `yaml:"max_delay"`

	// MaxRetries is the retry budget before a failure is surfaced into
	// status conditions instead of retried.
	MaxRetries int `yaml:"max_retries"`

	// WatchBuffer is the per-subscription event queue size.
	WatchBuffer int `yaml:"watch_buffer"`
}

// SchedulerConfig configures unit placement.
type SchedulerConfig struct {
	// UnschedulableRetry is how long to wait before retrying an
	// unschedulable unit absent any cluster-state change.
	UnschedulableRetry string `yaml:"unschedulable_retry"`
}

// StatusConfig configures the status aggregator.
type StatusConfig struct {
	// DebounceWindow coalesces child updates into one parent status write.
	DebounceWindow string `yaml:"debounce_window"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Port serves /metrics and /healthz. 0 disables the server.
	Port int `yaml:"port"`
}

// RuntimeConfig configures the built-in unit runtime, which simulates units
// starting up on their targets.
type RuntimeConfig struct {
	// StartupDelay is how long a bound unit takes to report ready.
	StartupDelay string `yaml:"startup_delay"`
}

// GetBaseDelay returns the parsed base delay.
func (c *EngineConfig) GetBaseDelay() time.Duration {
	return parseDuration(c.BaseDelay, DefaultBaseDelay)
}

// GetMaxDelay returns the parsed backoff cap.
func (c *EngineConfig) GetMaxDelay() time.Duration {
	return parseDuration(c.MaxDelay, DefaultMaxDelay)
}

// GetUnschedulableRetry returns the parsed retry interval.
func (c *SchedulerConfig) GetUnschedulableRetry() time.Duration {
	return parseDuration(c.UnschedulableRetry, DefaultUnschedulableRetry)
}

// GetDebounceWindow returns the parsed debounce window.
func (c *StatusConfig) GetDebounceWindow() time.Duration {
	return parseDuration(c.DebounceWindow, DefaultDebounceWindow)
}

// GetStartupDelay returns the parsed startup delay.
func (c *RuntimeConfig) GetStartupDelay() time.Duration {
	return parseDuration(c.StartupDelay, DefaultStartupDelay)
}

// parseDuration parses a duration string, falling back to def for empty or
// invalid values. Validation reports invalid strings before this is reached.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
