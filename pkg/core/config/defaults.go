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

package config

import "time"

// Default values for configuration fields.
const (
	// DefaultWorkers is the default reconciliation worker pool size.
	DefaultWorkers = 4

	// DefaultBaseDelay is the default initial retry backoff.
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay is the default retry backoff cap.
	DefaultMaxDelay = 5 * time.Minute

	// DefaultMaxRetries is the default retry budget per object.
	DefaultMaxRetries = 12

	// DefaultWatchBuffer is the default per-subscription queue size.
	DefaultWatchBuffer = 256

	// DefaultUnschedulableRetry is the default timed retry for
	// unschedulable units.
	DefaultUnschedulableRetry = 30 * time.Second

	// DefaultDebounceWindow is the default status write coalescing window.
	DefaultDebounceWindow = 100 * time.Millisecond

	// DefaultMetricsPort is the default port for Prometheus metrics.
	DefaultMetricsPort = 9090

	// DefaultStartupDelay is the default time for bound units to report
	// ready.
	DefaultStartupDelay = 250 * time.Millisecond
)

// setDefaults applies default values to unset configuration fields.
// This modifies the config in-place and runs after parsing, before
// validation.
func setDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = DefaultWorkers
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = DefaultMaxRetries
	}
	if cfg.Engine.WatchBuffer == 0 {
		cfg.Engine.WatchBuffer = DefaultWatchBuffer
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}
