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

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the configuration for structural errors. It returns the
// first problem found, or nil.
func Validate(cfg *Config) error {
	switch strings.ToUpper(strings.TrimSpace(cfg.Logging.Level)) {
	case "ERROR", "WARNING", "WARN", "INFO", "DEBUG":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}

	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers: must be at least 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.MaxRetries < 1 {
		return fmt.Errorf("engine.max_retries: must be at least 1, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.WatchBuffer < 1 {
		return fmt.Errorf("engine.watch_buffer: must be at least 1, got %d", cfg.Engine.WatchBuffer)
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port: invalid port %d", cfg.Metrics.Port)
	}

	durations := []struct {
		field string
		value string
	}{
		{"engine.base_delay", cfg.Engine.BaseDelay},
		{"engine.max_delay", cfg.Engine.MaxDelay},
		{"scheduler.unschedulable_retry", cfg.Scheduler.UnschedulableRetry},
		{"status.debounce_window", cfg.Status.DebounceWindow},
		{"runtime.startup_delay", cfg.Runtime.StartupDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", d.field, d.value, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s: duration must be positive, got %q", d.field, d.value)
		}
	}

	if cfg.Engine.GetBaseDelay() > cfg.Engine.GetMaxDelay() {
		return fmt.Errorf("engine.base_delay %s exceeds engine.max_delay %s",
			cfg.Engine.GetBaseDelay(), cfg.Engine.GetMaxDelay())
	}

	return nil
}
