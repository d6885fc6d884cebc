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

// Package main provides the CLI entrypoint for the kondense controller.
//
// The controller accepts configuration via CLI flags, environment variables, or defaults:
//
//   - Config file: --config flag, CONFIG_FILE env var, or built-in defaults
//   - Manifest file: --manifest flag, MANIFEST_FILE env var, or no seeding
//
// The controller runs until receiving SIGTERM or SIGINT, at which point it
// performs graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit"

	"kondense/pkg/controller"
	coreconfig "kondense/pkg/core/config"
	"kondense/pkg/core/logging"
)

func main() {
	var (
		configPath   string
		manifestPath string
	)

	flag.StringVar(&configPath, "config", "",
		"Path to the controller configuration file (env: CONFIG_FILE)")
	flag.StringVar(&manifestPath, "manifest", "",
		"Path to the manifest declaring targets and workloads (env: MANIFEST_FILE)")
	flag.Parse()

	// Configuration priority: CLI flags > Environment variables > Defaults

	if configPath == "" {
		configPath = os.Getenv("CONFIG_FILE")
	}
	if manifestPath == "" {
		manifestPath = os.Getenv("MANIFEST_FILE")
	}

	cfg, err := coreconfig.LoadConfigFile(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := coreconfig.Validate(cfg); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// VERBOSE overrides the configured log level.
	// 0 = WARNING, 1 = INFO (default), 2 = DEBUG
	level := cfg.Logging.Level
	switch os.Getenv("VERBOSE") {
	case "0":
		level = "WARNING"
	case "2":
		level = "DEBUG"
	}

	logger := logging.NewLogger(level)
	slog.SetDefault(logger)

	// Log detected resource limits for observability
	gomaxprocs := runtime.GOMAXPROCS(0)
	var gomemlimit string
	if limit := debug.SetMemoryLimit(-1); limit != math.MaxInt64 {
		gomemlimit = fmt.Sprintf("%d bytes (%.2f MiB)", limit, float64(limit)/(1024*1024))
	} else {
		gomemlimit = "unlimited"
	}

	logger.Info("kondense starting",
		"version", "v0.1.0",
		"config", configPath,
		"manifest", manifestPath,
		"log_level", level,
		"gomaxprocs", gomaxprocs,
		"gomemlimit", gomemlimit)

	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := controller.Run(ctx, cfg, manifestPath, logger); err != nil {
		if ctx.Err() == nil {
			logger.Error("Controller failed", "error", err)
			cancel()
			os.Exit(1) //nolint:gocritic // exitAfterDefer: cancel() called explicitly before exit
		}
	}

	logger.Info("Controller shutdown complete")
}
