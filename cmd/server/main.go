// Copyright (c) 2026 John Earle
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

// Procurement inbox ingestion service.
//
// Entry point for the long-running service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL (or falls back to memory) and Redis
//  3. Builds the Gemini client and the ingestion pipeline
//  4. Starts the polling scheduler
//  5. Serves the manual check, review API and health endpoint
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/AyushRauniyar/RFP-Management-System/internal/api"
	"github.com/AyushRauniyar/RFP-Management-System/internal/app"
	"github.com/AyushRauniyar/RFP-Management-System/internal/config"
	"github.com/AyushRauniyar/RFP-Management-System/internal/ingest"
	"github.com/AyushRauniyar/RFP-Management-System/internal/retry"
)

func main() {
	app.SetupLogging(slog.LevelInfo)

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	app.SetupLogging(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	slog.Info("starting procurement ingestion service",
		"mailbox", cfg.Mailbox.Username,
		"poll_interval", cfg.Scheduler.Interval,
		"database", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Wire Components ---
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- Scheduler ---
	policy := retry.DefaultPolicy()
	policy.Attempts = cfg.Scheduler.RetryAttempts
	policy.InitialDelay = cfg.Scheduler.RetryDelay
	sched := ingest.NewScheduler(a.Orchestrator, ingest.SchedulerConfig{
		Interval:     cfg.Scheduler.Interval,
		StartupDelay: cfg.Scheduler.StartupDelay,
		Retry:        policy,
	})

	// --- HTTP Server ---
	srvCfg := api.Config{
		Checker:       a.Orchestrator,
		Reviewer:      a.Review,
		Conversations: a.Store,
		Store:         a.Store,
		Scheduler:     sched,
	}
	if a.Publisher != nil {
		srvCfg.Redis = a.Publisher
	}
	ready, err := api.Serve(ctx, fmt.Sprintf(":%d", cfg.Port), api.NewServer(srvCfg).Handler())
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	sched.Start(ctx)

	// --- Graceful Shutdown ---
	<-ctx.Done()
	slog.Info("received shutdown signal")
	sched.Stop()
	slog.Info("procurement ingestion service stopped")
}
