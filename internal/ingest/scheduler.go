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

package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AyushRauniyar/RFP-Management-System/internal/mailbox"
	"github.com/AyushRauniyar/RFP-Management-System/internal/retry"
)

const (
	DefaultPollInterval = 5 * time.Minute
	DefaultStartupDelay = 2 * time.Second
)

// Poller runs one mail poll.
type Poller interface {
	PollOnce(ctx context.Context) (int, error)
}

// SchedulerConfig holds timing for scheduled polls.
type SchedulerConfig struct {
	Interval     time.Duration
	StartupDelay time.Duration
	Retry        retry.Policy
}

// Scheduler polls on startup and then on a fixed interval. Network
// failures are retried with backoff; everything else waits for the next
// tick.
type Scheduler struct {
	poller Poller
	cfg    SchedulerConfig

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(p Poller, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Retry.Clock == nil {
		cfg.Retry.Clock = retry.SystemClock
	}
	return &Scheduler{poller: p, cfg: cfg}
}

// Start begins polling. It is a no-op if already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		slog.Info("mail scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{}
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.run(ctx) }))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(cron.Every(s.cfg.Interval), job)
	c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-s.cfg.Retry.Clock.After(s.cfg.StartupDelay):
		}
		job.Run()
	}()

	s.cron = c
	s.cancel = cancel
	s.running = true

	slog.Info("mail scheduler started",
		"interval", s.cfg.Interval,
		"startup_delay", s.cfg.StartupDelay,
	)
}

// Stop cancels in-flight polls and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.running = false

	slog.Info("mail scheduler stopped")
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	err := retry.Do(ctx, s.cfg.Retry, mailbox.IsNetwork, func(ctx context.Context) error {
		_, err := s.poller.PollOnce(ctx)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrPollInProgress):
		slog.Info("scheduled mail check skipped, poll already in progress")
	case ctx.Err() != nil:
		slog.Info("scheduled mail check cancelled")
	default:
		slog.Error("scheduled mail check failed",
			"error", err,
			"network", mailbox.IsNetwork(err),
		)
	}
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
