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

// Package retry runs an operation with bounded exponential backoff. Only
// errors accepted by the caller's classifier are retried.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Clock abstracts waiting so tests can drive backoff without real sleeps.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall-clock implementation of Clock.
var SystemClock Clock = realClock{}

// Policy describes how many times to try and how long to wait in between.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
	Clock        Clock
}

// DefaultPolicy is 3 attempts, 5s initial delay, doubling (5s, 10s).
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: 5 * time.Second,
		Multiplier:   2,
		Clock:        SystemClock,
	}
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. The last error is returned.
func Do(ctx context.Context, p Policy, retryable Classifier, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = SystemClock
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	delay := p.InitialDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			slog.Info("retrying operation",
				"attempt", attempt,
				"max_attempts", attempts,
			)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		if retryable == nil || !retryable(err) {
			return err
		}

		if attempt == attempts {
			break
		}

		slog.Warn("retryable failure, backing off",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(delay):
		}
		delay = time.Duration(float64(delay) * mult)
	}

	return err
}
