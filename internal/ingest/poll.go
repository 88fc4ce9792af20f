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
	"fmt"
	"log/slog"
	"time"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// ErrPollInProgress is returned when a poll is already running here or,
// with a lease configured, on another instance.
var ErrPollInProgress = errors.New("mail poll already in progress")

const leaseReleaseTimeout = 5 * time.Second

// Stats counts message outcomes for one poll.
type Stats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// CheckResult is the manual trigger's report.
type CheckResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Stats   Stats  `json:"stats"`

	Err error `json:"-"`
}

// Polling reports whether a poll is running in this process.
func (o *Orchestrator) Polling() bool {
	return o.polling.Load()
}

// PollOnce drains the mailbox once and returns how many messages were
// stored. Overlapping calls fail fast with ErrPollInProgress.
func (o *Orchestrator) PollOnce(ctx context.Context) (int, error) {
	n, _, err := o.poll(ctx)
	return n, err
}

// CheckNow is the manual trigger. It never retries.
func (o *Orchestrator) CheckNow(ctx context.Context) CheckResult {
	n, stats, err := o.poll(ctx)
	if err != nil {
		return CheckResult{Count: n, Error: err.Error(), Stats: stats, Err: err}
	}
	return CheckResult{
		Success: true,
		Count:   n,
		Message: fmt.Sprintf("Processed %d new email(s)", n),
		Stats:   stats,
	}
}

func (o *Orchestrator) poll(ctx context.Context) (int, Stats, error) {
	var stats Stats

	if !o.polling.CompareAndSwap(false, true) {
		return 0, stats, ErrPollInProgress
	}
	defer o.polling.Store(false)

	if o.cfg.Lease != nil {
		ok, err := o.cfg.Lease.Acquire(ctx)
		if err != nil {
			return 0, stats, fmt.Errorf("acquire poll lease: %w", err)
		}
		if !ok {
			return 0, stats, ErrPollInProgress
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
			defer cancel()
			if err := o.cfg.Lease.Release(rctx); err != nil {
				slog.Warn("failed to release poll lease", "error", err)
			}
		}()
	}

	allow, err := o.cfg.Store.RecipientEmails(ctx)
	if err != nil {
		return 0, stats, fmt.Errorf("load vendor allow-list: %w", err)
	}

	start := time.Now()
	n, err := o.cfg.Mailbox.FetchUnseen(ctx, func(ctx context.Context, msg *models.InboundMessage) bool {
		res, err := o.safeProcess(ctx, msg, allow)
		switch {
		case err != nil:
			stats.Failed++
			slog.Error("failed to process message",
				"uid", msg.UID,
				"subject", msg.Subject,
				"from", msg.SenderEmail(),
				"error", err,
			)
			return false
		case res.Outcome == OutcomeSkipped:
			stats.Skipped++
			slog.Info("message skipped",
				"subject", msg.Subject,
				"from", msg.SenderEmail(),
				"reason", res.Reason,
			)
			return false
		default:
			stats.Processed++
			slog.Info("vendor reply stored",
				"subject", msg.Subject,
				"from", msg.SenderEmail(),
				"rfp_id", res.RFPID,
				"vendor_id", res.VendorID,
				"conversation_id", res.ConversationID,
				"match_tier", res.Tier.String(),
				"created", res.Created,
			)
			return true
		}
	})

	slog.Info("mail poll finished",
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", time.Since(start),
	)

	if err != nil {
		return n, stats, fmt.Errorf("fetch unseen mail: %w", err)
	}
	return n, stats, nil
}

// safeProcess keeps a panic in one message from ending the batch.
func (o *Orchestrator) safeProcess(ctx context.Context, msg *models.InboundMessage, allow map[string]struct{}) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message: %v", r)
		}
	}()
	return o.process(ctx, msg, allow)
}
