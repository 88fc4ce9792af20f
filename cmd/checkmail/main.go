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

// Manual mail check command.
//
// Runs one poll of the procurement inbox and prints the result as JSON.
// With -dry-run, unseen messages are listed without being marked seen or
// stored.
//
// Usage:
//
//	go run ./cmd/checkmail/ [-dry-run] [-max 10]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AyushRauniyar/RFP-Management-System/internal/app"
	"github.com/AyushRauniyar/RFP-Management-System/internal/config"
	"github.com/AyushRauniyar/RFP-Management-System/internal/ingest"
	"github.com/AyushRauniyar/RFP-Management-System/internal/mailbox"
	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// candidate is one unseen message as reported by a dry run.
type candidate struct {
	UID         uint32    `json:"uid"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	Date        time.Time `json:"date"`
	RFPReply    bool      `json:"rfpReply"`
	Attachments int       `json:"attachments"`
	Error       string    `json:"error,omitempty"`
}

func main() {
	// --- CLI Flags ---
	dryRun := flag.Bool("dry-run", false, "List unseen candidates without storing or marking them seen")
	maxFlag := flag.Int("max", 0, "Maximum messages per run (0 = configured value)")
	flag.Parse()

	app.SetupLogging(slog.LevelWarn)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *maxFlag > 0 {
		cfg.Mailbox.MaxMessages = *maxFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if *dryRun {
		os.Exit(listCandidates(ctx, cfg))
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	res := a.Orchestrator.CheckNow(ctx)
	printJSON(res)
	if !res.Success {
		a.Close()
		os.Exit(1)
	}
}

// listCandidates prints unseen messages without touching the store.
func listCandidates(ctx context.Context, cfg *config.Config) int {
	mb := mailbox.New(app.MailboxConfig(ctx, cfg.Mailbox, true))

	var out []candidate
	_, err := mb.FetchUnseen(ctx, func(_ context.Context, msg *models.InboundMessage) bool {
		c := candidate{
			UID:         msg.UID,
			From:        msg.From.Address,
			Subject:     msg.Subject,
			Date:        msg.Date,
			RFPReply:    ingest.IsRFPReply(msg.Subject),
			Attachments: len(msg.Attachments),
		}
		if msg.ParseErr != nil {
			c.Error = msg.ParseErr.Error()
		}
		out = append(out, c)
		return true
	})
	if err != nil {
		printJSON(ingest.CheckResult{Error: err.Error()})
		return 1
	}
	if out == nil {
		out = []candidate{}
	}
	printJSON(out)
	return 0
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode result: %v\n", err)
	}
}
