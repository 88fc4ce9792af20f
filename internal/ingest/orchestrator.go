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

// Package ingest turns unseen vendor replies into conversations awaiting
// review.
//
// Each message runs through a filter chain: known sender, RFP reply
// subject, non-empty content, matched RFP, known vendor, parsed quote.
// Survivors are upserted as the single conversation for their
// (RFP, vendor) pair and advance the RFP from sent to responses_received.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AyushRauniyar/RFP-Management-System/internal/extract"
	"github.com/AyushRauniyar/RFP-Management-System/internal/mailbox"
	"github.com/AyushRauniyar/RFP-Management-System/internal/matcher"
	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
	"github.com/AyushRauniyar/RFP-Management-System/internal/quote"
	"github.com/AyushRauniyar/RFP-Management-System/internal/store"
)

// ErrVendorMissing means the sender passed the allow-list but has no
// vendor row.
var ErrVendorMissing = errors.New("vendor record missing")

// Skip reasons reported in Result.Reason.
const (
	ReasonUnknownSender = "unknown_sender"
	ReasonNotRFPReply   = "not_rfp_reply"
	ReasonEmptyContent  = "empty_content"
	ReasonNoMatchingRFP = "no_matching_rfp"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	RecipientEmails(ctx context.Context) (map[string]struct{}, error)
	VendorByEmail(ctx context.Context, email string) (*models.Vendor, error)
	// RecordReply upserts the conversation and advances a sent RFP to
	// responses_received as one unit.
	RecordReply(ctx context.Context, c *models.Conversation) (created, advanced bool, err error)
}

// Fetcher drains unseen mail into a handler.
type Fetcher interface {
	FetchUnseen(ctx context.Context, handler mailbox.Handler) (int, error)
}

// RFPMatcher resolves the RFP a reply belongs to.
type RFPMatcher interface {
	MatchRFP(ctx context.Context, subject, vendorEmail string) (*models.RFP, matcher.Tier, error)
}

// ContentExtractor renders attachments as text.
type ContentExtractor interface {
	ExtractAll(ctx context.Context, atts []models.Attachment) string
}

// QuoteParser turns reply text into a structured quote.
type QuoteParser interface {
	Parse(ctx context.Context, text string, rfp *models.RFP) (models.ParsedQuote, error)
}

// Notifier announces conversations entering review.
type Notifier interface {
	NotifyReview(ctx context.Context, c *models.Conversation, created bool) error
}

// Locker is a cross-instance poll lease.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Config wires the orchestrator. Notifier and Lease are optional.
type Config struct {
	Mailbox   Fetcher
	Store     Store
	Matcher   RFPMatcher
	Extractor ContentExtractor
	Parser    QuoteParser
	Notifier  Notifier
	Lease     Locker
}

// Outcome classifies a message that did not fail.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeStored
)

func (o Outcome) String() string {
	if o == OutcomeStored {
		return "stored"
	}
	return "skipped"
}

// Result describes what happened to one message.
type Result struct {
	Outcome        Outcome
	Reason         string
	ConversationID string
	RFPID          string
	VendorID       string
	Tier           matcher.Tier
	Created        bool
}

// Orchestrator runs the ingestion pipeline.
type Orchestrator struct {
	cfg     Config
	polling atomic.Bool
	pairs   pairLocks
	now     func() time.Time
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		pairs: pairLocks{m: make(map[string]*pairLock)},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ProcessMessage runs one message through the pipeline.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg *models.InboundMessage) (Result, error) {
	allow, err := o.cfg.Store.RecipientEmails(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load vendor allow-list: %w", err)
	}
	return o.process(ctx, msg, allow)
}

func (o *Orchestrator) process(ctx context.Context, msg *models.InboundMessage, allow map[string]struct{}) (Result, error) {
	if msg.ParseErr != nil {
		return Result{}, fmt.Errorf("parse message: %w", msg.ParseErr)
	}
	sender := msg.SenderEmail()

	if _, ok := allow[sender]; !ok {
		return skipped(ReasonUnknownSender), nil
	}
	if !IsRFPReply(msg.Subject) {
		return skipped(ReasonNotRFPReply), nil
	}

	var attachmentText string
	if len(msg.Attachments) > 0 && o.cfg.Extractor != nil {
		attachmentText = o.cfg.Extractor.ExtractAll(ctx, msg.Attachments)
	}
	content := extract.Combine(BodyText(msg), attachmentText)
	if content == "" {
		return skipped(ReasonEmptyContent), nil
	}

	rfp, tier, err := o.cfg.Matcher.MatchRFP(ctx, msg.Subject, sender)
	if err != nil {
		return Result{}, fmt.Errorf("match rfp: %w", err)
	}
	if rfp == nil {
		return skipped(ReasonNoMatchingRFP), nil
	}

	vendor, err := o.cfg.Store.VendorByEmail(ctx, sender)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %s", ErrVendorMissing, sender)
	}
	if err != nil {
		return Result{}, fmt.Errorf("lookup vendor: %w", err)
	}

	q, err := o.cfg.Parser.Parse(ctx, content, rfp)
	if err != nil {
		return Result{}, fmt.Errorf("parse quote: %w", err)
	}
	if q.TotalAmount == 0 {
		q.TotalAmount = quote.SumItems(q.Items)
	}

	received := msg.Date
	if received.IsZero() {
		received = o.now()
	}
	conv := &models.Conversation{
		RFPID:           rfp.ID,
		VendorID:        vendor.ID,
		SourceMessageID: msg.MessageID,
		EmailSubject:    msg.Subject,
		EmailContent:    content,
		Quote:           q,
		ReceivedAt:      received,
		ParsedAt:        o.now(),
	}

	created, err := o.persist(ctx, conv, rfp)
	if err != nil {
		return Result{}, err
	}

	if o.cfg.Notifier != nil {
		if err := o.cfg.Notifier.NotifyReview(ctx, conv, created); err != nil {
			slog.Warn("review notification failed",
				"rfp_id", rfp.ID,
				"vendor_id", vendor.ID,
				"error", err,
			)
		}
	}

	return Result{
		Outcome:        OutcomeStored,
		ConversationID: conv.ID,
		RFPID:          rfp.ID,
		VendorID:       vendor.ID,
		Tier:           tier,
		Created:        created,
	}, nil
}

// persist records the conversation and the RFP status advance together
// while holding the pair lock. A failure leaves neither written.
func (o *Orchestrator) persist(ctx context.Context, conv *models.Conversation, rfp *models.RFP) (bool, error) {
	unlock := o.pairs.lock(conv.RFPID + "\x00" + conv.VendorID)
	defer unlock()

	created, advanced, err := o.cfg.Store.RecordReply(ctx, conv)
	if err != nil {
		return false, fmt.Errorf("record reply: %w", err)
	}
	if advanced {
		slog.Info("rfp status advanced",
			"rfp_id", rfp.ID,
			"status", models.RFPResponsesReceived,
		)
	}
	return created, nil
}

// IsRFPReply reports whether a subject looks like a reply to an RFP.
func IsRFPReply(subject string) bool {
	s := strings.ToLower(subject)
	return strings.Contains(s, "re:") && strings.Contains(s, "rfp")
}

func skipped(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

// pairLocks serialises work on one (RFP, vendor) pair. Entries are
// dropped when their last holder unlocks.
type pairLocks struct {
	mu sync.Mutex
	m  map[string]*pairLock
}

type pairLock struct {
	sync.Mutex
	refs int
}

func (p *pairLocks) lock(key string) func() {
	p.mu.Lock()
	l, ok := p.m[key]
	if !ok {
		l = &pairLock{}
		p.m[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.m, key)
		}
		p.mu.Unlock()
	}
}
