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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyushRauniyar/RFP-Management-System/internal/extract"
	"github.com/AyushRauniyar/RFP-Management-System/internal/mailbox"
	"github.com/AyushRauniyar/RFP-Management-System/internal/matcher"
	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
	"github.com/AyushRauniyar/RFP-Management-System/internal/quote"
	"github.com/AyushRauniyar/RFP-Management-System/internal/store"
)

const laptopQuoteJSON = `{
	"items": [
		{"description": "Laptop", "quantity": 15, "unitPrice": 1250},
		{"description": "Monitor", "quantity": 15, "unitPrice": 700}
	],
	"totalCost": 0,
	"deliveryTimeline": "21 days",
	"paymentTerms": "",
	"warranty": "2 years"
}`

// scriptedCompleter answers every prompt with out, or fails when the
// prompt contains failOn.
type scriptedCompleter struct {
	mu     sync.Mutex
	out    string
	failOn string
	calls  int
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failOn != "" && strings.Contains(prompt, c.failOn) {
		return "", errors.New("model unavailable")
	}
	return c.out, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []bool
	err     error
}

func (n *recordingNotifier) NotifyReview(_ context.Context, _ *models.Conversation, created bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, created)
	return n.err
}

type env struct {
	store     *store.Memory
	completer *scriptedCompleter
	notifier  *recordingNotifier
	orch      *Orchestrator
	vendor    models.Vendor
	rfp       models.RFP
}

func newEnv(t *testing.T, mbox Fetcher) *env {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemory()
	v := &models.Vendor{Name: "Acme", Email: "sales@acme.com"}
	require.NoError(t, s.CreateVendor(ctx, v))
	r := &models.RFP{
		ID:         "rfp-it",
		Title:      "IT Equipment Procurement",
		Status:     models.RFPSent,
		Recipients: []models.Vendor{*v},
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.CreateRFP(ctx, r))

	c := &scriptedCompleter{out: laptopQuoteJSON}
	n := &recordingNotifier{}
	o := New(Config{
		Mailbox:   mbox,
		Store:     s,
		Matcher:   matcher.New(s),
		Extractor: extract.New(nil),
		Parser:    quote.NewExtractor(c),
		Notifier:  n,
	})
	return &env{store: s, completer: c, notifier: n, orch: o, vendor: *v, rfp: *r}
}

func reply(body string) *models.InboundMessage {
	return &models.InboundMessage{
		MessageID: "<1@acme.com>",
		Subject:   "Re: RFP: IT Equipment Procurement",
		From:      models.EmailAddress{Address: "Sales@Acme.com", Name: "Acme Sales"},
		Date:      time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		TextBody:  body,
	}
}

const quoteBody = `Thanks for the RFP.
Laptop x 15 at $1,250 each
Monitor x 15 at $700 each
Total: $29,250`

func TestProcessMessage_StoresConversationAndAdvancesRFP(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	res, err := e.orch.ProcessMessage(ctx, reply(quoteBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, res.Outcome)
	assert.True(t, res.Created)
	assert.Equal(t, "rfp-it", res.RFPID)
	assert.Equal(t, matcher.TierSubject, res.Tier)

	conv, err := e.store.FindConversation(ctx, "rfp-it", e.vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationPending, conv.Status)
	assert.Equal(t, 29250.0, conv.Quote.TotalAmount)
	assert.Equal(t, 18750.0, conv.Quote.Items[0].TotalPrice)
	assert.Equal(t, models.NotSpecified, conv.Quote.PaymentTerms)
	assert.Equal(t, "<1@acme.com>", conv.SourceMessageID)
	assert.True(t, conv.ReceivedAt.Equal(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)))

	r, err := e.store.GetRFP(ctx, "rfp-it")
	require.NoError(t, err)
	assert.Equal(t, models.RFPResponsesReceived, r.Status)

	assert.Equal(t, []bool{true}, e.notifier.created)
}

func TestProcessMessage_RevisedReplyOverwritesConversation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	first, err := e.orch.ProcessMessage(ctx, reply(quoteBody))
	require.NoError(t, err)

	reviewed := time.Now()
	require.NoError(t, e.store.SaveReview(ctx, &models.Conversation{
		ID:              first.ConversationID,
		Status:          models.ConversationRejected,
		RejectionReason: "missing warranty",
		ReviewedAt:      &reviewed,
		ReviewedBy:      "buyer",
	}))

	e.completer.out = `{"items": [{"description": "Laptop", "quantity": 15, "unitPrice": 1200}], "totalCost": 18000}`
	revised := reply("Revised offer.\nLaptop x 15 at $1,200\nTotal: $18,000")
	revised.MessageID = "<2@acme.com>"

	second, err := e.orch.ProcessMessage(ctx, revised)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	all, err := e.store.ListConversations(ctx, "rfp-it")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.ConversationPending, all[0].Status)
	assert.Empty(t, all[0].RejectionReason)
	assert.Equal(t, 18000.0, all[0].Quote.TotalAmount)
	assert.Contains(t, all[0].EmailContent, "Revised offer.")

	assert.Equal(t, []bool{true, false}, e.notifier.created)
}

func TestProcessMessage_SameMessageTwiceIsIdempotent(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	for range 2 {
		_, err := e.orch.ProcessMessage(ctx, reply(quoteBody))
		require.NoError(t, err)
	}

	all, err := e.store.ListConversations(ctx, "rfp-it")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessMessage_ConcurrentRepliesForOnePair(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	created := make(chan bool, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.orch.ProcessMessage(ctx, reply(quoteBody))
			if assert.NoError(t, err) {
				created <- res.Created
			}
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for c := range created {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)

	all, err := e.store.ListConversations(ctx, "rfp-it")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessMessage_Skips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.InboundMessage)
		reason string
	}{
		{
			name:   "sender not an rfp recipient",
			mutate: func(m *models.InboundMessage) { m.From.Address = "stranger@example.com" },
			reason: ReasonUnknownSender,
		},
		{
			name:   "subject without reply prefix",
			mutate: func(m *models.InboundMessage) { m.Subject = "RFP: IT Equipment Procurement" },
			reason: ReasonNotRFPReply,
		},
		{
			name:   "reply without rfp",
			mutate: func(m *models.InboundMessage) { m.Subject = "Re: lunch on friday" },
			reason: ReasonNotRFPReply,
		},
		{
			name: "no body and no readable attachment",
			mutate: func(m *models.InboundMessage) {
				m.TextBody = "  \n"
				m.Attachments = []models.Attachment{{Filename: "logo.png", ContentType: "image/png", Content: []byte{0x89, 'P', 'N', 'G'}}}
			},
			reason: ReasonEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			msg := reply(quoteBody)
			tt.mutate(msg)

			res, err := e.orch.ProcessMessage(context.Background(), msg)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Zero(t, e.completer.calls)
		})
	}
}

func TestProcessMessage_NoEligibleRFP(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	// The vendor is only on a draft RFP, so it passes the allow-list but
	// nothing can match.
	v := &models.Vendor{Name: "Draft Co", Email: "hello@draft.co"}
	require.NoError(t, e.store.CreateVendor(ctx, v))
	require.NoError(t, e.store.CreateRFP(ctx, &models.RFP{ID: "rfp-draft", Title: "Draft", Status: models.RFPDraft, Recipients: []models.Vendor{*v}}))

	msg := reply(quoteBody)
	msg.From.Address = "hello@draft.co"
	res, err := e.orch.ProcessMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoMatchingRFP, res.Reason)
}

func TestProcessMessage_VendorRowMissing(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	ghost := models.Vendor{ID: "ghost", Email: "ghost@example.com"}
	require.NoError(t, e.store.CreateRFP(ctx, &models.RFP{ID: "rfp-ghost", Title: "Ghost", Status: models.RFPSent, Recipients: []models.Vendor{ghost}}))

	msg := reply(quoteBody)
	msg.From.Address = "ghost@example.com"
	_, err := e.orch.ProcessMessage(ctx, msg)
	assert.ErrorIs(t, err, ErrVendorMissing)
}

func TestProcessMessage_MalformedModelOutputFails(t *testing.T) {
	e := newEnv(t, nil)
	e.completer.out = "Sorry, I cannot help with that."

	_, err := e.orch.ProcessMessage(context.Background(), reply(quoteBody))
	require.Error(t, err)
	assert.True(t, quote.IsExtractionError(err))

	_, err = e.store.FindConversation(context.Background(), "rfp-it", e.vendor.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	r, err := e.store.GetRFP(context.Background(), "rfp-it")
	require.NoError(t, err)
	assert.Equal(t, models.RFPSent, r.Status)
}

func TestProcessMessage_CorruptAttachmentKeepsBodyAndOthers(t *testing.T) {
	e := newEnv(t, nil)

	msg := reply("Please see the attached price list.")
	msg.Attachments = []models.Attachment{
		{Filename: "prices.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Content: []byte("not a zip")},
		{Filename: "lines.csv", ContentType: "text/csv", Content: []byte("item,qty,price\nLaptop,15,1250\n")},
	}

	res, err := e.orch.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, res.Outcome)

	conv, err := e.store.FindConversation(context.Background(), "rfp-it", e.vendor.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(conv.EmailContent, "Please see the attached price list.\n\n"))
	assert.Contains(t, conv.EmailContent, "=== Content from lines.csv ===")
	assert.Contains(t, conv.EmailContent, "Laptop,15,1250")
	assert.NotContains(t, conv.EmailContent, "prices.xlsx")
}

func TestProcessMessage_HTMLOnlyBody(t *testing.T) {
	e := newEnv(t, nil)

	msg := reply("")
	msg.HTMLBody = `<html><body><p>Our quote:</p><table><tr><td>Total:</td><td>$29,250</td></tr></table></body></html>`

	res, err := e.orch.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, res.Outcome)

	conv, err := e.store.FindConversation(context.Background(), "rfp-it", e.vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, "Our quote:\nTotal: $29,250", conv.EmailContent)
	assert.Equal(t, 29250.0, conv.Quote.TotalAmount)
}

func TestProcessMessage_NotificationFailureIsNotFatal(t *testing.T) {
	e := newEnv(t, nil)
	e.notifier.err = errors.New("redis down")

	res, err := e.orch.ProcessMessage(context.Background(), reply(quoteBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, res.Outcome)
}

func TestProcessMessage_LaterStatusesAreNotRegressed(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, e.store.SetRFPEvaluation(ctx, "rfp-it", models.RFPEvaluated, ""))

	_, err := e.orch.ProcessMessage(ctx, reply(quoteBody))
	require.NoError(t, err)

	r, err := e.store.GetRFP(ctx, "rfp-it")
	require.NoError(t, err)
	assert.Equal(t, models.RFPEvaluated, r.Status)
}

// vanishedRFPMatcher resolves every reply to an RFP the store no longer has.
type vanishedRFPMatcher struct{}

func (vanishedRFPMatcher) MatchRFP(context.Context, string, string) (*models.RFP, matcher.Tier, error) {
	return &models.RFP{ID: "rfp-gone", Status: models.RFPSent}, matcher.TierRecent, nil
}

func TestProcessMessage_FailedRFPUpdateLeavesNoConversation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.orch.cfg.Matcher = vanishedRFPMatcher{}

	_, err := e.orch.ProcessMessage(ctx, reply(quoteBody))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.store.FindConversation(ctx, "rfp-gone", e.vendor.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	convs, err := e.store.ListConversations(ctx, "rfp-gone")
	require.NoError(t, err)
	assert.Empty(t, convs)
	assert.Empty(t, e.notifier.created)

	r, err := e.store.GetRFP(ctx, "rfp-it")
	require.NoError(t, err)
	assert.Equal(t, models.RFPSent, r.Status)
}

func TestIsRFPReply(t *testing.T) {
	assert.True(t, IsRFPReply("Re: RFP: Laptops"))
	assert.True(t, IsRFPReply("RE: Fwd: our rfp response"))
	assert.False(t, IsRFPReply("RFP: Laptops"))
	assert.False(t, IsRFPReply("Re: Laptops"))
}

func TestHTMLToText(t *testing.T) {
	in := `<div>Hello &amp; welcome<br>Line two</div><script>alert(1)</script><ul><li>One</li><li>Two</li></ul>`
	assert.Equal(t, "Hello & welcome\nLine two\nOne\nTwo", HTMLToText(in))
}

// Poll tests

type fakeMailbox struct {
	msgs    []*models.InboundMessage
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeMailbox) FetchUnseen(ctx context.Context, handler mailbox.Handler) (int, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	n := 0
	for _, m := range f.msgs {
		if handler(ctx, m) {
			n++
		}
	}
	return n, f.err
}

type fakeLease struct {
	held     bool
	released int
}

func (l *fakeLease) Acquire(context.Context) (bool, error) { return !l.held, nil }
func (l *fakeLease) Release(context.Context) error {
	l.released++
	return nil
}

func TestPollOnce_IsolatesFailuresAndCounts(t *testing.T) {
	broken := reply("Quote attached. BROKEN")
	broken.Subject = "Re: RFP: IT Equipment Procurement (second vendor line)"
	spam := reply("win a prize")
	spam.From.Address = "promo@spam.example"

	mbox := &fakeMailbox{msgs: []*models.InboundMessage{broken, spam, reply(quoteBody)}}
	e := newEnv(t, mbox)
	e.completer.failOn = "BROKEN"

	res := e.orch.CheckNow(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "Processed 1 new email(s)", res.Message)
	assert.Equal(t, Stats{Processed: 1, Skipped: 1, Failed: 1}, res.Stats)
	assert.False(t, e.orch.Polling())
}

func TestPollOnce_CountsUnparseableMessagesAsFailed(t *testing.T) {
	garbled := &models.InboundMessage{UID: 7, ParseErr: errors.New("malformed MIME header")}
	mbox := &fakeMailbox{msgs: []*models.InboundMessage{garbled, reply(quoteBody)}}
	e := newEnv(t, mbox)

	res := e.orch.CheckNow(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, Stats{Processed: 1, Failed: 1}, res.Stats)

	_, err := e.orch.ProcessMessage(context.Background(), garbled)
	assert.ErrorContains(t, err, "parse message: malformed MIME header")
}

func TestPollOnce_RejectsOverlap(t *testing.T) {
	mbox := &fakeMailbox{
		msgs:    []*models.InboundMessage{reply(quoteBody)},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := newEnv(t, mbox)

	done := make(chan int)
	go func() {
		n, err := e.orch.PollOnce(context.Background())
		assert.NoError(t, err)
		done <- n
	}()
	<-mbox.started

	assert.True(t, e.orch.Polling())
	_, err := e.orch.PollOnce(context.Background())
	assert.ErrorIs(t, err, ErrPollInProgress)

	res := e.orch.CheckNow(context.Background())
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrPollInProgress)

	close(mbox.release)
	assert.Equal(t, 1, <-done)
}

func TestPollOnce_LeaseHeldElsewhere(t *testing.T) {
	mbox := &fakeMailbox{msgs: []*models.InboundMessage{reply(quoteBody)}}
	e := newEnv(t, mbox)
	l := &fakeLease{held: true}
	e.orch.cfg.Lease = l

	_, err := e.orch.PollOnce(context.Background())
	assert.ErrorIs(t, err, ErrPollInProgress)
	assert.Zero(t, l.released)

	l.held = false
	n, err := e.orch.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, l.released)
}

func TestPollOnce_MailboxErrorKeepsPartialCount(t *testing.T) {
	timeout := &mailbox.Error{Kind: mailbox.KindTimeout, Op: "fetch", Err: context.DeadlineExceeded}
	mbox := &fakeMailbox{msgs: []*models.InboundMessage{reply(quoteBody)}, err: timeout}
	e := newEnv(t, mbox)

	res := e.orch.CheckNow(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Count)
	assert.True(t, mailbox.IsNetwork(res.Err))
	assert.Contains(t, res.Error, "timeout")
}
