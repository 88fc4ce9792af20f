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

package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

type pairKey struct{ rfpID, vendorID string }

// Memory is an in-process Store. All values are copied on the way in and
// out so callers never share state with the store.
type Memory struct {
	mu sync.RWMutex

	vendors       map[string]models.Vendor
	rfps          map[string]models.RFP
	conversations map[string]models.Conversation
	convByPair    map[pairKey]string
	proposals     map[string]models.Proposal
	propByPair    map[pairKey]string

	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		vendors:       make(map[string]models.Vendor),
		rfps:          make(map[string]models.RFP),
		conversations: make(map[string]models.Conversation),
		convByPair:    make(map[pairKey]string),
		proposals:     make(map[string]models.Proposal),
		propByPair:    make(map[pairKey]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateVendor(_ context.Context, v *models.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v.Email = models.NormalizeEmail(v.Email)
	for _, existing := range m.vendors {
		if existing.Email == v.Email {
			return ErrDuplicate
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = m.now()
	}
	m.vendors[v.ID] = cloneVendor(*v)
	return nil
}

func (m *Memory) VendorByEmail(_ context.Context, email string) (*models.Vendor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = models.NormalizeEmail(email)
	for _, v := range m.vendors {
		if v.Email == email {
			out := cloneVendor(v)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) RecipientEmails(context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]struct{})
	for _, r := range m.rfps {
		for _, v := range r.Recipients {
			out[models.NormalizeEmail(v.Email)] = struct{}{}
		}
	}
	return out, nil
}

func (m *Memory) CreateRFP(_ context.Context, r *models.RFP) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := m.rfps[r.ID]; ok {
		return ErrDuplicate
	}
	if r.Status == "" {
		r.Status = models.RFPDraft
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	r.UpdatedAt = r.CreatedAt
	m.rfps[r.ID] = cloneRFP(*r)
	return nil
}

func (m *Memory) GetRFP(_ context.Context, id string) (*models.RFP, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rfps[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRFP(r)
	return &out, nil
}

func (m *Memory) RFPsForVendor(_ context.Context, email string, statuses []models.RFPStatus) ([]models.RFP, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.RFP
	for _, r := range m.rfps {
		if !statusIn(models.NormalizeStatus(r.Status), statuses) || !r.SentTo(email) {
			continue
		}
		out = append(out, cloneRFP(r))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SetRFPEvaluation(_ context.Context, id string, status models.RFPStatus, recommendation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rfps[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.OverallRecommendation = recommendation
	r.UpdatedAt = m.now()
	m.rfps[id] = r
	return nil
}

// UpsertConversation writes c keyed on (RFPID, VendorID). An existing row
// keeps its ID and CreatedAt; every content field is replaced and review
// state is cleared.
func (m *Memory) UpsertConversation(_ context.Context, c *models.Conversation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertConversation(c), nil
}

// RecordReply upserts c and advances its RFP from sent to
// responses_received under one lock. Nothing is written when the RFP is
// missing.
func (m *Memory) RecordReply(_ context.Context, c *models.Conversation) (created, advanced bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rfps[c.RFPID]
	if !ok {
		return false, false, fmt.Errorf("lock rfp: %w", ErrNotFound)
	}

	created = m.upsertConversation(c)
	if r.Status == models.RFPSent {
		r.Status = models.RFPResponsesReceived
		r.UpdatedAt = m.now()
		m.rfps[r.ID] = r
		advanced = true
	}
	return created, advanced, nil
}

// upsertConversation requires m.mu held for writing.
func (m *Memory) upsertConversation(c *models.Conversation) bool {
	now := m.now()
	key := pairKey{c.RFPID, c.VendorID}
	created := true
	if id, ok := m.convByPair[key]; ok {
		created = false
		existing := m.conversations[id]
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = now
	}

	c.Status = models.ConversationPending
	c.RejectionReason = ""
	c.ReviewedAt = nil
	c.ReviewedBy = ""
	c.UpdatedAt = now

	m.conversations[c.ID] = cloneConversation(*c)
	m.convByPair[key] = c.ID
	return created
}

func (m *Memory) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneConversation(c)
	return &out, nil
}

func (m *Memory) FindConversation(_ context.Context, rfpID, vendorID string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.convByPair[pairKey{rfpID, vendorID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneConversation(m.conversations[id])
	return &out, nil
}

func (m *Memory) ListConversations(_ context.Context, rfpID string) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Conversation
	for _, c := range m.conversations {
		if c.RFPID == rfpID {
			out = append(out, cloneConversation(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}

func (m *Memory) SaveReview(_ context.Context, c *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.conversations[c.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = c.Status
	existing.ReviewedAt = c.ReviewedAt
	existing.ReviewedBy = c.ReviewedBy
	existing.RejectionReason = c.RejectionReason
	existing.UpdatedAt = m.now()
	m.conversations[c.ID] = existing
	return nil
}

// UpsertProposal replaces the proposal for (RFPID, VendorID), keeping the
// existing ID and CreatedAt.
func (m *Memory) UpsertProposal(_ context.Context, p *models.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{p.RFPID, p.VendorID}
	if id, ok := m.propByPair[key]; ok {
		existing := m.proposals[id]
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = m.now()
	}

	m.proposals[p.ID] = cloneProposal(*p)
	m.propByPair[key] = p.ID
	return nil
}

func (m *Memory) ListProposals(_ context.Context, rfpID string, statuses ...models.ProposalStatus) ([]models.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Proposal
	for _, p := range m.proposals {
		if p.RFPID == rfpID && statusIn(p.Status, statuses) {
			out = append(out, cloneProposal(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveEvaluation(_ context.Context, proposalID string, e models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[proposalID]
	if !ok {
		return ErrNotFound
	}
	e.Strengths = slices.Clone(e.Strengths)
	e.Weaknesses = slices.Clone(e.Weaknesses)
	p.Evaluation = &e
	p.Status = models.ProposalEvaluated
	m.proposals[proposalID] = p
	return nil
}

func cloneVendor(v models.Vendor) models.Vendor {
	v.Specializations = slices.Clone(v.Specializations)
	return v
}

func cloneRFP(r models.RFP) models.RFP {
	r.Requirements.Items = slices.Clone(r.Requirements.Items)
	r.Recipients = slices.Clone(r.Recipients)
	if r.Requirements.DeliveryDeadline != nil {
		d := *r.Requirements.DeliveryDeadline
		r.Requirements.DeliveryDeadline = &d
	}
	return r
}

func cloneQuote(q models.ParsedQuote) models.ParsedQuote {
	q.Items = slices.Clone(q.Items)
	return q
}

func cloneConversation(c models.Conversation) models.Conversation {
	c.Quote = cloneQuote(c.Quote)
	if c.ReviewedAt != nil {
		t := *c.ReviewedAt
		c.ReviewedAt = &t
	}
	return c
}

func cloneProposal(p models.Proposal) models.Proposal {
	if p.Quote != nil {
		q := cloneQuote(*p.Quote)
		p.Quote = &q
	}
	if p.Evaluation != nil {
		e := *p.Evaluation
		e.Strengths = slices.Clone(e.Strengths)
		e.Weaknesses = slices.Clone(e.Weaknesses)
		p.Evaluation = &e
	}
	if p.ReceivedAt != nil {
		t := *p.ReceivedAt
		p.ReceivedAt = &t
	}
	if p.ParsedAt != nil {
		t := *p.ParsedAt
		p.ParsedAt = &t
	}
	return p
}
