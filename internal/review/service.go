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

// Package review handles the human decision on ingested conversations and
// the evaluation pass over accepted proposals.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// DefaultRejectionReason is stored when a reviewer gives none.
const DefaultRejectionReason = "Not a valid proposal"

var (
	// ErrAlreadyAccepted is returned when accepting an accepted conversation.
	ErrAlreadyAccepted = errors.New("conversation already accepted")

	// ErrNothingToEvaluate is returned when an RFP has no parsed proposals.
	ErrNothingToEvaluate = errors.New("no proposals to evaluate")
)

// Store is the persistence the review service needs.
type Store interface {
	GetRFP(ctx context.Context, id string) (*models.RFP, error)
	SetRFPEvaluation(ctx context.Context, id string, status models.RFPStatus, recommendation string) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, rfpID string) ([]models.Conversation, error)
	SaveReview(ctx context.Context, c *models.Conversation) error
	UpsertProposal(ctx context.Context, p *models.Proposal) error
	ListProposals(ctx context.Context, rfpID string, statuses ...models.ProposalStatus) ([]models.Proposal, error)
	SaveEvaluation(ctx context.Context, proposalID string, e models.Evaluation) error
}

// Evaluator scores the responded proposals of one RFP.
type Evaluator interface {
	Evaluate(ctx context.Context, rfp *models.RFP, proposals []models.Proposal) (*models.Assessment, error)
}

// Stats counts conversations by review status.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Service implements accept, reject and evaluate.
type Service struct {
	store     Store
	evaluator Evaluator
	now       func() time.Time
}

// NewService creates a review service. evaluator may be nil, in which case
// Evaluate fails.
func NewService(s Store, evaluator Evaluator) *Service {
	return &Service{
		store:     s,
		evaluator: evaluator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Accept promotes a conversation to the proposal for its (RFP, vendor)
// pair. Any earlier evaluation on that proposal is discarded.
func (s *Service) Accept(ctx context.Context, conversationID, reviewer string) (*models.Proposal, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv.Status == models.ConversationAccepted {
		return nil, ErrAlreadyAccepted
	}

	now := s.now()
	quote := conv.Quote
	received := conv.ReceivedAt
	parsed := conv.ParsedAt
	p := &models.Proposal{
		RFPID:        conv.RFPID,
		VendorID:     conv.VendorID,
		Status:       models.ProposalParsed,
		EmailContent: conv.EmailContent,
		Quote:        &quote,
		ReceivedAt:   &received,
		ParsedAt:     &parsed,
	}
	if err := s.store.UpsertProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("upsert proposal: %w", err)
	}

	conv.Status = models.ConversationAccepted
	conv.ReviewedAt = &now
	conv.ReviewedBy = reviewer
	conv.RejectionReason = ""
	if err := s.store.SaveReview(ctx, conv); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}

	slog.Info("conversation accepted",
		"conversation_id", conv.ID,
		"rfp_id", conv.RFPID,
		"vendor_id", conv.VendorID,
		"proposal_id", p.ID,
		"reviewer", reviewer,
	)
	return p, nil
}

// Reject marks a conversation rejected. An empty reason gets the default.
func (s *Service) Reject(ctx context.Context, conversationID, reason, reviewer string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if reason == "" {
		reason = DefaultRejectionReason
	}

	now := s.now()
	conv.Status = models.ConversationRejected
	conv.RejectionReason = reason
	conv.ReviewedAt = &now
	conv.ReviewedBy = reviewer
	if err := s.store.SaveReview(ctx, conv); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}

	slog.Info("conversation rejected",
		"conversation_id", conv.ID,
		"rfp_id", conv.RFPID,
		"vendor_id", conv.VendorID,
		"reason", reason,
	)
	return conv, nil
}

// Stats counts the conversations of an RFP by status.
func (s *Service) Stats(ctx context.Context, rfpID string) (Stats, error) {
	convs, err := s.store.ListConversations(ctx, rfpID)
	if err != nil {
		return Stats{}, fmt.Errorf("list conversations: %w", err)
	}

	st := Stats{Total: len(convs)}
	for _, c := range convs {
		switch c.Status {
		case models.ConversationPending:
			st.Pending++
		case models.ConversationAccepted:
			st.Accepted++
		case models.ConversationRejected:
			st.Rejected++
		}
	}
	return st, nil
}

// Evaluate scores every responded proposal of an RFP, stores the overall
// recommendation and recomputes the RFP status from how many recipients
// have responded. The status never moves past what that count allows.
func (s *Service) Evaluate(ctx context.Context, rfpID string) (*models.RFP, []models.Proposal, error) {
	if s.evaluator == nil {
		return nil, nil, errors.New("no evaluator configured")
	}

	rfp, err := s.store.GetRFP(ctx, rfpID)
	if err != nil {
		return nil, nil, fmt.Errorf("get rfp: %w", err)
	}

	proposals, err := s.store.ListProposals(ctx, rfpID, models.ProposalParsed, models.ProposalEvaluated)
	if err != nil {
		return nil, nil, fmt.Errorf("list proposals: %w", err)
	}
	if len(proposals) == 0 {
		return nil, nil, ErrNothingToEvaluate
	}

	assessment, err := s.evaluator.Evaluate(ctx, rfp, proposals)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate proposals: %w", err)
	}

	responded := 0
	for i := range proposals {
		p := &proposals[i]
		if ev, ok := assessment.Evaluations[p.ID]; ok {
			ev.Score = clampScore(ev.Score)
			if err := s.store.SaveEvaluation(ctx, p.ID, ev); err != nil {
				return nil, nil, fmt.Errorf("save evaluation: %w", err)
			}
			p.Evaluation = &ev
			p.Status = models.ProposalEvaluated
		} else {
			slog.Warn("evaluation missing for proposal",
				"rfp_id", rfpID,
				"proposal_id", p.ID,
			)
		}
		if p.Status.Responded() {
			responded++
		}
	}

	status := models.NextStatusAfterEvaluation(responded, len(rfp.Recipients))
	if err := s.store.SetRFPEvaluation(ctx, rfpID, status, assessment.Recommendation); err != nil {
		return nil, nil, fmt.Errorf("save rfp evaluation: %w", err)
	}
	rfp.Status = status
	rfp.OverallRecommendation = assessment.Recommendation

	slog.Info("proposals evaluated",
		"rfp_id", rfpID,
		"responded", responded,
		"recipients", len(rfp.Recipients),
		"status", status,
	)
	return rfp, proposals, nil
}

func clampScore(v int) int {
	return min(max(v, 0), 100)
}
