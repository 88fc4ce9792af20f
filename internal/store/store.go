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

// Package store persists vendors, RFPs, conversations and proposals.
// Postgres is the durable implementation; Memory backs tests and dev runs.
package store

import (
	"context"
	"errors"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate")
)

// Store is the full persistence surface. Consumers declare the subset
// they need.
type Store interface {
	Ping(ctx context.Context) error

	CreateVendor(ctx context.Context, v *models.Vendor) error
	VendorByEmail(ctx context.Context, email string) (*models.Vendor, error)
	RecipientEmails(ctx context.Context) (map[string]struct{}, error)

	CreateRFP(ctx context.Context, r *models.RFP) error
	GetRFP(ctx context.Context, id string) (*models.RFP, error)
	RFPsForVendor(ctx context.Context, email string, statuses []models.RFPStatus) ([]models.RFP, error)
	SetRFPEvaluation(ctx context.Context, id string, status models.RFPStatus, recommendation string) error

	UpsertConversation(ctx context.Context, c *models.Conversation) (created bool, err error)
	RecordReply(ctx context.Context, c *models.Conversation) (created, advanced bool, err error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindConversation(ctx context.Context, rfpID, vendorID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, rfpID string) ([]models.Conversation, error)
	SaveReview(ctx context.Context, c *models.Conversation) error

	UpsertProposal(ctx context.Context, p *models.Proposal) error
	ListProposals(ctx context.Context, rfpID string, statuses ...models.ProposalStatus) ([]models.Proposal, error)
	SaveEvaluation(ctx context.Context, proposalID string, e models.Evaluation) error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

func statusIn[S comparable](s S, set []S) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
