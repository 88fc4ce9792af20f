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

package models

import "time"

// Vendor is a supplier identified by a unique, case-insensitive email address.
type Vendor struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	ContactPerson   string    `json:"contactPerson,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Specializations []string  `json:"specializations,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RFPStatus is the forward-moving lifecycle state of an RFP.
type RFPStatus string

const (
	RFPDraft             RFPStatus = "draft"
	RFPSent              RFPStatus = "sent"
	RFPResponsesReceived RFPStatus = "responses_received"
	RFPEvaluated         RFPStatus = "evaluated"

	// RFPCompleted is a legacy alias stored by older deployments.
	RFPCompleted RFPStatus = "completed"
)

// NormalizeStatus maps legacy statuses onto the current state machine.
func NormalizeStatus(s RFPStatus) RFPStatus {
	if s == RFPCompleted {
		return RFPEvaluated
	}
	return s
}

// AwaitingResponses reports whether replies may still be matched to an RFP
// in this status.
func (s RFPStatus) AwaitingResponses() bool {
	switch NormalizeStatus(s) {
	case RFPSent, RFPResponsesReceived, RFPEvaluated:
		return true
	}
	return false
}

// MatchableStatuses are the RFP statuses eligible for reply matching.
var MatchableStatuses = []RFPStatus{RFPSent, RFPResponsesReceived, RFPEvaluated}

// NextStatusAfterEvaluation recomputes an RFP's status once an evaluation
// pass has run. The result depends only on how many recipients have a
// parsed or evaluated proposal, so repeated passes are idempotent.
func NextStatusAfterEvaluation(responded, recipients int) RFPStatus {
	if responded >= recipients {
		return RFPEvaluated
	}
	return RFPResponsesReceived
}

// RequirementItem is a single requested line item.
type RequirementItem struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	Specifications string `json:"specifications,omitempty"`
}

// Requirements is the structured form of an RFP's request.
type Requirements struct {
	Items            []RequirementItem `json:"items"`
	Budget           float64           `json:"budget,omitempty"`
	DeliveryDeadline *time.Time        `json:"deliveryDeadline,omitempty"`
	PaymentTerms     string            `json:"paymentTerms,omitempty"`
	Warranty         string            `json:"warranty,omitempty"`
}

// RFP is a procurement request sent to one or more vendors.
type RFP struct {
	ID                    string       `json:"id"`
	Title                 string       `json:"title"`
	Description           string       `json:"description"`
	OriginalPrompt        string       `json:"originalPrompt,omitempty"`
	Requirements          Requirements `json:"requirements"`
	Status                RFPStatus    `json:"status"`
	Recipients            []Vendor     `json:"sentTo"`
	OverallRecommendation string       `json:"overallRecommendation,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

// SentTo reports whether the RFP lists the given email among its recipients.
func (r *RFP) SentTo(email string) bool {
	email = NormalizeEmail(email)
	for _, v := range r.Recipients {
		if NormalizeEmail(v.Email) == email {
			return true
		}
	}
	return false
}
