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

// NotSpecified is the placeholder for quote terms a vendor did not state.
const NotSpecified = "Not specified"

// QuoteItem is one priced line of a vendor quote.
type QuoteItem struct {
	Description    string  `json:"description"`
	Name           string  `json:"name,omitempty"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      float64 `json:"unitPrice"`
	TotalPrice     float64 `json:"totalPrice"`
	Specifications string  `json:"specifications"`
}

// ParsedQuote is the structured form of a vendor's reply.
type ParsedQuote struct {
	Items           []QuoteItem `json:"items"`
	TotalAmount     float64     `json:"totalAmount"`
	DeliveryTime    string      `json:"deliveryTime"`
	PaymentTerms    string      `json:"paymentTerms"`
	Warranty        string      `json:"warranty"`
	AdditionalNotes string      `json:"additionalNotes"`
}

// ConversationStatus is the human review state of a Conversation.
type ConversationStatus string

const (
	ConversationPending  ConversationStatus = "pending_review"
	ConversationAccepted ConversationStatus = "accepted"
	ConversationRejected ConversationStatus = "rejected"
)

// Conversation is one vendor's reply to one RFP awaiting human judgment.
// There is at most one per (RFPID, VendorID).
type Conversation struct {
	ID              string             `json:"id"`
	RFPID           string             `json:"rfpId"`
	VendorID        string             `json:"vendorId"`
	SourceMessageID string             `json:"sourceMessageId,omitempty"`
	EmailSubject    string             `json:"emailSubject"`
	EmailContent    string             `json:"emailContent"`
	Quote           ParsedQuote        `json:"parsedData"`
	Status          ConversationStatus `json:"status"`
	ReceivedAt      time.Time          `json:"receivedAt"`
	ParsedAt        time.Time          `json:"parsedAt"`
	ReviewedAt      *time.Time         `json:"reviewedAt,omitempty"`
	ReviewedBy      string             `json:"reviewedBy,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// ProposalStatus tracks a proposal from placeholder to evaluated.
type ProposalStatus string

const (
	ProposalSent      ProposalStatus = "sent"
	ProposalReceived  ProposalStatus = "received"
	ProposalParsed    ProposalStatus = "parsed"
	ProposalEvaluated ProposalStatus = "evaluated"
)

// Responded reports whether the proposal counts towards "all recipients
// responded".
func (s ProposalStatus) Responded() bool {
	return s == ProposalParsed || s == ProposalEvaluated
}

// Evaluation is the opaque scoring written by the evaluation step.
type Evaluation struct {
	Score          int      `json:"score"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	Recommendation string   `json:"recommendation"`
}

// Proposal is the accepted, comparable quote for one (RFP, vendor) pair.
type Proposal struct {
	ID           string         `json:"id"`
	RFPID        string         `json:"rfpId"`
	VendorID     string         `json:"vendorId"`
	Status       ProposalStatus `json:"status"`
	EmailContent string         `json:"emailContent,omitempty"`
	Quote        *ParsedQuote   `json:"parsedData,omitempty"`
	Evaluation   *Evaluation    `json:"aiEvaluation,omitempty"`
	ReceivedAt   *time.Time     `json:"receivedAt,omitempty"`
	ParsedAt     *time.Time     `json:"parsedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Assessment is the evaluation step's verdict on every responded proposal
// of one RFP. Evaluations are keyed by proposal ID.
type Assessment struct {
	Evaluations    map[string]Evaluation `json:"evaluations"`
	Recommendation string                `json:"overallRecommendation"`
}
