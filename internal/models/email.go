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

// Package models defines the data structures shared across the procurement
// ingestion service: inbound mail, vendors, RFPs, conversations and proposals.
package models

import (
	"strings"
	"time"
)

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Attachment represents a file attached to an email.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
}

// HasContent reports whether the attachment carries a non-empty buffer.
func (a Attachment) HasContent() bool {
	return len(a.Content) > 0
}

// InboundMessage is a mailbox message normalised for the ingestion pipeline.
type InboundMessage struct {
	MessageID   string         `json:"message_id"`
	UID         uint32         `json:"uid"`
	Subject     string         `json:"subject"`
	From        EmailAddress   `json:"from"`
	To          []EmailAddress `json:"to"`
	Date        time.Time      `json:"date"`
	TextBody    string         `json:"text_body"`
	HTMLBody    string         `json:"html_body,omitempty"`
	Attachments []Attachment   `json:"attachments"`

	// ParseErr is set when the raw message could not be decoded. Only UID
	// and Date are populated then.
	ParseErr error `json:"-"`
}

// SenderEmail returns the lower-cased, trimmed sender address.
func (m *InboundMessage) SenderEmail() string {
	return NormalizeEmail(m.From.Address)
}

// NormalizeEmail converts an address to its canonical comparison form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
