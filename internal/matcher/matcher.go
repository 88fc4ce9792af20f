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

// Package matcher resolves which outstanding RFP an inbound vendor reply
// belongs to.
//
// Resolution runs three tiers in order and the first hit wins:
//
//  1. An "[ID: <rfp-id>]" tag in the subject, accepted only when the
//     sender is one of that RFP's recipients.
//  2. Subject words against each eligible RFP title. At least two
//     significant title words must appear and the best ratio wins.
//  3. The most recently created eligible RFP.
//
// Eligible RFPs were sent to the vendor and are in sent,
// responses_received or evaluated status.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
	"github.com/AyushRauniyar/RFP-Management-System/internal/store"
)

// Tier records which rule produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierIDTag
	TierSubject
	TierRecent
)

func (t Tier) String() string {
	switch t {
	case TierIDTag:
		return "id_tag"
	case TierSubject:
		return "subject"
	case TierRecent:
		return "most_recent"
	default:
		return "none"
	}
}

const (
	// minWordLen is the length a title word must exceed to count.
	minWordLen = 3
	// minSubjectMatches is the fewest title words tier 2 accepts.
	minSubjectMatches = 2
)

var idTagPattern = regexp.MustCompile(`(?i)\[ID:\s*([^\]\s]+)\s*\]`)

// RFPSource is the read side of the store the matcher needs.
type RFPSource interface {
	GetRFP(ctx context.Context, id string) (*models.RFP, error)
	RFPsForVendor(ctx context.Context, email string, statuses []models.RFPStatus) ([]models.RFP, error)
}

// Matcher resolves replies to RFPs.
type Matcher struct {
	rfps RFPSource
}

func New(rfps RFPSource) *Matcher {
	return &Matcher{rfps: rfps}
}

// MatchRFP returns the RFP the subject refers to for vendorEmail. A nil
// RFP with TierNone and a nil error means nothing matched.
func (m *Matcher) MatchRFP(ctx context.Context, subject, vendorEmail string) (*models.RFP, Tier, error) {
	vendorEmail = models.NormalizeEmail(vendorEmail)

	if id := IDTag(subject); id != "" {
		r, err := m.rfps.GetRFP(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			slog.Info("rfp id tag not found", "rfp_id", id)
		case err != nil:
			return nil, TierNone, fmt.Errorf("lookup rfp %s: %w", id, err)
		case r.SentTo(vendorEmail):
			return r, TierIDTag, nil
		default:
			slog.Warn("rfp id tag names an rfp not sent to this vendor",
				"rfp_id", id,
				"from", vendorEmail,
			)
		}
	}

	candidates, err := m.rfps.RFPsForVendor(ctx, vendorEmail, models.MatchableStatuses)
	if err != nil {
		return nil, TierNone, fmt.Errorf("list rfps for vendor: %w", err)
	}
	if len(candidates) == 0 {
		return nil, TierNone, nil
	}

	if r := bestSubjectMatch(subject, candidates); r != nil {
		return r, TierSubject, nil
	}
	return mostRecent(candidates), TierRecent, nil
}

// IDTag extracts the RFP id from a "[ID: ...]" subject tag.
func IDTag(subject string) string {
	m := idTagPattern.FindStringSubmatch(subject)
	if m == nil {
		return ""
	}
	return m[1]
}

// TitleWords returns the lower-cased title words longer than three
// characters. Length is counted in runes.
func TitleWords(title string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if utf8.RuneCountInString(w) > minWordLen {
			out = append(out, w)
		}
	}
	return out
}

// bestSubjectMatch scores candidates in the order given. Only a strictly
// higher ratio replaces the current best, so the earliest candidate wins a
// tie.
func bestSubjectMatch(subject string, candidates []models.RFP) *models.RFP {
	subject = strings.ToLower(subject)

	var (
		best      *models.RFP
		bestRatio float64
	)
	for i := range candidates {
		words := TitleWords(candidates[i].Title)
		if len(words) == 0 {
			continue
		}
		hits := 0
		for _, w := range words {
			if strings.Contains(subject, w) {
				hits++
			}
		}
		ratio := float64(hits) / float64(len(words))
		if hits >= minSubjectMatches && ratio > bestRatio {
			best = &candidates[i]
			bestRatio = ratio
		}
	}
	return best
}

func mostRecent(candidates []models.RFP) *models.RFP {
	best := &candidates[0]
	for i := 1; i < len(candidates); i++ {
		if candidates[i].CreatedAt.After(best.CreatedAt) {
			best = &candidates[i]
		}
	}
	return best
}
