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

package quote

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// unknownItem labels items that arrived with neither a description nor a name.
const unknownItem = "Unknown Item"

// RawQuote is the loosely-typed quote as decoded from the model output.
// Zero values mean "missing".
type RawQuote struct {
	Items            []models.QuoteItem
	TotalCost        float64
	DeliveryTimeline string
	PaymentTerms     string
	Warranty         string
	AdditionalInfo   string
}

// FromParsed converts an already normalised quote back to its raw form so
// it can be passed through Normalize again.
func FromParsed(q models.ParsedQuote) RawQuote {
	items := make([]models.QuoteItem, len(q.Items))
	copy(items, q.Items)
	return RawQuote{
		Items:            items,
		TotalCost:        q.TotalAmount,
		DeliveryTimeline: q.DeliveryTime,
		PaymentTerms:     q.PaymentTerms,
		Warranty:         q.Warranty,
		AdditionalInfo:   q.AdditionalNotes,
	}
}

// Normalize applies the defaulting rules to a raw quote. sourceText is the
// email text the quote was extracted from and is used to recover a stated
// total when the model returned none. Normalize is idempotent.
func Normalize(raw RawQuote, sourceText string) models.ParsedQuote {
	items := NormalizeItems(raw.Items)

	total := raw.TotalCost
	if total <= 0 {
		if recovered, ok := RecoverTotal(sourceText); ok {
			total = recovered
		}
	}
	if total <= 0 {
		total = SumItems(items)
	}

	return models.ParsedQuote{
		Items:           items,
		TotalAmount:     total,
		DeliveryTime:    orDefault(raw.DeliveryTimeline, models.NotSpecified),
		PaymentTerms:    orDefault(raw.PaymentTerms, models.NotSpecified),
		Warranty:        orDefault(raw.Warranty, models.NotSpecified),
		AdditionalNotes: strings.TrimSpace(raw.AdditionalInfo),
	}
}

// NormalizeItems guarantees every item has a description, numeric fields
// and a total price. A missing total is quantity × unit price.
func NormalizeItems(in []models.QuoteItem) []models.QuoteItem {
	out := make([]models.QuoteItem, 0, len(in))
	for _, it := range in {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = strings.TrimSpace(it.Name)
		}
		if desc == "" {
			desc = unknownItem
		}

		total := it.TotalPrice
		if total == 0 {
			total = it.Quantity * it.UnitPrice
		}

		out = append(out, models.QuoteItem{
			Description:    desc,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			TotalPrice:     total,
			Specifications: strings.TrimSpace(it.Specifications),
		})
	}
	return out
}

// SumItems totals the items, using quantity × unit price for any item
// without a stated total.
func SumItems(items []models.QuoteItem) float64 {
	var sum float64
	for _, it := range items {
		t := it.TotalPrice
		if t == 0 {
			t = it.Quantity * it.UnitPrice
		}
		sum += t
	}
	return sum
}

// totalPattern matches "total"-like labels followed by a currency-agnostic amount.
var totalPattern = regexp.MustCompile(`(?i)(?:total|grand\s*total|total\s*amount|total\s*cost|sum)[\s:]*[$₹€£]?\s*(\d+[,\d]*(?:\.\d+)?)`)

// RecoverTotal finds the last "total"-labelled amount in text. Totals
// usually follow the itemisation, so the last match wins.
func RecoverTotal(text string) (float64, bool) {
	matches := totalPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	last := matches[len(matches)-1][1]
	v, err := strconv.ParseFloat(strings.ReplaceAll(last, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func orDefault(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}
