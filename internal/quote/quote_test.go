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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

func TestNormalizeItems_TotalPriceFallback(t *testing.T) {
	tests := []struct {
		name string
		in   models.QuoteItem
		want float64
	}{
		{"stated total kept", models.QuoteItem{Quantity: 2, UnitPrice: 10, TotalPrice: 25}, 25},
		{"computed from quantity and unit price", models.QuoteItem{Quantity: 3, UnitPrice: 7.5}, 22.5},
		{"missing unit price", models.QuoteItem{Quantity: 3}, 0},
		{"missing quantity", models.QuoteItem{UnitPrice: 99}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeItems([]models.QuoteItem{tt.in})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].TotalPrice)
		})
	}
}

func TestNormalizeItems_DescriptionFallback(t *testing.T) {
	got := NormalizeItems([]models.QuoteItem{
		{Description: "Executive Desk"},
		{Name: "Office Chair"},
		{},
	})

	assert.Equal(t, "Executive Desk", got[0].Description)
	assert.Equal(t, "Office Chair", got[1].Description)
	assert.Equal(t, "Office Chair", got[1].Name)
	assert.Equal(t, unknownItem, got[2].Description)
	assert.Equal(t, "", got[2].Specifications)
}

func TestNormalize_Defaults(t *testing.T) {
	q := Normalize(RawQuote{}, "")

	assert.NotNil(t, q.Items)
	assert.Empty(t, q.Items)
	assert.Zero(t, q.TotalAmount)
	assert.Equal(t, models.NotSpecified, q.DeliveryTime)
	assert.Equal(t, models.NotSpecified, q.PaymentTerms)
	assert.Equal(t, models.NotSpecified, q.Warranty)
	assert.Equal(t, "", q.AdditionalNotes)
}

func furnitureItems() []models.QuoteItem {
	return []models.QuoteItem{
		{Description: "Desks", Quantity: 10, UnitPrice: 1500},
		{Description: "Chairs", Quantity: 5, UnitPrice: 2850},
	}
}

func TestNormalize_RegexTotalBeatsItemSum(t *testing.T) {
	text := "Desks: 10 x $1,500\nChairs: 5 x $2,850\nGrand Total: $30,000"

	q := Normalize(RawQuote{Items: furnitureItems()}, text)

	assert.Equal(t, 30000.0, q.TotalAmount)
}

func TestNormalize_ItemSumWhenNoStatedTotal(t *testing.T) {
	q := Normalize(RawQuote{Items: furnitureItems()}, "Please find our prices attached.")

	assert.Equal(t, 29250.0, q.TotalAmount)
}

func TestNormalize_ModelTotalKept(t *testing.T) {
	q := Normalize(RawQuote{Items: furnitureItems(), TotalCost: 28000}, "Total: $29,250")

	assert.Equal(t, 28000.0, q.TotalAmount)
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := RawQuote{
		Items: []models.QuoteItem{
			{Name: "Monitor", Quantity: 4, UnitPrice: 250, Specifications: "  27 inch "},
			{Description: "Dock", Quantity: 4, UnitPrice: 120, TotalPrice: 400},
		},
		Warranty: "3 years",
	}
	text := "Monitors and docks. Total: $1,400"

	first := Normalize(raw, text)
	second := Normalize(FromParsed(first), text)

	assert.Equal(t, first, second)
	assert.Equal(t, 1400.0, first.TotalAmount)
}

func TestRecoverTotal(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   float64
		wantOK bool
	}{
		{"dollar with separators", "Total: $29,250", 29250, true},
		{"last match wins", "Subtotal: 100\nTax: 10\nTotal: 110", 110, true},
		{"grand total decimals", "GRAND TOTAL €1,234.56", 1234.56, true},
		{"rupee", "Total Amount: ₹76,150", 76150, true},
		{"sum label", "Sum 450", 450, true},
		{"no total", "We can deliver in 3 weeks.", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RecoverTotal(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`, false},
		{"leading prose", `Here you go: {"a":"}"} thanks`, `{"a":"}"}`, false},
		{"first object only", `{"a":{"b":1}} {"c":2}`, `{"a":{"b":1}}`, false},
		{"no object", "sorry, I cannot help", "", true},
		{"unterminated", `{"a":1`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RepairJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// stubCompleter returns a canned response and records the prompt.
type stubCompleter struct {
	out    string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.out, s.err
}

func TestExtractor_ParseCoercesLooseOutput(t *testing.T) {
	c := &stubCompleter{out: "```json\n" + `{
		"items": [{"name": "Desk", "quantity": "5", "unitPrice": "$1,200", "specifications": {"finish": "oak"}}],
		"totalCost": 0,
		"deliveryTimeline": "21 days",
	}` + "\n```"}
	e := NewExtractor(c)

	q, err := e.Parse(context.Background(), "5 desks at $1,200. Total: $6,000", nil)
	require.NoError(t, err)

	require.Len(t, q.Items, 1)
	assert.Equal(t, "Desk", q.Items[0].Description)
	assert.Equal(t, 5.0, q.Items[0].Quantity)
	assert.Equal(t, 1200.0, q.Items[0].UnitPrice)
	assert.Equal(t, 6000.0, q.Items[0].TotalPrice)
	assert.Equal(t, `{"finish":"oak"}`, q.Items[0].Specifications)
	assert.Equal(t, 6000.0, q.TotalAmount)
	assert.Equal(t, "21 days", q.DeliveryTime)
	assert.Equal(t, models.NotSpecified, q.PaymentTerms)
}

func TestExtractor_PromptIncludesRFPContext(t *testing.T) {
	c := &stubCompleter{out: `{"items": []}`}
	e := NewExtractor(c)

	rfp := &models.RFP{
		Title: "IT Equipment",
		Requirements: models.Requirements{
			Items:  []models.RequirementItem{{Name: "Laptop", Quantity: 20}},
			Budget: 50000,
		},
	}
	_, err := e.Parse(context.Background(), "quote body", rfp)
	require.NoError(t, err)

	assert.Contains(t, c.prompt, "Title: IT Equipment")
	assert.Contains(t, c.prompt, "- Laptop x20")
	assert.Contains(t, c.prompt, "quote body")
}

func TestExtractor_MalformedOutputIsExtractionError(t *testing.T) {
	e := NewExtractor(&stubCompleter{out: "I could not find a quote in this email."})

	_, err := e.Parse(context.Background(), "hello", nil)

	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.True(t, strings.HasPrefix(ee.Raw, "I could not"))
}

func TestExtractor_CompleterFailureIsNotExtractionError(t *testing.T) {
	boom := errors.New("quota exceeded")
	e := NewExtractor(&stubCompleter{err: boom})

	_, err := e.Parse(context.Background(), "hello", nil)

	require.ErrorIs(t, err, boom)
	assert.False(t, IsExtractionError(err))
}

func TestExtractor_EmptyInput(t *testing.T) {
	e := NewExtractor(&stubCompleter{out: "{}"})

	_, err := e.Parse(context.Background(), "   ", nil)

	assert.True(t, IsExtractionError(err))
}
