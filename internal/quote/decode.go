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
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

var (
	fencePattern         = regexp.MustCompile("```(?:json|JSON)?\\s*")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	numericNoise         = strings.NewReplacer(",", "", "$", "", "₹", "", "€", "", "£", "", " ", "")
)

// RepairJSON strips formatting wrappers from model output and returns the
// first balanced JSON object it contains.
func RepairJSON(s string) (string, error) {
	s = fencePattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = trailingCommaPattern.ReplaceAllString(s, "$1")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object")
}

// flexNumber accepts JSON numbers, numeric strings with currency symbols or
// thousands separators, and null.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = numericNoise.Replace(strings.TrimSpace(s))
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Free text such as "TBD" is treated as missing.
			*n = 0
			return nil
		}
		*n = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode number %s: %w", string(b), err)
	}
	*n = flexNumber(v)
	return nil
}

// flexString accepts strings, null, and any other JSON value (rendered as
// compact JSON), since specifications sometimes arrive as objects.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*s = flexString(buf.String())
	return nil
}

type wireItem struct {
	Description    flexString `json:"description"`
	Name           flexString `json:"name"`
	Quantity       flexNumber `json:"quantity"`
	UnitPrice      flexNumber `json:"unitPrice"`
	TotalPrice     flexNumber `json:"totalPrice"`
	Specifications flexString `json:"specifications"`
}

type wireQuote struct {
	Items            []wireItem `json:"items"`
	TotalCost        flexNumber `json:"totalCost"`
	DeliveryTimeline flexString `json:"deliveryTimeline"`
	PaymentTerms     flexString `json:"paymentTerms"`
	Warranty         flexString `json:"warranty"`
	AdditionalInfo   flexString `json:"additionalInfo"`
}

// decodeRaw repairs and decodes model output into a RawQuote.
func decodeRaw(output string) (RawQuote, error) {
	obj, err := RepairJSON(output)
	if err != nil {
		return RawQuote{}, err
	}

	var w wireQuote
	if err := json.Unmarshal([]byte(obj), &w); err != nil {
		return RawQuote{}, fmt.Errorf("decode quote JSON: %w", err)
	}

	raw := RawQuote{
		TotalCost:        float64(w.TotalCost),
		DeliveryTimeline: string(w.DeliveryTimeline),
		PaymentTerms:     string(w.PaymentTerms),
		Warranty:         string(w.Warranty),
		AdditionalInfo:   string(w.AdditionalInfo),
	}
	for _, it := range w.Items {
		raw.Items = append(raw.Items, models.QuoteItem{
			Description:    string(it.Description),
			Name:           string(it.Name),
			Quantity:       float64(it.Quantity),
			UnitPrice:      float64(it.UnitPrice),
			TotalPrice:     float64(it.TotalPrice),
			Specifications: string(it.Specifications),
		})
	}
	return raw, nil
}
