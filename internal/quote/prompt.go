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
	"fmt"
	"strings"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

const quotePrompt = `You extract structured quote data from a vendor's reply to a request for proposal.
%s
Vendor reply:
"""
%s
"""

Return a single JSON object with exactly these fields:
- "items": array of {"description": string, "quantity": number, "unitPrice": number, "totalPrice": number, "specifications": string}. Include every quoted item.
- "totalCost": number. The overall total. Look for "Total", "Grand Total", "Total Amount", "Sum". If not stated, sum the item totals.
- "deliveryTimeline": string, e.g. "21 days". "Not specified" if absent.
- "paymentTerms": string, e.g. "Net 30". "Not specified" if absent.
- "warranty": string, e.g. "2 years". "Not specified" if absent.
- "additionalInfo": string with discounts, included services, certifications. "" if none.

All prices are plain numbers: no currency symbols, no thousands separators.
Use 0 for unknown numbers and [] for no items.
Return only the JSON object, without markdown or commentary.`

// buildPrompt renders the extraction prompt, adding RFP context when known.
func buildPrompt(text string, rfp *models.RFP) string {
	return fmt.Sprintf(quotePrompt, rfpContext(rfp), text)
}

func rfpContext(rfp *models.RFP) string {
	if rfp == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nThe reply answers this RFP:\n")
	fmt.Fprintf(&sb, "Title: %s\n", rfp.Title)
	if rfp.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", rfp.Description)
	}
	for _, it := range rfp.Requirements.Items {
		fmt.Fprintf(&sb, "- %s x%d", it.Name, it.Quantity)
		if it.Specifications != "" {
			fmt.Fprintf(&sb, " (%s)", it.Specifications)
		}
		sb.WriteString("\n")
	}
	if rfp.Requirements.Budget > 0 {
		fmt.Fprintf(&sb, "Budget: %.2f\n", rfp.Requirements.Budget)
	}
	return sb.String()
}
