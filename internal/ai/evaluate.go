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

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
	"github.com/AyushRauniyar/RFP-Management-System/internal/quote"
)

const evaluationPrompt = `You evaluate vendor proposals for a procurement request.

RFP requirements:
%s

Vendor proposals:
%s

For each proposal provide:
- "vendorIndex": the proposal's index from the list above
- "score": 0-100, weighting price competitiveness 40%%, requirement compliance 30%%, terms 30%%
- "strengths": 2-3 key strengths
- "weaknesses": 2-3 concerns
- "recommendation": one or two sentences

Also give an "overallRecommendation" naming the vendor to choose and why.

Return only this JSON object:
{"evaluations": [{"vendorIndex": 0, "score": 85, "strengths": [], "weaknesses": [], "recommendation": ""}], "overallRecommendation": ""}`

type proposalSummary struct {
	VendorIndex int    `json:"vendorIndex"`
	VendorName  string `json:"vendorName"`
	models.ParsedQuote
}

type evaluationReply struct {
	Evaluations []struct {
		VendorIndex    int      `json:"vendorIndex"`
		Score          float64  `json:"score"`
		Strengths      []string `json:"strengths"`
		Weaknesses     []string `json:"weaknesses"`
		Recommendation string   `json:"recommendation"`
	} `json:"evaluations"`
	OverallRecommendation string `json:"overallRecommendation"`
}

// Evaluator scores proposals through a JSON completer.
type Evaluator struct {
	completer quote.Completer
}

func NewEvaluator(c quote.Completer) *Evaluator {
	return &Evaluator{completer: c}
}

// Evaluate asks the model to compare proposals against the RFP. Scores
// are returned as given; clamping is left to the caller.
func (e *Evaluator) Evaluate(ctx context.Context, rfp *models.RFP, proposals []models.Proposal) (*models.Assessment, error) {
	prompt, err := buildEvaluationPrompt(rfp, proposals)
	if err != nil {
		return nil, err
	}

	output, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("complete evaluation prompt: %w", err)
	}

	obj, err := quote.RepairJSON(output)
	if err != nil {
		return nil, fmt.Errorf("evaluation output: %w", err)
	}
	var reply evaluationReply
	if err := json.Unmarshal([]byte(obj), &reply); err != nil {
		return nil, fmt.Errorf("decode evaluation output: %w", err)
	}

	out := &models.Assessment{
		Evaluations:    make(map[string]models.Evaluation, len(reply.Evaluations)),
		Recommendation: reply.OverallRecommendation,
	}
	for i, ev := range reply.Evaluations {
		idx := ev.VendorIndex
		if idx < 0 || idx >= len(proposals) {
			// Out of range indexes fall back to reply order.
			idx = i
		}
		if idx >= len(proposals) {
			continue
		}
		out.Evaluations[proposals[idx].ID] = models.Evaluation{
			Score:          int(math.Round(ev.Score)),
			Strengths:      ev.Strengths,
			Weaknesses:     ev.Weaknesses,
			Recommendation: ev.Recommendation,
		}
	}
	return out, nil
}

func buildEvaluationPrompt(rfp *models.RFP, proposals []models.Proposal) (string, error) {
	names := make(map[string]string, len(rfp.Recipients))
	for _, v := range rfp.Recipients {
		names[v.ID] = v.Name
	}

	summaries := make([]proposalSummary, len(proposals))
	for i, p := range proposals {
		s := proposalSummary{VendorIndex: i, VendorName: names[p.VendorID]}
		if s.VendorName == "" {
			s.VendorName = fmt.Sprintf("Vendor %d", i+1)
		}
		if p.Quote != nil {
			s.ParsedQuote = *p.Quote
		}
		summaries[i] = s
	}

	reqJSON, err := json.MarshalIndent(rfp.Requirements, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode requirements: %w", err)
	}
	propJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode proposals: %w", err)
	}
	return fmt.Sprintf(evaluationPrompt, reqJSON, propJSON), nil
}
