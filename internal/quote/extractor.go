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

// Package quote turns free-form vendor replies into structured quotes. The
// language model call sits behind the Completer interface; this package owns
// repairing its output and applying the defaulting rules.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// Completer sends a prompt to a language model and returns its raw text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ExtractionError reports model output that could not be turned into a quote.
type ExtractionError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("quote extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "quote extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err is (or wraps) an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

// Extractor parses vendor replies through a Completer.
type Extractor struct {
	completer Completer
}

// NewExtractor creates a quote extractor backed by the given completer.
func NewExtractor(c Completer) *Extractor {
	return &Extractor{completer: c}
}

// Parse extracts a normalised quote from text. rfp is optional context.
func (e *Extractor) Parse(ctx context.Context, text string, rfp *models.RFP) (models.ParsedQuote, error) {
	if strings.TrimSpace(text) == "" {
		return models.ParsedQuote{}, &ExtractionError{Reason: "empty input"}
	}

	output, err := e.completer.Complete(ctx, buildPrompt(text, rfp))
	if err != nil {
		return models.ParsedQuote{}, fmt.Errorf("complete quote prompt: %w", err)
	}

	if strings.TrimSpace(output) == "" {
		return models.ParsedQuote{}, &ExtractionError{Reason: "empty model response"}
	}

	raw, err := decodeRaw(output)
	if err != nil {
		slog.Warn("unparseable quote output",
			"error", err,
			"raw_prefix", truncate(output, 200),
		)
		return models.ParsedQuote{}, &ExtractionError{
			Reason: "malformed model output",
			Raw:    output,
			Err:    err,
		}
	}

	q := Normalize(raw, text)

	slog.Debug("quote extracted",
		"items", len(q.Items),
		"total", q.TotalAmount,
	)

	return q, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
