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

package ingest

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

var (
	// textPolicy strips every tag, keeping only text content.
	textPolicy = bluemonday.StrictPolicy()

	blockBreak = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|tr|li|h[1-6]|table)\s*>`)
	cellBreak  = regexp.MustCompile(`(?i)</t[dh]\s*>`)
	spaceRun   = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// BodyText prefers the plain text part and falls back to the HTML part
// rendered as text.
func BodyText(msg *models.InboundMessage) string {
	if text := strings.TrimSpace(msg.TextBody); text != "" {
		return text
	}
	if msg.HTMLBody == "" {
		return ""
	}
	return HTMLToText(msg.HTMLBody)
}

// HTMLToText renders an HTML body as plain text. Block elements become
// line breaks and table cells are separated by a space.
func HTMLToText(s string) string {
	s = blockBreak.ReplaceAllString(s, "\n$0")
	s = cellBreak.ReplaceAllString(s, " $0")
	s = html.UnescapeString(textPolicy.Sanitize(s))

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
