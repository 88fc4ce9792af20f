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

package mailbox

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// ParseMessage converts a raw RFC 5322 message into an InboundMessage.
// fallbackDate is used when the Date header is missing or unparseable.
func ParseMessage(r io.Reader, fallbackDate time.Time) (*models.InboundMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("read message header: %w", err)
	}
	defer mr.Close()

	msg := &models.InboundMessage{
		Attachments: []models.Attachment{},
	}
	h := mr.Header

	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	msg.MessageID, _ = h.MessageID()

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = models.EmailAddress{
			Address: models.NormalizeEmail(from[0].Address),
			Name:    from[0].Name,
		}
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			msg.To = append(msg.To, models.EmailAddress{Address: a.Address, Name: a.Name})
		}
	}

	msg.Date = fallbackDate
	if d, err := h.Date(); err == nil && !d.IsZero() {
		msg.Date = d
	}
	if msg.Date.IsZero() {
		msg.Date = time.Now().UTC()
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			// Keep whatever was read before the broken part.
			return msg, nil
		}
		if p == nil {
			break
		}

		body, rerr := io.ReadAll(p.Body)
		if rerr != nil && len(body) == 0 {
			continue
		}

		switch ph := p.Header.(type) {
		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			msg.Attachments = append(msg.Attachments, newAttachment(filename, ct, body))

		case *mail.InlineHeader:
			ct, params, _ := ph.ContentType()
			if filename := inlineFilename(ph, params); filename != "" {
				msg.Attachments = append(msg.Attachments, newAttachment(filename, ct, body))
				continue
			}
			switch ct {
			case "text/plain":
				if msg.TextBody == "" {
					msg.TextBody = string(body)
				}
			case "text/html":
				if msg.HTMLBody == "" {
					msg.HTMLBody = string(body)
				}
			}
		}
	}

	return msg, nil
}

// inlineFilename returns the filename of an inline part that carries one,
// such as an embedded image or a PDF sent without an attachment disposition.
func inlineFilename(h *mail.InlineHeader, ctParams map[string]string) string {
	if _, params, err := h.ContentDisposition(); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return name
		}
	}
	return strings.TrimSpace(ctParams["name"])
}

func newAttachment(filename, contentType string, body []byte) models.Attachment {
	if filename == "" {
		filename = "attachment"
	}
	return models.Attachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        len(body),
		Content:     body,
	}
}
