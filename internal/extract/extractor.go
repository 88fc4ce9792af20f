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

// Package extract converts email attachments into plain text. Each format
// has its own strategy; a failing strategy yields no text instead of an
// error so one bad attachment never stops the rest of a message.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// MaxAttachmentBytes is the largest attachment the extractor will read.
const MaxAttachmentBytes = 25 << 20

const (
	cacheSize       = 256
	cacheTTL        = time.Hour
	extractParallel = 4
)

// Recognizer performs OCR on an image and returns the text it contains.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

type kind int

const (
	kindUnsupported kind = iota
	kindPDF
	kindWord
	kindSheet
	kindLegacySheet
	kindCSV
	kindImage
)

func (k kind) String() string {
	switch k {
	case kindPDF:
		return "pdf"
	case kindWord:
		return "word"
	case kindSheet:
		return "spreadsheet"
	case kindLegacySheet:
		return "xls"
	case kindCSV:
		return "csv"
	case kindImage:
		return "image"
	}
	return "unsupported"
}

// Extractor dispatches attachments to a format strategy and caches results
// by content hash.
type Extractor struct {
	recognizer Recognizer
	cache      *expirable.LRU[string, string]
}

// New creates an Extractor. A nil recognizer disables image OCR.
func New(recognizer Recognizer) *Extractor {
	return &Extractor{
		recognizer: recognizer,
		cache:      expirable.NewLRU[string, string](cacheSize, nil, cacheTTL),
	}
}

// Extract returns the text of a single attachment. ok is false when the
// type is unsupported, the buffer is empty or extraction failed.
func (e *Extractor) Extract(ctx context.Context, att models.Attachment) (text string, ok bool) {
	if !att.HasContent() {
		return "", false
	}
	if len(att.Content) > MaxAttachmentBytes {
		slog.Warn("attachment too large, skipping",
			"filename", att.Filename,
			"size", len(att.Content),
		)
		return "", false
	}

	k := classify(att.ContentType, att.Filename)
	if k == kindUnsupported || (k == kindImage && e.recognizer == nil) {
		slog.Debug("unsupported attachment type",
			"filename", att.Filename,
			"content_type", att.ContentType,
		)
		return "", false
	}

	key := cacheKey(k, att.Filename, att.Content)
	if cached, hit := e.cache.Get(key); hit {
		return cached, cached != ""
	}

	text, err := e.run(ctx, k, att)
	if err != nil {
		slog.Warn("attachment extraction failed",
			"filename", att.Filename,
			"kind", k.String(),
			"error", err,
		)
		return "", false
	}

	text = strings.TrimSpace(text)
	// Cancelled OCR calls are not cached so the next check retries them.
	if ctx.Err() == nil {
		e.cache.Add(key, text)
	}
	return text, text != ""
}

// run executes the strategy for k, converting panics into errors.
func (e *Extractor) run(ctx context.Context, k kind, att models.Attachment) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s extractor panic: %v", k, r)
		}
	}()

	switch k {
	case kindPDF:
		return extractPDF(att.Content)
	case kindWord:
		return extractDocx(att.Content)
	case kindSheet:
		return extractWorkbook(att.Content)
	case kindLegacySheet:
		return extractLegacyWorkbook(att.Content)
	case kindCSV:
		return extractCSV(att.Content, att.Filename)
	case kindImage:
		return e.recognizer.Recognize(ctx, att.Content, imageMIME(att.ContentType, att.Filename))
	}
	return "", fmt.Errorf("no strategy for %s", k)
}

// ExtractAll extracts every attachment, at most four at a time, and joins
// the results in attachment order under filename headers.
func (e *Extractor) ExtractAll(ctx context.Context, atts []models.Attachment) string {
	if len(atts) == 0 {
		return ""
	}

	texts := make([]string, len(atts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractParallel)
	for i, att := range atts {
		g.Go(func() error {
			if text, ok := e.Extract(gctx, att); ok {
				texts[i] = text
			}
			return nil
		})
	}
	_ = g.Wait()

	var sb strings.Builder
	for i, text := range texts {
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "=== Content from %s ===\n%s", atts[i].Filename, text)
	}
	return sb.String()
}

// Combine appends attachment text to the body, separated by a blank line.
func Combine(body, attachmentText string) string {
	body = strings.TrimSpace(body)
	attachmentText = strings.TrimSpace(attachmentText)
	switch {
	case attachmentText == "":
		return body
	case body == "":
		return attachmentText
	}
	return body + "\n\n" + attachmentText
}

// classify picks a strategy from the declared content type, falling back
// to the filename extension.
func classify(contentType, filename string) kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return kindPDF
	case strings.Contains(ct, "wordprocessingml"), strings.Contains(ct, "msword"):
		return kindWord
	case ct == "application/vnd.ms-excel", ct == "application/x-msexcel":
		return kindLegacySheet
	case strings.Contains(ct, "spreadsheetml"), strings.Contains(ct, "ms-excel"):
		return kindSheet
	case strings.Contains(ct, "csv"):
		return kindCSV
	case strings.HasPrefix(ct, "image/"):
		return kindImage
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return kindPDF
	case ".docx", ".doc":
		return kindWord
	case ".xlsx", ".xlsm":
		return kindSheet
	case ".xls":
		return kindLegacySheet
	case ".csv":
		return kindCSV
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return kindImage
	}
	return kindUnsupported
}

func imageMIME(contentType, filename string) string {
	if ct := strings.ToLower(contentType); strings.HasPrefix(ct, "image/") {
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return strings.TrimSpace(ct)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	}
	return "image/jpeg"
}

// cacheKey includes the filename because CSV output is labelled with it.
func cacheKey(k kind, filename string, b []byte) string {
	sum := sha256.Sum256(b)
	return k.String() + ":" + filename + ":" + hex.EncodeToString(sum[:])
}
