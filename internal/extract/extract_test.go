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

package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

const (
	xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	docxType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

func buildWorkbook(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Item", "Qty", "Unit Price"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Desk", 10, 1500}))
	_, err := f.NewSheet("Terms")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Terms", "A1", "Net 30"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		filename    string
		want        kind
	}{
		{"application/pdf", "x.bin", kindPDF},
		{docxType, "", kindWord},
		{"application/msword", "", kindWord},
		{xlsxType, "", kindSheet},
		{"application/vnd.ms-excel", "", kindLegacySheet},
		{"application/vnd.ms-excel.sheet.macroEnabled.12", "", kindSheet},
		{"application/octet-stream", "prices.XLS", kindLegacySheet},
		{"text/csv", "", kindCSV},
		{"image/png", "", kindImage},
		{"application/octet-stream", "quote.PDF", kindPDF},
		{"application/octet-stream", "quote.docx", kindWord},
		{"application/octet-stream", "prices.xlsm", kindSheet},
		{"", "prices.csv", kindCSV},
		{"", "scan.webp", kindImage},
		{"application/zip", "archive.zip", kindUnsupported},
		{"text/plain", "notes.txt", kindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.contentType+"|"+tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.contentType, tt.filename))
		})
	}
}

func TestExtract_Workbook(t *testing.T) {
	e := New(nil)

	text, ok := e.Extract(context.Background(), models.Attachment{
		Filename:    "quote.xlsx",
		ContentType: xlsxType,
		Content:     buildWorkbook(t),
	})

	require.True(t, ok)
	assert.Contains(t, text, "--- Sheet: Sheet1 ---\nItem,Qty,Unit Price\nDesk,10,1500")
	assert.Contains(t, text, "--- Sheet: Terms ---\nNet 30")
	assert.Less(t, strings.Index(text, "Sheet1"), strings.Index(text, "Terms"))
}

func TestExtract_CSV(t *testing.T) {
	e := New(nil)

	text, ok := e.Extract(context.Background(), models.Attachment{
		Filename: "prices.csv",
		Content:  []byte("item,price\nChair,\"2,850\"\n"),
	})

	require.True(t, ok)
	assert.Equal(t, "--- Sheet: prices ---\nitem,price\nChair,\"2,850\"", text)
}

func TestExtract_Docx(t *testing.T) {
	e := New(nil)
	doc := buildDocx(t,
		`<w:p><w:r><w:t>Quotation for </w:t></w:r><w:r><w:t>IT Equipment</w:t></w:r></w:p>`+
			`<w:p></w:p>`+
			`<w:p><w:r><w:t>Total:</w:t><w:tab/><w:t>$29,250</w:t></w:r></w:p>`)

	text, ok := e.Extract(context.Background(), models.Attachment{
		Filename:    "quote.docx",
		ContentType: docxType,
		Content:     doc,
	})

	require.True(t, ok)
	assert.Equal(t, "Quotation for IT Equipment\nTotal:\t$29,250", text)
}

func TestExtract_NoContentOrUnsupported(t *testing.T) {
	e := New(nil)

	_, ok := e.Extract(context.Background(), models.Attachment{Filename: "a.pdf"})
	assert.False(t, ok)

	_, ok = e.Extract(context.Background(), models.Attachment{Filename: "a.zip", Content: []byte("PK")})
	assert.False(t, ok)

	// Images need a recognizer.
	_, ok = e.Extract(context.Background(), models.Attachment{Filename: "scan.png", Content: []byte{0x89, 'P'}})
	assert.False(t, ok)
}

func TestExtract_CorruptFilesReturnNothing(t *testing.T) {
	e := New(nil)
	junk := []byte("this is not a real file")

	for _, name := range []string{"a.pdf", "a.docx", "a.xlsx"} {
		text, ok := e.Extract(context.Background(), models.Attachment{Filename: name, Content: junk})
		assert.False(t, ok, name)
		assert.Empty(t, text, name)
	}
}

type fakeRecognizer struct {
	text  string
	err   error
	calls atomic.Int32
	mime  string
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte, mimeType string) (string, error) {
	f.calls.Add(1)
	f.mime = mimeType
	return f.text, f.err
}

func TestExtract_ImageUsesRecognizerAndCache(t *testing.T) {
	rec := &fakeRecognizer{text: "Total: $500"}
	e := New(rec)
	att := models.Attachment{Filename: "scan.JPG", ContentType: "application/octet-stream", Content: []byte{1, 2, 3}}

	for i := 0; i < 2; i++ {
		text, ok := e.Extract(context.Background(), att)
		require.True(t, ok)
		assert.Equal(t, "Total: $500", text)
	}

	assert.Equal(t, int32(1), rec.calls.Load())
	assert.Equal(t, "image/jpeg", rec.mime)
}

func TestExtract_RecognizerFailure(t *testing.T) {
	e := New(&fakeRecognizer{err: errors.New("ocr down")})

	_, ok := e.Extract(context.Background(), models.Attachment{ContentType: "image/png", Content: []byte{1}})

	assert.False(t, ok)
}

type panicRecognizer struct{}

func (panicRecognizer) Recognize(context.Context, []byte, string) (string, error) {
	panic("boom")
}

func TestExtract_RecoversFromPanic(t *testing.T) {
	e := New(panicRecognizer{})

	assert.NotPanics(t, func() {
		_, ok := e.Extract(context.Background(), models.Attachment{ContentType: "image/png", Content: []byte{1}})
		assert.False(t, ok)
	})
}

func TestExtractAll_CorruptAttachmentDoesNotBlockOthers(t *testing.T) {
	e := New(nil)
	atts := []models.Attachment{
		{Filename: "broken.xlsx", ContentType: xlsxType, Content: []byte("corrupt spreadsheet")},
		{Filename: "prices.csv", ContentType: "text/csv", Content: []byte("item,price\nDesk,1500\n")},
		{Filename: "empty.pdf", ContentType: "application/pdf"},
		{Filename: "terms.docx", ContentType: docxType, Content: buildDocx(t, `<w:p><w:r><w:t>Warranty 2 years</w:t></w:r></w:p>`)},
	}

	got := e.ExtractAll(context.Background(), atts)

	assert.Equal(t,
		"=== Content from prices.csv ===\n--- Sheet: prices ---\nitem,price\nDesk,1500"+
			"\n\n=== Content from terms.docx ===\nWarranty 2 years",
		got)

	combined := Combine("Please see our quote. Total: $1,500", got)
	assert.True(t, strings.HasPrefix(combined, "Please see our quote. Total: $1,500\n\n=== Content from prices.csv ==="))
}

func TestExtract_LegacyWorkbookIsNotOpenedAsXLSX(t *testing.T) {
	e := New(nil)
	att := models.Attachment{
		Filename:    "prices.xls",
		ContentType: "application/vnd.ms-excel",
		Content:     []byte("not a compound document"),
	}

	assert.NotPanics(t, func() {
		text, ok := e.Extract(context.Background(), att)
		assert.False(t, ok)
		assert.Empty(t, text)
	})
}

func TestExtractAll_Nothing(t *testing.T) {
	e := New(nil)

	assert.Equal(t, "", e.ExtractAll(context.Background(), nil))
	assert.Equal(t, "", e.ExtractAll(context.Background(), []models.Attachment{{Filename: "x.zip", Content: []byte("x")}}))
}

func TestCombine(t *testing.T) {
	assert.Equal(t, "body", Combine("body", ""))
	assert.Equal(t, "att", Combine("  ", "att"))
	assert.Equal(t, "body\n\natt", Combine("body\n", "\natt"))
	assert.Equal(t, "", Combine("", ""))
}
