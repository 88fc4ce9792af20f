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
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// extractDocx returns the paragraphs of a Word document, one per line.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no %s", docxBody)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	return paragraphs(io.LimitReader(rc, MaxAttachmentBytes))
}

// paragraphs walks WordprocessingML, emitting w:t runs and ending a line at
// each w:p. Tabs and breaks inside a paragraph are kept.
func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		out    strings.Builder
		para   strings.Builder
		inText bool
	)
	flush := func() {
		line := strings.TrimRight(para.String(), " \t")
		para.Reset()
		if strings.TrimSpace(line) == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(line)
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flush()

	return out.String(), nil
}
