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
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// extractWorkbook renders every sheet, in workbook order, as a labelled
// CSV block so sheet boundaries survive as text.
func extractWorkbook(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		if err := writeSheet(&sb, name, rows); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// extractLegacyWorkbook reads a BIFF (.xls) workbook, which excelize
// cannot open, and renders it the same way as extractWorkbook.
func extractLegacyWorkbook(data []byte) (string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", fmt.Errorf("open xls workbook: %w", err)
	}

	var sb strings.Builder
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		if err := writeSheet(&sb, sheet.Name, rows); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// extractCSV treats a CSV attachment as a single sheet named after the file.
func extractCSV(data []byte, filename string) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read csv: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if name == "" || name == "." {
		name = "Sheet1"
	}

	var sb strings.Builder
	if err := writeSheet(&sb, name, rows); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeSheet(sb *strings.Builder, name string, rows [][]string) error {
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "--- Sheet: %s ---\n", name)

	w := csv.NewWriter(sb)
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write sheet %q: %w", name, err)
		}
	}
	w.Flush()
	return w.Error()
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
