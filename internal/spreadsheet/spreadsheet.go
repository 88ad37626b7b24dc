// Package spreadsheet loads recipient rows from xlsx workbooks.
package spreadsheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet is the parsed first worksheet of a workbook: the header row as
// column names plus one string map per data row. Cell values come back as
// their displayed text, so numeric cells keep an exact decimal form instead
// of round-tripping through floats.
type Sheet struct {
	Columns []string
	Rows    []map[string]string
}

// Load parses xlsx bytes into a Sheet. The first row is the header; rows
// shorter than the header are padded with empty strings. Trailing rows
// with no cell values at all are not data rows and are dropped; a blank
// row between populated rows still surfaces, with every column empty.
func Load(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return &Sheet{}, nil
	}

	columns := rows[0]
	sheet := &Sheet{Columns: columns}
	for _, raw := range rows[1:] {
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(raw) {
				row[col] = raw[i]
			} else {
				row[col] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// HasColumn reports whether the header row contains the named column.
func (s *Sheet) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}
