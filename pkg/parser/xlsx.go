package parser

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// XLSXParser parses spreadsheet event logs as delivered by operations
// teams. The first sheet is read; row one is the header. Like the CSV
// parser it forwards malformed data rows untouched.
type XLSXParser struct{}

// Parse reads the first sheet of the workbook from r.
func (p *XLSXParser) Parse(r io.Reader) ([]model.EventLogItem, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyWorkbook
		}
		sheet = sheets[0]
	}

	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col, ok := headerColumnMap(header)
	if !ok {
		// Same stance as CSV: a malformed header yields zero rows.
		return nil, nil
	}

	var items []model.EventLogItem
	for rows.Next() {
		rec, err := rows.Columns()
		if err != nil {
			continue
		}
		if isEmptyRecord(rec) {
			continue
		}
		item := itemFromRecord(rec, col)
		// Spreadsheet cells deliver serial dates and offset-less
		// layouts; canonicalize them. CSV ts values are forwarded
		// untouched so the timestamp gate sees the original text.
		item.TS = NormalizeTimestamp(item.TS)
		items = append(items, item)
	}
	return items, nil
}
