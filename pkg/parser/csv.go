package parser

import (
	"bytes"
	"io"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// CSVParser parses comma-separated event logs with RFC4180-style
// quoting using byte-level scanning. It is a pure transform: no row is
// ever rejected, and a malformed header yields zero rows, not an error.
type CSVParser struct{}

// Parse reads the whole log from r and returns its events.
func (p *CSVParser) Parse(r io.Reader) ([]model.EventLogItem, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseCSV(raw), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV turns raw delimited text into event records. The first
// record is the header; fields are mapped by column name so column
// order is free. Empty lines are skipped and short rows are padded
// with "" against the header width.
func ParseCSV(raw []byte) []model.EventLogItem {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	records := scanRecords(raw)
	if len(records) == 0 {
		return nil
	}

	col, ok := headerColumnMap(records[0])
	if !ok {
		return nil
	}

	items := make([]model.EventLogItem, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isEmptyRecord(rec) {
			continue
		}
		items = append(items, itemFromRecord(rec, col))
	}
	return items
}

// scanRecords splits raw text into records of fields, honoring quoted
// fields: a doubled quote inside quotes is a literal quote, and commas
// or newlines inside quotes do not terminate the field.
func scanRecords(raw []byte) [][]string {
	var (
		records  [][]string
		fields   []string
		field    bytes.Buffer
		inQuotes bool
		sawData  bool
	)

	endField := func() {
		fields = append(fields, field.String())
		field.Reset()
	}
	endRecord := func() {
		endField()
		records = append(records, fields)
		fields = nil
		sawData = false
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '"':
			if inQuotes {
				if i+1 < len(raw) && raw[i+1] == '"' {
					field.WriteByte('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				inQuotes = true
			}
			sawData = true
		case c == ',' && !inQuotes:
			endField()
			sawData = true
		case (c == '\n' || c == '\r') && !inQuotes:
			// Swallow \r\n as one terminator.
			if c == '\r' && i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
			if sawData || field.Len() > 0 || len(fields) > 0 {
				endRecord()
			}
		default:
			field.WriteByte(c)
			sawData = true
		}
	}
	if sawData || field.Len() > 0 || len(fields) > 0 {
		endRecord()
	}
	return records
}

func isEmptyRecord(rec []string) bool {
	for _, f := range rec {
		if f != "" {
			return false
		}
	}
	return true
}
