// Package parser turns raw event logs (CSV, XLSX) into structured
// EventLogItem records. Parsing is deliberately forgiving: malformed
// data rows are forwarded as-is and caught later by the validation
// gates, never rejected here.
package parser

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// Parser reads an event log from r into EventLogItems.
type Parser interface {
	Parse(r io.Reader) ([]model.EventLogItem, error)
}

// Format represents a supported event log format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV
	case "xlsx", "excel":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// DetectFormat guesses the format from a file path, ignoring a
// trailing .gz compression extension.
func DetectFormat(path string) Format {
	lower := strings.ToLower(path)
	lower = strings.TrimSuffix(lower, ".gz")
	switch filepath.Ext(lower) {
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// NewParser creates a parser for the given format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatCSV:
		return &CSVParser{}, nil
	case FormatXLSX:
		return &XLSXParser{}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// requiredColumns are the header columns an event log must carry.
// Column order is free; fields are mapped by name.
var requiredColumns = []string{
	"event_id", "trip_id", "tr_unit", "site", "asset",
	"event_type", "phase", "state", "ts", "activity_id",
	"reason_tag", "actor", "note",
}

// itemFromRecord builds an event from one data record using the header
// column map. Missing trailing columns read as "".
func itemFromRecord(rec []string, col map[string]int) model.EventLogItem {
	field := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(rec) {
			return ""
		}
		return rec[idx]
	}
	return model.EventLogItem{
		EventID:    field("event_id"),
		TripID:     field("trip_id"),
		TRUnit:     field("tr_unit"),
		Site:       field("site"),
		Asset:      field("asset"),
		EventType:  field("event_type"),
		Phase:      field("phase"),
		State:      field("state"),
		TS:         field("ts"),
		ActivityID: field("activity_id"),
		ReasonTag:  field("reason_tag"),
		Actor:      field("actor"),
		Note:       field("note"),
	}
}

// headerColumnMap validates the header and maps column name to index.
// A header missing any required column is malformed; the caller then
// yields zero rows rather than an error.
func headerColumnMap(header []string) (map[string]int, bool) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, false
		}
	}
	return col, true
}
