package parser

import (
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts seen in field exports, ordered by likelihood.
var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// excelEpoch is day zero of Excel serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// NormalizeTimestamp canonicalizes a raw spreadsheet timestamp cell to
// RFC3339. Spreadsheet exports deliver space-separated layouts, bare
// dates and Excel serial numbers in place of proper timestamps; none
// carry an offset, so normalized values read as UTC. Only the XLSX
// parser calls this; CSV ts values pass through unmodified so the
// timestamp gate can flag the original text. Unrecognized input is
// returned untouched.
func NormalizeTimestamp(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.Format(time.RFC3339)
	}

	if t, ok := parseExcelSerial(s); ok {
		return t.Format(time.RFC3339)
	}
	return raw
}

// parseExcelSerial interprets a plain number as days since the Excel
// epoch, the fractional part being the time of day. Serials below one
// year of days are rejected: a bare small number is far more likely a
// stray value than a date in 1900.
func parseExcelSerial(s string) (time.Time, bool) {
	val, err := strconv.ParseFloat(s, 64)
	if err != nil || val < 366 {
		return time.Time{}, false
	}

	days := int(val)
	fraction := val - float64(days)

	t := excelEpoch.AddDate(0, 0, days)
	if fraction > 0 {
		// Round to whole seconds, serials carry no more precision.
		secs := fraction * 24 * 60 * 60
		t = t.Add(time.Duration(secs+0.5) * time.Second)
	}
	return t, true
}
