package parser

import "errors"

var (
	// ErrUnsupportedFormat is returned for formats the parser does not handle.
	ErrUnsupportedFormat = errors.New("unsupported event log format")

	// ErrEmptyWorkbook is returned when an XLSX file has no sheets.
	ErrEmptyWorkbook = errors.New("xlsx workbook has no sheets")
)
