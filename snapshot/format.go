package snapshot

import (
	"fmt"
	"strings"
)

// ParseFormat validates a workbook format. Only xlsx and xls are recognized;
// matching is case-insensitive.
func ParseFormat(value string) (Format, error) {
	normalized := Format(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FormatXLSX, FormatXLS:
		return normalized, nil
	default:
		return "", NewError(KindConfig, fmt.Sprintf("unsupported workbook format %q", value), nil)
	}
}

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	return string(f)
}
