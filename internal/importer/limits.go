// Package importer parses bank statement files and loads them into storage.
package importer

import "log/slog"

// Column length limits enforced before persistence. Bank exports
// occasionally stuff entire memo blocks into single fields.
var fieldLimits = map[string]int{
	"description":      1024,
	"partner_name":     255,
	"partner_iban":     34,
	"reference":        1024,
	"reference_number": 100,
	"merchant_name":    255,
	"payment_method":   100,
	"card_brand":       50,
}

const defaultFieldLimit = 255

// truncateField clips a value to its column limit, logging when data is lost.
func truncateField(field, value string) string {
	if value == "" {
		return ""
	}
	limit, ok := fieldLimits[field]
	if !ok {
		limit = defaultFieldLimit
	}
	if len(value) <= limit {
		return value
	}
	preview := value
	if len(preview) > 100 {
		preview = preview[:100]
	}
	slog.Warn("truncating oversized field",
		"field", field,
		"length", len(value),
		"limit", limit,
		"preview", preview)
	return value[:limit]
}
