package util

import "strings"

// SanitizeText drops invalid UTF-8 and NUL bytes, which PostgreSQL jsonb
// rejects, and trims surrounding whitespace.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.TrimSpace(strings.ReplaceAll(sanitized, "\x00", ""))
}

// SanitizeList applies SanitizeText to every entry and drops empty results.
func SanitizeList(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = SanitizeText(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
