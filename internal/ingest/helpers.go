package ingest

import (
	"strings"
)

// normalizeSpace collapses runs of whitespace into one space and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedupKey identifies the same tender published more than once.
func dedupKey(title, client string) string {
	return strings.ToLower(normalizeSpace(title)) + "\x00" + strings.ToLower(normalizeSpace(client))
}

// containsFold reports whether substr occurs in s, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
