package feedparse

import "strings"

// truncateAtWordBoundary returns s unchanged if it is at most limit runes
// long; otherwise it cuts at the last space at or before limit and appends
// "…". Grounded on spec.md §4.2's title-synthesis and summary-truncation
// rules, which share this exact algorithm at different limits (80, 300).
func truncateAtWordBoundary(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ") + "…"
}
