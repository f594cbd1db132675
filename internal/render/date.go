package render

import (
	"strconv"
	"time"
)

// dateLayouts covers the publication-date formats feeds commonly use. Go has
// no ecosystem equivalent of Python's dateutil flexible parser in the
// example pack, so this is a deliberate, documented stdlib fallback: each
// layout is tried in turn and the first successful parse wins.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z07:00",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePublished(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatDate renders a relative-then-absolute timestamp the way
// original_source/cordfeeder/formatter.py's _format_date does, after parsing
// the document-provided string with parsePublished's stdlib fallback.
func formatDate(published string, now time.Time) string {
	t, ok := parsePublished(published)
	if !ok {
		return ""
	}
	return formatRelative(t, now)
}

// formatRelative buckets the time since t: "just now" under a minute, "Xm
// ago" under an hour, "Xh ago" under a day, "Xd ago" under a week, an
// absolute date beyond that (or for anything in the future, which a
// relative phrase can't sensibly describe).
func formatRelative(t, now time.Time) string {
	delta := now.Sub(t)
	switch {
	case delta < 0:
		return t.Format("2 Jan 2006")
	case delta < time.Minute:
		return "just now"
	case delta < time.Hour:
		return pluralAgo(int(delta.Minutes()), "m")
	case delta < 24*time.Hour:
		return pluralAgo(int(delta.Hours()), "h")
	case delta < 7*24*time.Hour:
		return pluralAgo(int(delta.Hours())/24, "d")
	default:
		return t.Format("2 Jan 2006")
	}
}

func pluralAgo(n int, unit string) string {
	if n < 1 {
		n = 1
	}
	return strconv.Itoa(n) + unit + " ago"
}
