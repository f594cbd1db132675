package worker

import (
	"sort"
	"time"

	"github.com/matrix-org/feedbot/internal/feedparse"
)

// adaptiveInterval computes half the mean gap between consecutive
// publication timestamps (sorted newest first), per spec.md §4.5. Returns
// ok=false when fewer than two items carry a parseable timestamp.
func adaptiveInterval(items []feedparse.FeedItem, minInterval, maxInterval int) (seconds int, ok bool) {
	var timestamps []time.Time
	for _, it := range items {
		if it.PublishedParsed != nil {
			timestamps = append(timestamps, *it.PublishedParsed)
		}
	}
	if len(timestamps) < 2 {
		return 0, false
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].After(timestamps[j]) })

	var totalGap time.Duration
	gapCount := 0
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i-1].Sub(timestamps[i])
		if gap < 0 {
			gap = -gap
		}
		totalGap += gap
		gapCount++
	}
	meanGap := totalGap / time.Duration(gapCount)
	candidate := int(meanGap.Seconds() / 2)
	return clampInterval(candidate, minInterval, maxInterval), true
}

func clampInterval(seconds, minInterval, maxInterval int) int {
	if seconds < minInterval {
		return minInterval
	}
	if seconds > maxInterval {
		return maxInterval
	}
	return seconds
}
