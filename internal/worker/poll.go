package worker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/feedbot/internal/fetch"
	"github.com/matrix-org/feedbot/internal/metrics"
	"github.com/matrix-org/feedbot/internal/render"
	"github.com/matrix-org/feedbot/internal/store"
)

const (
	rateLimitFloorSeconds = 14400
	maxBackoffSeconds     = 86400
)

// Poll runs one complete poll cycle for sub: fetch, disposition the
// outcome, diff/deliver/journal new items on a fresh document, recompute
// the interval, and persist the resulting scheduling state. Worker-level
// failures are logged here and never returned, per spec.md §4.6 ("worker
// failures are logged, never propagated to the scheduler").
func Poll(ctx context.Context, st Store, f Fetcher, sink Sink, sub store.Subscription, limits Limits, now time.Time) {
	logger := log.WithFields(log.Fields{"subscription_id": sub.ID, "feed_url": sub.FeedURL})

	outcome := f.Fetch(ctx, sub.FeedURL, sub.ETag, sub.LastModified)
	metrics.IncrementPoll(outcome.Kind.String())

	switch outcome.Kind {
	case fetch.NotModified:
		next := now.Add(time.Duration(sub.PollInterval) * time.Second)
		if err := st.UpdateState(sub.ID, map[string]interface{}{
			"consecutive_errors": 0,
			"last_poll_at":       now,
			"next_poll_at":       next,
		}); err != nil {
			logger.WithError(err).Error("failed to persist not-modified state")
		}
		return

	case fetch.PermanentGone:
		msg := render.Removed(sub.DisplayName, "the feed returned HTTP 410 Gone and has been unsubscribed")
		if err := sink.NotifyRemoved(sub.ChannelID, msg); err != nil {
			logger.WithError(err).Warn("failed to notify channel of removal")
		}
		if err := st.RemoveSubscription(sub.ID); err != nil {
			logger.WithError(err).Error("failed to remove gone subscription")
		}
		return

	case fetch.RateLimited:
		retrySeconds := rateLimitFloorSeconds
		if outcome.RetryAfter != nil && *outcome.RetryAfter > retrySeconds {
			retrySeconds = *outcome.RetryAfter
		}
		next := now.Add(time.Duration(retrySeconds) * time.Second)
		if err := st.UpdateState(sub.ID, map[string]interface{}{
			"next_poll_at": next,
		}); err != nil {
			logger.WithError(err).Error("failed to persist rate-limit backoff")
		}
		return

	case fetch.Fresh:
		pollFresh(st, sink, sub, outcome, limits, now, logger)
		return

	default:
		recordFeedError(st, sub, outcome, now, logger)
		return
	}
}

// recordFeedError applies the exponential-backoff disposition shared by
// ServerError, HttpError, PayloadTooLarge, NetworkError and ParseError.
func recordFeedError(st Store, sub store.Subscription, outcome fetch.Outcome, now time.Time, logger *log.Entry) {
	consecutive := sub.ConsecutiveErrors + 1
	backoff := sub.PollInterval
	if backoff <= 0 {
		backoff = 1
	}
	for i := 0; i < consecutive && backoff < maxBackoffSeconds; i++ {
		backoff *= 2
	}
	if backoff > maxBackoffSeconds {
		backoff = maxBackoffSeconds
	}
	next := now.Add(intervalWithJitterFraction(backoff, 0.10))

	errMsg := ""
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	} else if outcome.Status != 0 {
		errMsg = fmt.Sprintf("%s: HTTP %d", outcome.Kind, outcome.Status)
	} else {
		errMsg = outcome.Kind.String()
	}

	if err := st.UpdateState(sub.ID, map[string]interface{}{
		"consecutive_errors": consecutive,
		"last_error":         errMsg,
		"next_poll_at":       next,
	}); err != nil {
		logger.WithError(err).Error("failed to persist feed-error backoff")
	}
}

// pollFresh diffs outcome.Items against the journal, delivers the unposted
// subset (oldest-first, capped to limits.MaxItemsPerPoll), journals each
// regardless of delivery outcome, and reschedules the subscription.
func pollFresh(st Store, sink Sink, sub store.Subscription, outcome fetch.Outcome, limits Limits, now time.Time, logger *log.Entry) {
	guids := make([]string, len(outcome.Items))
	for i, it := range outcome.Items {
		guids[i] = it.GUID
	}
	posted, err := st.PostedSubset(sub.ID, guids)
	if err != nil {
		logger.WithError(err).Error("failed to diff posted items")
		return
	}

	var unposted []int
	for i, it := range outcome.Items {
		if !posted[it.GUID] {
			unposted = append(unposted, i)
		}
	}

	// Document order is newest-first (standard RSS/Atom convention); keep
	// the first (most recent) N, then deliver oldest-first.
	if len(unposted) > limits.MaxItemsPerPoll {
		unposted = unposted[:limits.MaxItemsPerPoll]
	}
	for i, j := 0, len(unposted)-1; i < j; i, j = i+1, j-1 {
		unposted[i], unposted[j] = unposted[j], unposted[i]
	}

	resolvable, err := sink.ResolveChannel(sub.ChannelID)
	if err != nil {
		logger.WithError(err).Warn("failed to resolve channel; delivering best-effort")
		resolvable = true
	}

	for _, idx := range unposted {
		item := outcome.Items[idx]
		messageID := ""
		if resolvable {
			msg := render.Item(sub.DisplayName, item, now)
			id, postErr := sink.Post(sub.ChannelID, msg)
			if postErr != nil {
				logger.WithError(postErr).WithField("item_guid", item.GUID).Warn("failed to deliver item")
			} else {
				messageID = id
			}
		}
		// Journal regardless of delivery outcome: the anti-duplicate
		// invariant (spec.md §8, invariant 1) depends on this.
		if err := st.RecordPosted(sub.ID, item.GUID, messageID); err != nil {
			logger.WithError(err).WithField("item_guid", item.GUID).Error("failed to journal item")
		}
	}

	interval := nextInterval(sub, outcome, limits, now)
	next := now.Add(time.Duration(interval)*time.Second + intervalWithJitterFraction(interval, 0.25))
	if err := st.UpdateState(sub.ID, map[string]interface{}{
		"etag":               outcome.ETag,
		"last_modified":      outcome.LastModified,
		"consecutive_errors": 0,
		"last_error":         "",
		"poll_interval":      interval,
		"last_poll_at":       now,
		"next_poll_at":       next,
	}); err != nil {
		logger.WithError(err).Error("failed to persist post-poll state")
	}
}

// nextInterval implements spec.md §4.5 step 5: warmup uses the configured
// default; otherwise the adaptive interval when computable, else the
// subscription's current interval; always clamped.
func nextInterval(sub store.Subscription, outcome fetch.Outcome, limits Limits, now time.Time) int {
	warmupWindow := 4 * time.Duration(limits.DefaultPollInterval) * time.Second
	if now.Sub(sub.CreatedAt) < warmupWindow {
		return clampInterval(limits.DefaultPollInterval, limits.MinPollInterval, limits.MaxPollInterval)
	}
	if adaptive, ok := adaptiveInterval(outcome.Items, limits.MinPollInterval, limits.MaxPollInterval); ok {
		return adaptive
	}
	return clampInterval(sub.PollInterval, limits.MinPollInterval, limits.MaxPollInterval)
}

// intervalWithJitterFraction returns a uniform random duration in
// [0, baseSeconds*fraction] seconds.
func intervalWithJitterFraction(baseSeconds int, fraction float64) time.Duration {
	maxJitter := float64(baseSeconds) * fraction
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Float64()*maxJitter) * time.Second
}
