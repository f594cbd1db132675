// Package worker implements the per-feed poll cycle: one fetch, journal
// diff, delivery to the publisher sink, and interval recomputation per
// subscription (spec.md §4.5). Grounded on services/rssbot/rssbot.go's
// pollFeeds-to-sendToRooms pipeline, generalized from "one feed to many
// Matrix rooms" to this system's fetch→diff→deliver→reschedule contract,
// and on original_source/cordfeeder/poller.py's Poller._poll_feed for the
// error-kind dispositions and adaptive-interval formula.
package worker

import (
	"context"

	"github.com/matrix-org/feedbot/internal/fetch"
	"github.com/matrix-org/feedbot/internal/render"
)

// Store is the subset of *store.Store (and testutils.MemStore) one poll
// cycle needs.
type Store interface {
	PostedSubset(subscriptionID int64, itemGUIDs []string) (map[string]bool, error)
	RecordPosted(subscriptionID int64, itemGUID, messageID string) error
	UpdateState(id int64, fields map[string]interface{}) error
	RemoveSubscription(id int64) error
}

// Fetcher is the subset of *fetch.Fetcher a poll cycle needs.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL, etag, lastModified string) fetch.Outcome
}

// Sink is the subset of publish.Sink a poll cycle needs.
type Sink interface {
	Post(channelID string, msg render.Message) (string, error)
	NotifyRemoved(channelID string, msg render.Message) error
	ResolveChannel(channelID string) (bool, error)
}

// Limits bounds interval computation and delivery batch size, narrowed from
// config.Config so this package doesn't depend on the whole configuration
// surface.
type Limits struct {
	DefaultPollInterval int
	MinPollInterval     int
	MaxPollInterval     int
	MaxItemsPerPoll     int
}
