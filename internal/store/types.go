package store

import "time"

// Subscription is the unit of configuration created by subscribe and
// destroyed by unsubscribe or auto-removal on PermanentGone (spec.md §3).
type Subscription struct {
	ID          int64
	FeedURL     string
	DisplayName string
	ChannelID   string
	ServerID    string
	AddedBy     string
	CreatedAt   time.Time

	// Polling state. Mutated by the worker, never by commands except as
	// documented (UpdateChannel, UpdateURL).
	ETag              string
	LastModified      string
	LastPollAt        *time.Time
	NextPollAt        *time.Time
	PollInterval      int
	ConsecutiveErrors int
	LastError         string
}

// JournalEntry records that an item with a given guid has already been
// delivered for a given subscription (spec.md §3).
type JournalEntry struct {
	SubscriptionID int64
	ItemGUID       string
	PostedAt       time.Time
	MessageID      string
}

// State is a scheduling-state snapshot returned by GetState.
type State struct {
	ETag              string
	LastModified      string
	LastPollAt        *time.Time
	NextPollAt        *time.Time
	PollInterval      int
	ConsecutiveErrors int
	LastError         string
}

// stateColumns is the whitelist of field names UpdateState accepts, mirroring
// original_source/cordfeeder/database.py's _FEED_STATE_COLUMNS. Any key
// outside this set makes UpdateState fail with ErrUnknownStateField.
var stateColumns = map[string]bool{
	"etag":               true,
	"last_modified":      true,
	"last_poll_at":       true,
	"next_poll_at":       true,
	"poll_interval":      true,
	"consecutive_errors": true,
	"last_error":         true,
}
