// Package feedparse turns a raw feed document into an ordered list of items
// plus feed-level metadata (spec.md §4.2). It is a pure, non-suspending
// component: no network I/O, no database access.
package feedparse

import "time"

// FeedItem is a transient value produced by ParseFeed, owned by the worker
// for the duration of one poll cycle.
type FeedItem struct {
	Title     string
	Link      string
	GUID      string
	Summary   string
	Author    string
	Published string
	ImageURL  string

	// PublishedParsed is gofeed's own best-effort parse of Published, reused
	// here rather than hand-rolling a second date parser; nil when gofeed
	// couldn't make sense of the document's date format.
	PublishedParsed *time.Time
}

// FeedMetadata is the transient, feed-level counterpart to FeedItem.
type FeedMetadata struct {
	Title       string
	Link        string
	Description string
	TTL         *int
	ImageURL    string
}
