package store

import "errors"

// Sentinel errors returned by Store operations (spec.md §7).
var (
	// ErrDuplicateSubscription is returned by AddSubscription when
	// (feed_url, server_id) already exists.
	ErrDuplicateSubscription = errors.New("store: subscription already exists for this feed and server")
	// ErrUnknownStateField is returned by UpdateState when a field name
	// outside the recognised set is supplied.
	ErrUnknownStateField = errors.New("store: unknown state field")
	// ErrNotFound is returned by lookups that find no matching row.
	ErrNotFound = errors.New("store: not found")
)
