package feedparse

import "errors"

// ErrUnparseable is returned when a document yields no items and the
// underlying parser flagged a fault (spec.md §4.2, §7).
var ErrUnparseable = errors.New("feedparse: document is not a parseable feed")
