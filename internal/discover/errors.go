package discover

import "errors"

// ErrFeedNotFound is returned when none of the three discovery strategies
// yield a validating feed document (spec.md §4.3, §7).
var ErrFeedNotFound = errors.New("discover: no feed found at this page")
