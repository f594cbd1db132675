// Package fetch implements the conditional-GET state machine that turns a
// subscription's saved validators into a status-classified, already-parsed
// fetch outcome (spec.md §4.4). Grounded on
// original_source/cordfeeder/poller.py's fetch_feed (status→outcome mapping,
// Retry-After integer-only parsing, per-host semaphore) and
// services/rssbot/rssbot.go's userAgentRoundTripper header-injection idiom.
package fetch

import "github.com/matrix-org/feedbot/internal/feedparse"

// Kind tags the disjoint outcomes fetch can produce.
type Kind int

const (
	NotModified Kind = iota
	Fresh
	PermanentGone
	RateLimited
	ServerError
	HttpError
	PayloadTooLarge
	NetworkError
	ParseError
)

func (k Kind) String() string {
	switch k {
	case NotModified:
		return "not_modified"
	case Fresh:
		return "fresh"
	case PermanentGone:
		return "permanent_gone"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case HttpError:
		return "http_error"
	case PayloadTooLarge:
		return "payload_too_large"
	case NetworkError:
		return "network_error"
	case ParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged-union result of one fetch attempt. Only the fields
// relevant to Kind are populated; the rest are zero values. Fresh carries
// the already-parsed feed (rather than raw bytes) since the worker's very
// next step is the journal diff against Items — folding parse_feed into
// fetch keeps ParseError, which spec.md §4.4 defines as a fetch-time
// outcome, at the point where the parse actually happens.
type Outcome struct {
	Kind Kind

	Metadata     feedparse.FeedMetadata
	Items        []feedparse.FeedItem
	ETag         string
	LastModified string

	RetryAfter *int
	Status     int
	Err        error
}
