// Package publish delivers rendered messages to a chat platform and reports
// whether delivery produced a usable message ID for the journal. Grounded on
// types/service.go's MatrixClient interface and services/rssbot/rssbot.go's
// sendToRooms/itemToHTML, generalized from "one feed to many rooms" to the
// one-subscription-to-one-channel model spec.md §3 describes, and widened to
// an interface so internal/worker and internal/command depend on a seam
// rather than a concrete Matrix client (easing tests with a fake sink).
package publish

import "github.com/matrix-org/feedbot/internal/render"

// Sink posts rendered messages to a channel and reports delivery outcomes.
// channelID is opaque to this package: for the Matrix implementation it's a
// room ID or alias.
type Sink interface {
	// Post delivers msg to channelID, returning a platform message ID if the
	// platform assigns one. Spec.md §3 records the item as posted in the
	// journal regardless of whether Post succeeds, so callers must not
	// retry on error.
	Post(channelID string, msg render.Message) (messageID string, err error)

	// NotifyRemoved tells channelID that a subscription was auto-removed.
	NotifyRemoved(channelID string, msg render.Message) error

	// ResolveChannel reports whether channelID is currently reachable
	// (e.g. the bot is joined to the room). The worker skips Post for an
	// unreachable channel but still journals the items.
	ResolveChannel(channelID string) (bool, error)
}
