// Package command implements the chat-facing command facade: subscribe,
// unsubscribe, list, preview, status (spec.md §6). Grounded on
// clients.go's onMessageEvent/runCommandForService dispatch loop and
// types/actions.go's Command/Matches shape, generalized from go-neb's
// generic per-service command registration to this system's fixed set of
// five feed-aggregator operations.
package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/matrix-org/feedbot/internal/fetch"
	"github.com/matrix-org/feedbot/internal/feedparse"
	"github.com/matrix-org/feedbot/internal/metrics"
	"github.com/matrix-org/feedbot/internal/render"
	"github.com/matrix-org/feedbot/internal/store"
	"github.com/matrix-org/feedbot/internal/worker"
)

// Store is the subset of *store.Store the command facade needs.
type Store interface {
	AddSubscription(feedURL, displayName, channelID, serverID, addedBy string, defaultInterval int) (int64, error)
	RemoveSubscription(id int64) error
	GetSubscription(id int64) (store.Subscription, error)
	GetSubscriptionByURL(feedURL, serverID string) (store.Subscription, error)
	ListSubscriptions(serverID string) ([]store.Subscription, error)
	UpdateChannel(id int64, channelID string) error
	RecordPosted(subscriptionID int64, itemGUID, messageID string) error
}

// Discoverer resolves a user-supplied URL or page to a feed URL.
type Discoverer interface {
	Discover(ctx context.Context, pageURL string) (string, error)
}

// Fetcher is the subset of *fetch.Fetcher the facade needs for the
// one-shot fetch subscribe/preview perform against the resolved feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL, etag, lastModified string) fetch.Outcome
}

// SubscribeOutcome tags the disjoint results of Subscribe, per spec.md §6.
type SubscribeOutcome int

const (
	Created SubscribeOutcome = iota
	Moved
	AlreadyHere
	NotFound
)

func (o SubscribeOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case Moved:
		return "moved"
	case AlreadyHere:
		return "already_here"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Facade wires the store, discoverer, fetcher, and publisher sink into the
// five chat-facing operations.
type Facade struct {
	Store      Store
	Discoverer Discoverer
	Fetcher    Fetcher
	Sink       worker.Sink
	Limits     worker.Limits

	// InitialItemsCount is the number of items delivered (oldest-first) on
	// a new Created subscription (spec.md §6; default 3).
	InitialItemsCount int
}

// Subscribe implements spec.md §6's subscribe operation. A numeric
// urlOrID is interpreted as an existing subscription id scoped to
// serverID (a move); otherwise discovery is run against urlOrID as a page
// or feed URL.
func (f *Facade) Subscribe(ctx context.Context, urlOrID, channelID, serverID, userID string) (SubscribeOutcome, error) {
	if id, err := strconv.ParseInt(urlOrID, 10, 64); err == nil {
		return f.moveByID(id, channelID, serverID)
	}

	feedURL, err := f.Discoverer.Discover(ctx, urlOrID)
	if err != nil {
		return NotFound, err
	}

	if existing, err := f.Store.GetSubscriptionByURL(feedURL, serverID); err == nil {
		if existing.ChannelID == channelID {
			return AlreadyHere, nil
		}
		if err := f.Store.UpdateChannel(existing.ID, channelID); err != nil {
			return NotFound, err
		}
		return Moved, nil
	} else if err != store.ErrNotFound {
		return NotFound, err
	}

	outcome := f.Fetcher.Fetch(ctx, feedURL, "", "")
	if outcome.Kind != fetch.Fresh {
		return NotFound, fmt.Errorf("command: could not fetch discovered feed: %s", outcome.Kind)
	}

	displayName := outcome.Metadata.Title
	if displayName == "" {
		displayName = feedURL
	}

	id, err := f.Store.AddSubscription(feedURL, displayName, channelID, serverID, userID, f.Limits.DefaultPollInterval)
	if err != nil {
		return NotFound, err
	}

	// Pre-journal every item in the initial parse before delivering any of
	// them, so a crash mid-bootstrap can't cause the scheduler to
	// re-deliver old items on the next tick (spec.md §6).
	for _, item := range outcome.Items {
		if err := f.Store.RecordPosted(id, item.GUID, ""); err != nil {
			return Created, err
		}
	}

	deliver := mostRecentOldestFirst(outcome.Items, f.InitialItemsCount)
	for _, item := range deliver {
		msg := render.Item(displayName, item, time.Now().UTC())
		if _, err := f.Sink.Post(channelID, msg); err != nil {
			metrics.IncrementCommand("subscribe", metrics.StatusFailure)
		}
	}

	metrics.IncrementCommand("subscribe", metrics.StatusSuccess)
	return Created, nil
}

func (f *Facade) moveByID(id int64, channelID, serverID string) (SubscribeOutcome, error) {
	sub, err := f.Store.GetSubscription(id)
	if err == store.ErrNotFound || (err == nil && sub.ServerID != serverID) {
		return NotFound, nil
	}
	if err != nil {
		return NotFound, err
	}
	if sub.ChannelID == channelID {
		return AlreadyHere, nil
	}
	if err := f.Store.UpdateChannel(id, channelID); err != nil {
		return NotFound, err
	}
	return Moved, nil
}

// Unsubscribe removes a subscription, scoped to serverID so one server
// can't remove another's subscription by guessing ids.
func (f *Facade) Unsubscribe(id int64, serverID string) error {
	sub, err := f.Store.GetSubscription(id)
	if err != nil {
		return err
	}
	if sub.ServerID != serverID {
		return store.ErrNotFound
	}
	return f.Store.RemoveSubscription(id)
}

// List returns every subscription for serverID, ordered by display name
// (store.ListSubscriptions already orders this way).
func (f *Facade) List(serverID string) ([]store.Subscription, error) {
	return f.Store.ListSubscriptions(serverID)
}

// PreviewResult is the read-only result of Preview: feed metadata and its
// most recent items, without creating a subscription.
type PreviewResult struct {
	FeedURL  string
	Metadata feedparse.FeedMetadata
	Items    []feedparse.FeedItem
}

// Preview discovers and fetches a feed without subscribing to it.
func (f *Facade) Preview(ctx context.Context, urlOrID, serverID string) (PreviewResult, error) {
	feedURL := urlOrID
	if id, err := strconv.ParseInt(urlOrID, 10, 64); err == nil {
		sub, err := f.Store.GetSubscription(id)
		if err != nil || sub.ServerID != serverID {
			return PreviewResult{}, store.ErrNotFound
		}
		feedURL = sub.FeedURL
	} else {
		resolved, err := f.Discoverer.Discover(ctx, urlOrID)
		if err != nil {
			return PreviewResult{}, err
		}
		feedURL = resolved
	}

	outcome := f.Fetcher.Fetch(ctx, feedURL, "", "")
	if outcome.Kind != fetch.Fresh {
		return PreviewResult{}, fmt.Errorf("command: could not fetch feed: %s", outcome.Kind)
	}
	return PreviewResult{FeedURL: feedURL, Metadata: outcome.Metadata, Items: outcome.Items}, nil
}

// StatusLine reports one subscription's health for the status command.
type StatusLine struct {
	Subscription store.Subscription
	Healthy      bool
}

// StatusReport is the full !status response: the per-subscription health
// lines plus the aggregate summary bot.py:feed_config's status text opens
// with (total subscriptions, how many are erroring, the configured default
// poll interval).
type StatusReport struct {
	Lines               []StatusLine
	Total               int
	Erroring            int
	DefaultPollInterval int
}

// Status reports every subscription for serverID alongside whether it's
// currently healthy (consecutive_errors == 0), per spec.md §7's rule that
// per-feed errors become user-visible once consecutive_errors > 0.
func (f *Facade) Status(serverID string) (StatusReport, error) {
	subs, err := f.Store.ListSubscriptions(serverID)
	if err != nil {
		return StatusReport{}, err
	}
	lines := make([]StatusLine, len(subs))
	erroring := 0
	for i, sub := range subs {
		healthy := sub.ConsecutiveErrors == 0
		lines[i] = StatusLine{Subscription: sub, Healthy: healthy}
		if !healthy {
			erroring++
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Subscription.DisplayName < lines[j].Subscription.DisplayName
	})
	return StatusReport{
		Lines:               lines,
		Total:               len(subs),
		Erroring:            erroring,
		DefaultPollInterval: f.Limits.DefaultPollInterval,
	}, nil
}

// mostRecentOldestFirst keeps the first (most recent, document order) n
// items then reverses them, mirroring the worker's own delivery-order rule.
func mostRecentOldestFirst(items []feedparse.FeedItem, n int) []feedparse.FeedItem {
	if n <= 0 || n > len(items) {
		n = len(items)
	}
	out := make([]feedparse.FeedItem, n)
	copy(out, items[:n])
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
