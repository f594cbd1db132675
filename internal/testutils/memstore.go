package testutils

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matrix-org/feedbot/internal/store"
)

// MemStore is an in-memory stand-in for *store.Store, grounded on
// database.NopStorage's role in the teacher repo: a test double that
// satisfies the same operation surface without touching a real database.
// Used by worker, scheduler and command tests.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*store.Subscription
	posted map[int64]map[string]bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		subs:   make(map[int64]*store.Subscription),
		posted: make(map[int64]map[string]bool),
	}
}

func (m *MemStore) AddSubscription(feedURL, displayName, channelID, serverID, addedBy string, defaultInterval int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.FeedURL == feedURL && s.ServerID == serverID {
			return 0, store.ErrDuplicateSubscription
		}
	}
	m.nextID++
	id := m.nextID
	m.subs[id] = &store.Subscription{
		ID:          id,
		FeedURL:     feedURL,
		DisplayName: displayName,
		ChannelID:   channelID,
		ServerID:    serverID,
		AddedBy:     addedBy,
		CreatedAt:   time.Now().UTC(),
		PollInterval: defaultInterval,
	}
	m.posted[id] = make(map[string]bool)
	return id, nil
}

func (m *MemStore) RemoveSubscription(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	delete(m.posted, id)
	return nil
}

func (m *MemStore) GetSubscription(id int64) (store.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return store.Subscription{}, store.ErrNotFound
	}
	return *s, nil
}

func (m *MemStore) GetSubscriptionByURL(feedURL, serverID string) (store.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.FeedURL == feedURL && s.ServerID == serverID {
			return *s, nil
		}
	}
	return store.Subscription{}, store.ErrNotFound
}

func (m *MemStore) ListSubscriptions(serverID string) ([]store.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Subscription
	for _, s := range m.subs {
		if s.ServerID == serverID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (m *MemStore) UpdateChannel(id int64, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return store.ErrNotFound
	}
	s.ChannelID = channelID
	return nil
}

func (m *MemStore) UpdateURL(id int64, feedURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return store.ErrNotFound
	}
	s.FeedURL = feedURL
	return nil
}

func (m *MemStore) GetState(id int64) (store.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return store.State{}, store.ErrNotFound
	}
	return store.State{
		ETag:              s.ETag,
		LastModified:      s.LastModified,
		LastPollAt:        s.LastPollAt,
		NextPollAt:        s.NextPollAt,
		PollInterval:      s.PollInterval,
		ConsecutiveErrors: s.ConsecutiveErrors,
		LastError:         s.LastError,
	}, nil
}

// memStateColumns mirrors store's unexported stateColumns whitelist; kept
// duplicated deliberately since this is a standalone test double, not a
// production code path that should share store's internals.
var memStateColumns = map[string]bool{
	"etag": true, "last_modified": true, "last_poll_at": true, "next_poll_at": true,
	"poll_interval": true, "consecutive_errors": true, "last_error": true,
}

func (m *MemStore) UpdateState(id int64, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range fields {
		if !memStateColumns[k] {
			return fmt.Errorf("%w: %q", store.ErrUnknownStateField, k)
		}
		switch k {
		case "etag":
			s.ETag, _ = v.(string)
		case "last_modified":
			s.LastModified, _ = v.(string)
		case "last_poll_at":
			s.LastPollAt = asTimePtr(v)
		case "next_poll_at":
			s.NextPollAt = asTimePtr(v)
		case "poll_interval":
			s.PollInterval, _ = v.(int)
		case "consecutive_errors":
			s.ConsecutiveErrors, _ = v.(int)
		case "last_error":
			s.LastError, _ = v.(string)
		}
	}
	return nil
}

func asTimePtr(v interface{}) *time.Time {
	switch tv := v.(type) {
	case time.Time:
		return &tv
	case *time.Time:
		return tv
	default:
		return nil
	}
}

func (m *MemStore) RecordPosted(subscriptionID int64, itemGUID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.posted[subscriptionID] == nil {
		m.posted[subscriptionID] = make(map[string]bool)
	}
	m.posted[subscriptionID][itemGUID] = true
	return nil
}

func (m *MemStore) IsPosted(subscriptionID int64, itemGUID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posted[subscriptionID][itemGUID], nil
}

func (m *MemStore) PostedSubset(subscriptionID int64, itemGUIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, g := range itemGUIDs {
		if m.posted[subscriptionID][g] {
			out[g] = true
		}
	}
	return out, nil
}

func (m *MemStore) DueSubscriptions(now time.Time) ([]store.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Subscription
	for _, s := range m.subs {
		if s.NextPollAt == nil || !s.NextPollAt.After(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextPollAt == nil {
			return out[j].NextPollAt != nil || out[i].ID < out[j].ID
		}
		if out[j].NextPollAt == nil {
			return false
		}
		return out[i].NextPollAt.Before(*out[j].NextPollAt)
	})
	return out, nil
}

func (m *MemStore) PruneJournal(olderThanDays int) (int64, error) {
	return 0, nil
}

func (m *MemStore) CountSubscriptions() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs), nil
}
