package store

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	if err := migrate(db, "sqlite3"); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate(db, "sqlite3"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrateFromLegacyTwoTableLayout(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`
		CREATE TABLE feeds (
			id INTEGER PRIMARY KEY, url TEXT, name TEXT, channel_id TEXT,
			guild_id TEXT, added_by TEXT, created_at TEXT
		);
		CREATE TABLE feed_state (
			feed_id INTEGER, etag TEXT, last_modified TEXT, last_poll_at TEXT,
			next_poll_at TEXT, poll_interval INTEGER, consecutive_errors INTEGER, last_error TEXT
		);
		INSERT INTO feeds VALUES (1, 'https://example.com/feed.xml', 'Example', '!room:x', 'server1', 'u1', '2026-01-01T00:00:00Z');
		INSERT INTO feed_state VALUES (1, 'etag-1', '', NULL, NULL, 900, 0, '');
	`); err != nil {
		t.Fatalf("seed legacy schema: %v", err)
	}

	if err := migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	row := db.QueryRow(`SELECT feed_url, display_name, etag, poll_interval FROM subscriptions WHERE id = 1`)
	var feedURL, displayName, etag string
	var pollInterval int
	if err := row.Scan(&feedURL, &displayName, &etag, &pollInterval); err != nil {
		t.Fatalf("scan migrated row: %v", err)
	}
	if feedURL != "https://example.com/feed.xml" || displayName != "Example" || etag != "etag-1" || pollInterval != 900 {
		t.Fatalf("unexpected migrated row: %q %q %q %d", feedURL, displayName, etag, pollInterval)
	}

	var remaining int
	if err := db.QueryRow(legacyTablesCheckSQL).Scan(&remaining); err != sql.ErrNoRows {
		t.Fatalf("expected legacy tables dropped, got err=%v", err)
	}

	if err := migrate(db, "sqlite3"); err != nil {
		t.Fatalf("re-migrate after drop: %v", err)
	}
}

func TestAddAndGetSubscription(t *testing.T) {
	st := openTestStore(t)
	id, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	sub, err := st.GetSubscription(id)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.FeedURL != "https://example.com/feed.xml" || sub.PollInterval != 900 || sub.NextPollAt != nil {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
}

func TestAddSubscriptionDuplicateRejected(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if _, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!other:example.org", "server1", "user1", 900); err != ErrDuplicateSubscription {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.GetSubscription(999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveSubscriptionCascadesJournal(t *testing.T) {
	st := openTestStore(t)
	id, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if err := st.RecordPosted(id, "guid-1", "msg-1"); err != nil {
		t.Fatalf("RecordPosted: %v", err)
	}

	if err := st.RemoveSubscription(id); err != nil {
		t.Fatalf("RemoveSubscription: %v", err)
	}

	var count int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM posted_items WHERE subscription_id = ?`, id).Scan(&count); err != nil {
		t.Fatalf("query posted_items: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected journal entries to cascade-delete, found %d", count)
	}
}

func TestRemoveSubscriptionIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	if err := st.RemoveSubscription(12345); err != nil {
		t.Fatalf("RemoveSubscription on unknown id: %v", err)
	}
}

func TestUpdateStateRejectsUnknownField(t *testing.T) {
	st := openTestStore(t)
	id, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	err = st.UpdateState(id, map[string]interface{}{"display_name": "hijacked"})
	if err == nil {
		t.Fatal("expected an error for an unwhitelisted field")
	}
}

func TestUpdateStateRoundTrips(t *testing.T) {
	st := openTestStore(t)
	id, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	next := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := st.UpdateState(id, map[string]interface{}{
		"etag":               "etag-2",
		"consecutive_errors": 2,
		"next_poll_at":       next,
	}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	state, err := st.GetState(id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.ETag != "etag-2" || state.ConsecutiveErrors != 2 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.NextPollAt == nil || !state.NextPollAt.Equal(next) {
		t.Fatalf("expected next_poll_at %v, got %v", next, state.NextPollAt)
	}
}

func TestRecordPostedIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	id, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if err := st.RecordPosted(id, "guid-1", "msg-1"); err != nil {
		t.Fatalf("first RecordPosted: %v", err)
	}
	if err := st.RecordPosted(id, "guid-1", "msg-2"); err != nil {
		t.Fatalf("second RecordPosted: %v", err)
	}

	posted, err := st.IsPosted(id, "guid-1")
	if err != nil || !posted {
		t.Fatalf("expected guid-1 to be posted, got %v (err=%v)", posted, err)
	}
}

func TestPostedSubset(t *testing.T) {
	st := openTestStore(t)
	id, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if err := st.RecordPosted(id, "guid-1", ""); err != nil {
		t.Fatalf("RecordPosted: %v", err)
	}

	subset, err := st.PostedSubset(id, []string{"guid-1", "guid-2"})
	if err != nil {
		t.Fatalf("PostedSubset: %v", err)
	}
	if !subset["guid-1"] || subset["guid-2"] {
		t.Fatalf("unexpected subset: %+v", subset)
	}
}

func TestDueSubscriptionsOrdersAbsentFirst(t *testing.T) {
	st := openTestStore(t)
	dueID, err := st.AddSubscription("https://example.com/a.xml", "A", "!a:example.org", "server1", "u", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	pastDueID, err := st.AddSubscription("https://example.com/b.xml", "B", "!b:example.org", "server1", "u", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	futureID, err := st.AddSubscription("https://example.com/c.xml", "C", "!c:example.org", "server1", "u", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	now := time.Now().UTC()
	if err := st.UpdateState(pastDueID, map[string]interface{}{"next_poll_at": now.Add(-time.Hour)}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if err := st.UpdateState(futureID, map[string]interface{}{"next_poll_at": now.Add(time.Hour)}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}

	due, err := st.DueSubscriptions(now)
	if err != nil {
		t.Fatalf("DueSubscriptions: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due subscriptions, got %d", len(due))
	}
	if due[0].ID != dueID || due[1].ID != pastDueID {
		t.Fatalf("expected absent-next_poll_at subscription first, got ids %d, %d", due[0].ID, due[1].ID)
	}
}

func TestPruneJournalRemovesOldEntriesOnly(t *testing.T) {
	st := openTestStore(t)
	id, err := st.AddSubscription("https://example.com/feed.xml", "Example", "!room:example.org", "server1", "user1", 900)
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if err := st.RecordPosted(id, "guid-recent", ""); err != nil {
		t.Fatalf("RecordPosted: %v", err)
	}
	old := time.Now().UTC().AddDate(0, 0, -100)
	if _, err := st.db.Exec(`INSERT INTO posted_items (subscription_id, item_guid, posted_at, message_id) VALUES (?, ?, ?, '')`,
		id, "guid-old", formatTime(old)); err != nil {
		t.Fatalf("seed old journal entry: %v", err)
	}

	deleted, err := st.PruneJournal(90)
	if err != nil {
		t.Fatalf("PruneJournal: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 row deleted, got %d", deleted)
	}

	posted, err := st.IsPosted(id, "guid-recent")
	if err != nil || !posted {
		t.Fatalf("expected recent entry to survive pruning, posted=%v err=%v", posted, err)
	}
}
