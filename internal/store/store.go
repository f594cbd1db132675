// Package store is the persistence layer for subscriptions and the
// posted-item journal (spec.md §4.1). It is grounded on database/db.go's
// transaction-per-operation style, generalised from go-neb's single
// opaque-JSON "services" table to the typed subscription/journal schema
// this system's data model calls for.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Store is the typed API onto the subscription and journal tables.
type Store struct {
	db         *sql.DB
	driverName string
}

// Open opens (creating if necessary) the datastore at databaseURL using the
// given database/sql driver, and brings its schema up to date. Mirrors
// database.Open's shape (driver name + DSN), adding the one-time legacy
// migration pass documented in spec.md §9.
func Open(driverName, databaseURL string) (*Store, error) {
	db, err := sql.Open(driverName, databaseURL)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// Fix for "database is locked" errors, same workaround go-neb
		// applies in database/db.go.
		db.SetMaxOpenConns(1)
	}
	if err := migrate(db, driverName); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, driverName: driverName}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// AddSubscription inserts a new subscription row, initialised so the
// subscription is immediately due (next_poll_at absent, poll_interval =
// defaultInterval, consecutive_errors = 0). Returns ErrDuplicateSubscription
// when (feed_url, server_id) already exists.
func (s *Store) AddSubscription(feedURL, displayName, channelID, serverID, addedBy string, defaultInterval int) (id int64, err error) {
	err = runTransaction(s.db, func(tx *sql.Tx) error {
		var exists int
		row := tx.QueryRow(`SELECT 1 FROM subscriptions WHERE feed_url = ? AND server_id = ?`, feedURL, serverID)
		if scanErr := row.Scan(&exists); scanErr == nil {
			return ErrDuplicateSubscription
		} else if scanErr != sql.ErrNoRows {
			return scanErr
		}

		now := nowString()
		res, insertErr := tx.Exec(`
			INSERT INTO subscriptions
				(feed_url, display_name, channel_id, server_id, added_by, created_at, poll_interval)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, feedURL, displayName, channelID, serverID, addedBy, now, defaultInterval)
		if insertErr != nil {
			return insertErr
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// RemoveSubscription deletes a subscription and its journal entries in one
// transaction. The journal rows are deleted explicitly rather than left to
// the schema's ON DELETE CASCADE, which SQLite only applies when foreign-key
// enforcement is switched on for the connection. Idempotent: removing an
// already-gone id is not an error.
func (s *Store) RemoveSubscription(id int64) error {
	return runTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM posted_items WHERE subscription_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
		return err
	})
}

const subscriptionColumns = `id, feed_url, display_name, channel_id, server_id, added_by, created_at,
	etag, last_modified, last_poll_at, next_poll_at, poll_interval, consecutive_errors, last_error`

func scanSubscription(row interface{ Scan(...interface{}) error }) (Subscription, error) {
	var sub Subscription
	var createdAt string
	var lastPollAt, nextPollAt sql.NullString
	err := row.Scan(&sub.ID, &sub.FeedURL, &sub.DisplayName, &sub.ChannelID, &sub.ServerID, &sub.AddedBy,
		&createdAt, &sub.ETag, &sub.LastModified, &lastPollAt, &nextPollAt,
		&sub.PollInterval, &sub.ConsecutiveErrors, &sub.LastError)
	if err != nil {
		return Subscription{}, err
	}
	sub.CreatedAt = parseTime(createdAt)
	sub.LastPollAt = parseTimePtr(lastPollAt)
	sub.NextPollAt = parseTimePtr(nextPollAt)
	return sub, nil
}

// GetSubscription loads one subscription by id. Returns ErrNotFound if absent.
func (s *Store) GetSubscription(id int64) (Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return Subscription{}, ErrNotFound
	}
	return sub, err
}

// GetSubscriptionByURL loads one subscription by (feed_url, server_id).
// Returns ErrNotFound if absent.
func (s *Store) GetSubscriptionByURL(feedURL, serverID string) (Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE feed_url = ? AND server_id = ?`, feedURL, serverID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return Subscription{}, ErrNotFound
	}
	return sub, err
}

// ListSubscriptions returns every subscription for a server, ordered by
// display_name ascending (spec.md §4.1).
func (s *Store) ListSubscriptions(serverID string) ([]Subscription, error) {
	rows, err := s.db.Query(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE server_id = ? ORDER BY display_name ASC`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// UpdateChannel re-targets a subscription at a different channel.
func (s *Store) UpdateChannel(id int64, channelID string) error {
	return runTransaction(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE subscriptions SET channel_id = ? WHERE id = ?`, channelID, id)
		return err
	})
}

// UpdateURL changes the feed URL a subscription points at. The command
// facade's move operation does not use it; moves go through UpdateChannel.
func (s *Store) UpdateURL(id int64, feedURL string) error {
	return runTransaction(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE subscriptions SET feed_url = ? WHERE id = ?`, feedURL, id)
		return err
	})
}

// GetState returns the scheduling-state snapshot for a subscription, or
// ErrNotFound if the subscription doesn't exist.
func (s *Store) GetState(id int64) (State, error) {
	row := s.db.QueryRow(`
		SELECT etag, last_modified, last_poll_at, next_poll_at, poll_interval, consecutive_errors, last_error
		FROM subscriptions WHERE id = ?
	`, id)
	var st State
	var lastPollAt, nextPollAt sql.NullString
	err := row.Scan(&st.ETag, &st.LastModified, &lastPollAt, &nextPollAt, &st.PollInterval, &st.ConsecutiveErrors, &st.LastError)
	if err == sql.ErrNoRows {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}
	st.LastPollAt = parseTimePtr(lastPollAt)
	st.NextPollAt = parseTimePtr(nextPollAt)
	return st, nil
}

// UpdateState applies a partial update to a subscription's scheduling state.
// fields is a subset of {"etag","last_modified","last_poll_at","next_poll_at",
// "poll_interval","consecutive_errors","last_error"}; any other key returns
// ErrUnknownStateField and no columns are touched. Grounded on
// original_source/cordfeeder/database.py's update_feed_state(**kwargs).
func (s *Store) UpdateState(id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	for k, v := range fields {
		if !stateColumns[k] {
			return fmt.Errorf("%w: %q", ErrUnknownStateField, k)
		}
		setClauses = append(setClauses, k+" = ?")
		switch tv := v.(type) {
		case time.Time:
			args = append(args, formatTime(tv))
		case *time.Time:
			if tv == nil {
				args = append(args, nil)
			} else {
				args = append(args, formatTime(*tv))
			}
		default:
			args = append(args, v)
		}
	}
	args = append(args, id)

	return runTransaction(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE subscriptions SET `+strings.Join(setClauses, ", ")+` WHERE id = ?`, args...)
		return err
	})
}

// RecordPosted journals that an item has been delivered for a subscription.
// Idempotent on (subscription_id, item_guid): a second call with a
// different messageID is a no-op.
func (s *Store) RecordPosted(subscriptionID int64, itemGUID, messageID string) error {
	return runTransaction(s.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO posted_items (subscription_id, item_guid, posted_at, message_id)
			VALUES (?, ?, ?, ?)
		`, subscriptionID, itemGUID, nowString(), messageID)
		return err
	})
}

// IsPosted reports whether an item has already been journalled.
func (s *Store) IsPosted(subscriptionID int64, itemGUID string) (bool, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM posted_items WHERE subscription_id = ? AND item_guid = ?`, subscriptionID, itemGUID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// PostedSubset returns the subset of itemGUIDs already journalled for a
// subscription, in one query rather than len(itemGUIDs) round trips.
func (s *Store) PostedSubset(subscriptionID int64, itemGUIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(itemGUIDs))
	if len(itemGUIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(itemGUIDs))
	args := make([]interface{}, 0, len(itemGUIDs)+1)
	args = append(args, subscriptionID)
	for i, g := range itemGUIDs {
		placeholders[i] = "?"
		args = append(args, g)
	}
	query := fmt.Sprintf(`SELECT item_guid FROM posted_items WHERE subscription_id = ? AND item_guid IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, err
		}
		out[guid] = true
	}
	return out, rows.Err()
}

// DueSubscriptions returns subscriptions whose next_poll_at is absent or
// <= now, ordered by next_poll_at ascending (absent sorts first).
func (s *Store) DueSubscriptions(now time.Time) ([]Subscription, error) {
	rows, err := s.db.Query(`
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE next_poll_at IS NULL OR next_poll_at <= ?
		ORDER BY (next_poll_at IS NULL) DESC, next_poll_at ASC
	`, formatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// CountSubscriptions returns the total number of subscriptions across every
// server, used to refresh the subscription gauge once per scheduler tick.
func (s *Store) CountSubscriptions() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM subscriptions`).Scan(&count)
	return count, err
}

// PruneJournal deletes journal entries older than olderThanDays, returning
// the number of rows removed.
func (s *Store) PruneJournal(olderThanDays int) (int64, error) {
	cutoff := formatTime(time.Now().UTC().AddDate(0, 0, -olderThanDays))
	var deleted int64
	err := runTransaction(s.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM posted_items WHERE posted_at < ?`, cutoff)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		log.WithError(err).Error("failed to prune journal")
	}
	return deleted, err
}

const timeLayout = time.RFC3339Nano

// storedTimeLayout always writes nine fractional digits, so the text
// comparisons in DueSubscriptions and PruneJournal order stored values the
// same way as the instants they encode. parseTime reads it with timeLayout.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nowString() string { return formatTime(time.Now().UTC()) }

func formatTime(t time.Time) string { return t.UTC().Format(storedTimeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(n sql.NullString) *time.Time {
	if !n.Valid || n.String == "" {
		return nil
	}
	t := parseTime(n.String)
	return &t
}
