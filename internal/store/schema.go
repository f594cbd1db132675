package store

import (
	"database/sql"
	"fmt"
)

// unifiedSchemaSQL is the current, single-table-per-subscription layout.
// Modeled on database/schema.go's schemaSQL constant: one CREATE TABLE IF NOT
// EXISTS block plus indexes, executed wholesale against the opened database.
const unifiedSchemaSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	feed_url            TEXT NOT NULL,
	display_name        TEXT NOT NULL,
	channel_id          TEXT NOT NULL,
	server_id           TEXT NOT NULL,
	added_by            TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	etag                TEXT NOT NULL DEFAULT '',
	last_modified       TEXT NOT NULL DEFAULT '',
	last_poll_at        TEXT,
	next_poll_at        TEXT,
	poll_interval       INTEGER NOT NULL DEFAULT 900,
	consecutive_errors  INTEGER NOT NULL DEFAULT 0,
	last_error          TEXT NOT NULL DEFAULT '',
	UNIQUE(feed_url, server_id)
);
CREATE INDEX IF NOT EXISTS subscriptions_next_poll_idx ON subscriptions(next_poll_at);

CREATE TABLE IF NOT EXISTS posted_items (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	subscription_id INTEGER NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
	item_guid       TEXT NOT NULL,
	posted_at       TEXT NOT NULL,
	message_id      TEXT NOT NULL DEFAULT '',
	UNIQUE(subscription_id, item_guid)
);
`

// legacyTablesCheckSQL checks for the two-table sidecar layout that older
// deployments may still have on disk, grounded on
// original_source/cordfeeder/database.py's "feeds" + "feed_state" tables
// (spec.md §9's migration note).
const legacyTablesCheckSQL = `
SELECT name FROM sqlite_master WHERE type='table' AND name IN ('feeds', 'feed_state')
`

// migrate brings an already-populated legacy store (separate feeds/feed_state
// tables) into the unified layout, then is a no-op on every subsequent call
// (spec.md invariant 6, "Migration idempotence"). Safe to call against a
// brand new database too: the CREATE TABLE IF NOT EXISTS in unifiedSchemaSQL
// will simply create the unified table with nothing to migrate.
func migrate(db *sql.DB, driverName string) error {
	if _, err := db.Exec(unifiedSchemaSQL); err != nil {
		return fmt.Errorf("store: create unified schema: %w", err)
	}

	if driverName != "sqlite3" {
		// The legacy two-table sidecar layout only ever existed on sqlite
		// deployments; a postgres store has nothing to migrate.
		return nil
	}

	legacy, err := legacyTablesPresent(db)
	if err != nil {
		return fmt.Errorf("store: check legacy schema: %w", err)
	}
	if !legacy {
		return nil
	}

	return runTransaction(db, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT f.id, f.url, f.name, f.channel_id, f.guild_id, f.added_by, f.created_at,
			       COALESCE(fs.etag, ''), COALESCE(fs.last_modified, ''),
			       fs.last_poll_at, fs.next_poll_at,
			       COALESCE(fs.poll_interval, 900), COALESCE(fs.consecutive_errors, 0),
			       COALESCE(fs.last_error, '')
			FROM feeds f LEFT JOIN feed_state fs ON fs.feed_id = f.id
		`)
		if err != nil {
			return fmt.Errorf("read legacy rows: %w", err)
		}
		defer rows.Close()

		type legacyRow struct {
			id                                     int64
			url, name, channelID, guildID, addedBy string
			createdAt                              string
			etag, lastModified                     string
			lastPollAt, nextPollAt                 sql.NullString
			pollInterval, consecutiveErrors         int
			lastError                              string
		}
		var legacyRows []legacyRow
		for rows.Next() {
			var r legacyRow
			if err := rows.Scan(&r.id, &r.url, &r.name, &r.channelID, &r.guildID, &r.addedBy,
				&r.createdAt, &r.etag, &r.lastModified, &r.lastPollAt, &r.nextPollAt,
				&r.pollInterval, &r.consecutiveErrors, &r.lastError); err != nil {
				return fmt.Errorf("scan legacy row: %w", err)
			}
			legacyRows = append(legacyRows, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range legacyRows {
			if _, err := tx.Exec(`
				INSERT INTO subscriptions
					(id, feed_url, display_name, channel_id, server_id, added_by, created_at,
					 etag, last_modified, last_poll_at, next_poll_at, poll_interval,
					 consecutive_errors, last_error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, r.id, r.url, r.name, r.channelID, r.guildID, r.addedBy, r.createdAt,
				r.etag, r.lastModified, nullableString(r.lastPollAt), nullableString(r.nextPollAt),
				r.pollInterval, r.consecutiveErrors, r.lastError); err != nil {
				return fmt.Errorf("insert migrated subscription %d: %w", r.id, err)
			}
		}

		if _, err := tx.Exec("DROP TABLE feed_state"); err != nil {
			return fmt.Errorf("drop feed_state: %w", err)
		}
		if _, err := tx.Exec("DROP TABLE feeds"); err != nil {
			return fmt.Errorf("drop feeds: %w", err)
		}
		return nil
	})
}

func nullableString(n sql.NullString) interface{} {
	if !n.Valid {
		return nil
	}
	return n.String
}

func legacyTablesPresent(db *sql.DB) (bool, error) {
	rows, err := db.Query(legacyTablesCheckSQL)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	return count > 0, rows.Err()
}
