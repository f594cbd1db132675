package store

import "database/sql"

// runTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic. Grounded on database/db.go's
// runTransaction helper.
func runTransaction(db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback() //nolint:errcheck
			panic(r)
		} else if err != nil {
			tx.Rollback() //nolint:errcheck
		} else {
			err = tx.Commit()
		}
	}()
	err = fn(tx)
	return err
}
