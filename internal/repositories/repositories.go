package repositories

import (
	"database/sql"
	"fmt"
)

// execQuerier is satisfied by [sql.DB] and [sql.Tx].
type execQuerier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// counter is the single-row table that numbers the rows of another table.
type counter string

func counterFor(table string) counter { return counter(table + "_sequence") }

// next bumps the counter and returns its new value. Callers inside a transaction get a number
// that is released again if the transaction rolls back.
func (c counter) next(q execQuerier) (int, error) {
	if _, err := q.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", c)); err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", c, err)
	}

	var value int
	if err := q.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", c)).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", c, err)
	}
	return value, nil
}

// NextSequence reserves the next sequence number of table in its own transaction.
func NextSequence(db *sql.DB, table string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	value, err := counterFor(table).next(tx)
	if err != nil {
		return 0, err
	}
	return value, tx.Commit()
}
