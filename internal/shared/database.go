package shared

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// historyDSNOptions enables cascading deletes of task results and lets a watch loop and a
// history server share one file without failing on a locked database.
const historyDSNOptions = "_foreign_keys=on&_busy_timeout=5000"

// NewDatabase opens the run history database at path, creating its parent directory.
// The path ":memory:" opens a private in-memory database.
func NewDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}
	return db, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + historyDSNOptions
	}
	return path + "?" + historyDSNOptions
}

// ConfigureDatabase sets the pool limits. Values below one fall back to a single connection,
// which an in-memory database needs to keep its tables.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	db.SetMaxOpenConns(max(maxOpenConns, 1))
	db.SetMaxIdleConns(max(maxIdleConns, 1))
}
