package shared

import (
	"database/sql"
	"embed"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// migrationName matches files such as "0000_create_runs_up.sql".
var migrationName = regexp.MustCompile(`^(\d+)_(\w+?)_(up|down)\.sql$`)

// Migration is one schema change of the history database, split into statements.
type Migration struct {
	Version int
	Name    string
	Up      []string
	Down    []string
}

// loadMigrations parses the embedded sql directory into migrations ordered by version.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		m := migrationName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		version, _ := strconv.Atoi(m[1])

		content, err := migrationFiles.ReadFile("sql/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: m[2]}
			byVersion[version] = mig
		}
		if m[3] == "up" {
			mig.Up = splitStatements(string(content))
		} else {
			mig.Down = splitStatements(string(content))
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if len(mig.Up) == 0 || len(mig.Down) == 0 {
			return nil, fmt.Errorf("incomplete migration %04d_%s", mig.Version, mig.Name)
		}
		migrations = append(migrations, *mig)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

// splitStatements drops "--" comments and blank lines and splits script on semicolons.
func splitStatements(script string) []string {
	var kept []string
	for line := range strings.Lines(script) {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}

	var stmts []string
	for stmt := range strings.SplitSeq(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// RunMigrations applies every migration not yet recorded in schema_migrations.
func RunMigrations(db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		err := execMigration(db, mig.Up, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", mig.Version, mig.Name)
		if err != nil {
			return fmt.Errorf("failed to apply migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current < 0 {
		return fmt.Errorf("%w: no migrations to roll back", ErrNotFound)
	}

	i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == current })
	if i < 0 {
		return fmt.Errorf("%w: migration version %d", ErrNotFound, current)
	}

	mig := migrations[i]
	if err := execMigration(db, mig.Down, "DELETE FROM schema_migrations WHERE version = ?", mig.Version); err != nil {
		return fmt.Errorf("failed to roll back migration %04d_%s: %w", mig.Version, mig.Name, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, or -1 when none is applied.
func SchemaVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		return -1, nil
	}
	return int(version.Int64), nil
}

// execMigration runs stmts and the bookkeeping statement in one transaction.
func execMigration(db *sql.DB, stmts []string, record string, args ...any) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%w\nStatement: %s", err, stmt)
		}
	}
	if _, err := tx.Exec(record, args...); err != nil {
		return err
	}
	return tx.Commit()
}
