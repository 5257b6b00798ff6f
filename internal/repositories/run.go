package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/xlsync/internal/models"
	"github.com/desertthunder/xlsync/internal/shared"
)

// RunRepository stores run history in SQLite.
type RunRepository struct {
	db *sql.DB
}

var _ models.Store[*models.RunRecord] = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, sequence, name, status, started_at, finished_at, created_at, updated_at, deleted_at`

// Create inserts a run and its task results with a generated ID and sequence
func (r *RunRepository) Create(run *models.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := counterFor("runs").next(tx)
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	counts := run.Counts()

	query := `
		INSERT INTO runs (
			id, sequence, name, status, total, succeeded, failed, cancelled, skipped,
			started_at, finished_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		id,
		sequence,
		run.Name(),
		run.Status(),
		len(run.Tasks()),
		counts["succeeded"],
		counts["failed"],
		counts["cancelled"],
		counts["skipped"],
		run.StartedAt(),
		run.FinishedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, t := range run.Tasks() {
		var errorMessage any = t.Error
		if t.Error == "" {
			errorMessage = nil
		}

		_, err := tx.Exec(
			`INSERT INTO task_results (run_id, position, name, status, error, elapsed_ms) VALUES (?, ?, ?, ?, ?, ?)`,
			id, t.Position, t.Name, t.Status, errorMessage, t.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result for task %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	return nil
}

// Get retrieves a run and its task results by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ? AND deleted_at IS NULL`

	run, err := scanRun(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	return run, r.loadTasks(run)
}

// GetBySequence retrieves a run by its sequence number
func (r *RunRepository) GetBySequence(sequence int) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE sequence = ? AND deleted_at IS NULL`

	run, err := scanRun(r.db.QueryRow(query, sequence))
	if err != nil {
		return nil, err
	}
	return run, r.loadTasks(run)
}

// Update modifies the name and status of an existing run
func (r *RunRepository) Update(run *models.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE runs
		SET name = ?, status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, run.Name(), run.Status(), now, run.ID())
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, run.ID())
	}

	return nil
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	query := `
		UPDATE runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}

	return nil
}

// List retrieves runs matching the given criteria, newest first, excluding soft-deleted runs.
//
// Supported criteria: "name" (string), "status" (string), "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE deleted_at IS NULL`
	args := []any{}

	if name, ok := criteria["name"].(string); ok && name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, run := range runs {
		if err := r.loadTasks(run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// loadTasks attaches the task results of run in terminal order.
func (r *RunRepository) loadTasks(run *models.RunRecord) error {
	rows, err := r.db.Query(
		`SELECT position, name, status, error, elapsed_ms FROM task_results WHERE run_id = ? ORDER BY position ASC`,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	var tasks []models.TaskRecord
	for rows.Next() {
		var (
			t         models.TaskRecord
			errorMsg  sql.NullString
			elapsedMS int64
		)
		if err := rows.Scan(&t.Position, &t.Name, &t.Status, &errorMsg, &elapsedMS); err != nil {
			return fmt.Errorf("failed to scan task result: %w", err)
		}
		t.Error = errorMsg.String
		t.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	run.SetTasks(tasks)
	return nil
}

// scanner is satisfied by [sql.Row] and [sql.Rows]
type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a [models.RunRecord] without its tasks
func scanRun(row scanner) (*models.RunRecord, error) {
	var (
		id         string
		sequence   int
		name       string
		status     string
		startedAt  time.Time
		finishedAt time.Time
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &name, &status, &startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewRunRecord(name, status, startedAt, finishedAt, nil)
	run.SetID(id)
	run.SetSequence(sequence)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}

	return run, nil
}
