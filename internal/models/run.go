package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/worker"
)

// TaskRecord is the outcome of one task within a recorded run.
type TaskRecord struct {
	Position int           // Order in which the task reached a terminal state
	Name     string        // Task name, unique within the run
	Status   string        // One of the [worker.Status] names
	Error    string        // Empty on success
	Elapsed  time.Duration // Zero for tasks that never ran
}

// RunRecord is a persisted run of a task graph.
type RunRecord struct {
	id         string
	sequence   int
	name       string
	status     string
	tasks      []TaskRecord
	startedAt  time.Time
	finishedAt time.Time
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
}

// NewRunRecord creates a run record. The ID and sequence are assigned on creation by the repository.
func NewRunRecord(name, status string, startedAt, finishedAt time.Time, tasks []TaskRecord) *RunRecord {
	now := time.Now()
	return &RunRecord{
		name:       name,
		status:     status,
		tasks:      tasks,
		startedAt:  startedAt,
		finishedAt: finishedAt,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (r *RunRecord) ID() string             { return r.id }
func (r *RunRecord) Sequence() int          { return r.sequence }
func (r *RunRecord) Name() string           { return r.name }
func (r *RunRecord) Status() string         { return r.status }
func (r *RunRecord) Tasks() []TaskRecord    { return r.tasks }
func (r *RunRecord) StartedAt() time.Time   { return r.startedAt }
func (r *RunRecord) FinishedAt() time.Time  { return r.finishedAt }
func (r *RunRecord) CreatedAt() time.Time   { return r.createdAt }
func (r *RunRecord) UpdatedAt() time.Time   { return r.updatedAt }
func (r *RunRecord) DeletedAt() *time.Time  { return r.deletedAt }
func (r *RunRecord) Elapsed() time.Duration { return r.finishedAt.Sub(r.startedAt) }

func (r *RunRecord) SetID(id string)             { r.id = id }
func (r *RunRecord) SetSequence(sequence int)    { r.sequence = sequence }
func (r *RunRecord) SetName(name string)         { r.name = name }
func (r *RunRecord) SetStatus(status string)     { r.status = status }
func (r *RunRecord) SetTasks(tasks []TaskRecord) { r.tasks = tasks }
func (r *RunRecord) SetCreatedAt(t time.Time)    { r.createdAt = t }
func (r *RunRecord) SetUpdatedAt(t time.Time)    { r.updatedAt = t }
func (r *RunRecord) SetDeletedAt(t *time.Time)   { r.deletedAt = t }

// Counts tallies tasks by status name.
func (r *RunRecord) Counts() map[string]int {
	counts := make(map[string]int)
	for _, t := range r.tasks {
		counts[t.Status]++
	}
	return counts
}

// Validate checks that the run has a name, known statuses, and uniquely named tasks.
func (r *RunRecord) Validate() error {
	if r.name == "" {
		return fmt.Errorf("%w: run name is required", shared.ErrInvalidInput)
	}
	if _, err := worker.ParseStatus(r.status); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if r.finishedAt.Before(r.startedAt) {
		return fmt.Errorf("%w: run finished before it started", shared.ErrInvalidInput)
	}

	seen := make(map[string]bool, len(r.tasks))
	for _, t := range r.tasks {
		if t.Name == "" {
			return fmt.Errorf("%w: task name is required", shared.ErrInvalidInput)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: task %q recorded twice", shared.ErrInvalidInput, t.Name)
		}
		seen[t.Name] = true

		s, err := worker.ParseStatus(t.Status)
		if err != nil {
			return fmt.Errorf("%w: task %q: %v", shared.ErrInvalidInput, t.Name, err)
		}
		if !s.Terminal() {
			return fmt.Errorf("%w: task %q is still %s", shared.ErrInvalidInput, t.Name, s)
		}
	}
	return nil
}
