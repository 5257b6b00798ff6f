package tasks

import (
	"time"

	"github.com/desertthunder/xlsync/internal/models"
	"github.com/desertthunder/xlsync/internal/worker"
)

// RunResult is the outcome of one [Runner.Execute] call.
type RunResult struct {
	ID       string
	Name     string
	Started  time.Time
	Finished time.Time
	Order    []string                     // Task names in the order they reached a terminal state
	Outcomes map[string]worker.Completion // Keyed by task name
}

// Counts tallies outcomes by status.
func (r *RunResult) Counts() map[worker.Status]int {
	counts := make(map[worker.Status]int)
	for _, c := range r.Outcomes {
		counts[c.Status]++
	}
	return counts
}

// Succeeded reports whether every task succeeded.
func (r *RunResult) Succeeded() bool {
	for _, c := range r.Outcomes {
		if !c.Success() {
			return false
		}
	}
	return true
}

// Status summarizes the run as a single state: failed if any task failed, cancelled if any task
// was cancelled or skipped, succeeded otherwise.
func (r *RunResult) Status() worker.Status {
	counts := r.Counts()
	switch {
	case counts[worker.Failed] > 0:
		return worker.Failed
	case counts[worker.Cancelled] > 0, counts[worker.Skipped] > 0:
		return worker.Cancelled
	default:
		return worker.Succeeded
	}
}

func (r *RunResult) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Completions returns outcomes in terminal order.
func (r *RunResult) Completions() []worker.Completion {
	out := make([]worker.Completion, 0, len(r.Order))
	for _, name := range r.Order {
		out = append(out, r.Outcomes[name])
	}
	return out
}

// Record converts the result into a [models.RunRecord] ready to be persisted.
func (r *RunResult) Record() *models.RunRecord {
	tasks := make([]models.TaskRecord, 0, len(r.Order))
	for i, c := range r.Completions() {
		t := models.TaskRecord{
			Position: i,
			Name:     c.Name,
			Status:   c.Status.String(),
			Elapsed:  c.Elapsed,
		}
		if c.Err != nil {
			t.Error = c.Err.Error()
		}
		tasks = append(tasks, t)
	}
	return models.NewRunRecord(r.Name, r.Status().String(), r.Started, r.Finished, tasks)
}
