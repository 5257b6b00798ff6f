package tasks

import (
	"fmt"
	"strings"

	"github.com/desertthunder/xlsync/internal/shared"
)

// CycleError reports one dependency cycle found while planning a run.
//
// Path starts and ends with the same task; each entry depends on the next.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if e == nil || len(e.Path) == 0 {
		return shared.ErrCyclicDependency.Error()
	}
	return fmt.Sprintf("%v: %s", shared.ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return shared.ErrCyclicDependency }

// DependencyError is attached to a task that was skipped because an upstream task did not succeed.
//
// Err is [shared.ErrDependencyFailed] or [shared.ErrDependencyCancelled].
type DependencyError struct {
	Task       string
	Dependency string // the task that failed or was cancelled
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s skipped: %v (%s)", e.Task, e.Err, e.Dependency)
}

func (e *DependencyError) Unwrap() error { return e.Err }
