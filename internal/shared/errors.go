package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Progress tracking errors
	ErrSequence   = fmt.Errorf("no further stages")
	ErrOutOfRange = fmt.Errorf("value out of range")

	// Engine errors
	ErrNotRunning    = fmt.Errorf("engine not running")
	ErrQueueFull     = fmt.Errorf("task queue is full")
	ErrDuplicateName = fmt.Errorf("duplicate task name")
	ErrCancelled     = fmt.Errorf("task cancelled before start")
	ErrTaskPanicked  = fmt.Errorf("task panicked")

	// Task graph errors
	ErrCyclicDependency    = fmt.Errorf("cyclic dependency")
	ErrDependencyFailed    = fmt.Errorf("dependency failed")
	ErrDependencyCancelled = fmt.Errorf("dependency cancelled")
	ErrRunInProgress       = fmt.Errorf("run already in progress")
	ErrRunFailed           = fmt.Errorf("run did not succeed")

	// Persistence errors
	ErrNotFound = fmt.Errorf("record not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrMismatch        = fmt.Errorf("files do not match")
)
