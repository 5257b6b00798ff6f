package worker

import (
	"context"
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status int

const (
	Pending Status = iota
	Ready
	Running
	Succeeded
	Failed
	Cancelled
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Skipped:
		return "skipped"
	default:
		return ""
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled || s == Skipped
}

// ParseStatus is the inverse of [Status.String].
func ParseStatus(name string) (Status, error) {
	for s := Pending; s <= Skipped; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return Pending, fmt.Errorf("unknown status %q", name)
}

// Reporter forwards progress (0-100) from a unit of work.
type Reporter func(value float64, message string)

// Work is a unit of work run by an [Engine].
//
// ctx is cancelled once cancellation is requested for the task. cancelled polls the same
// condition without a channel receive.
type Work func(ctx context.Context, report Reporter, cancelled func() bool) (any, error)

// Aborted is returned as a result by a unit of work that stopped early because cancellation was
// requested. The engine treats it as a successful completion.
type Aborted struct {
	Reason string
}

func (a Aborted) String() string {
	if a.Reason == "" {
		return "aborted"
	}
	return "aborted: " + a.Reason
}

// IsAborted reports whether result is an [Aborted] value or pointer.
func IsAborted(result any) bool {
	switch result.(type) {
	case Aborted, *Aborted:
		return true
	default:
		return false
	}
}

// Completion is delivered exactly once per submitted task.
type Completion struct {
	ID      string
	Name    string
	Status  Status
	Result  any
	Err     error
	Elapsed time.Duration
}

// Success reports whether the task finished without error.
func (c Completion) Success() bool {
	return c.Status == Succeeded
}
