package worker

import (
	"fmt"
	"sync"

	"github.com/desertthunder/xlsync/internal/shared"
)

// Sink receives the overall progress of a [Tracker].
//
// It is called on the reporting goroutine and must not block.
type Sink func(overall float64, message string)

// Stage is a named step of a multi-stage operation with a relative weight.
type Stage struct {
	Name   string
	Weight float64
}

// Tracker converts per-stage progress into overall progress.
type Tracker struct {
	mu        sync.Mutex
	stages    []Stage
	sink      Sink
	total     float64
	completed float64 // sum of the weights of stages before index
	index     int
	percent   float64
	overall   float64
}

// NewTracker validates stages and returns a tracker positioned on the first one.
//
// A nil sink is allowed; reports are then only visible through [Tracker.Overall].
func NewTracker(stages []Stage, sink Sink) (*Tracker, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: at least one stage is required", shared.ErrInvalidConfig)
	}

	var total float64
	for i, s := range stages {
		if !(s.Weight > 0) {
			return nil, fmt.Errorf("%w: stage %d (%q) has weight %v, must be positive", shared.ErrInvalidConfig, i, s.Name, s.Weight)
		}
		total += s.Weight
	}

	return &Tracker{
		stages: append([]Stage(nil), stages...),
		sink:   sink,
		total:  total,
	}, nil
}

// Advance moves to the next stage with its progress reset to zero.
func (t *Tracker) Advance() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.index >= len(t.stages)-1 {
		return fmt.Errorf("%w: already on final stage %q", shared.ErrSequence, t.stages[t.index].Name)
	}
	t.completed += t.stages[t.index].Weight
	t.index++
	t.percent = 0
	return nil
}

// Report records progress within the current stage and forwards the overall value to the sink.
//
// An empty message is replaced with "<stage>: <n>%", or "Completed: <stage>" at 100.
func (t *Tracker) Report(percent float64, message string) error {
	if !(percent >= 0 && percent <= 100) {
		return fmt.Errorf("%w: stage progress %v not in [0, 100]", shared.ErrOutOfRange, percent)
	}

	t.mu.Lock()
	stage := t.stages[t.index]
	overall := (t.completed + stage.Weight*(percent/100)) / t.total * 100
	switch {
	case t.index == len(t.stages)-1 && percent == 100:
		overall = 100
	case overall > 100:
		overall = 100
	case overall < 0:
		overall = 0
	}
	t.percent = percent
	t.overall = overall
	sink := t.sink
	t.mu.Unlock()

	if message == "" {
		message = stageMessage(stage.Name, percent)
	}
	if sink != nil {
		sink(overall, message)
	}
	return nil
}

// Overall returns the last value passed to the sink.
func (t *Tracker) Overall() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overall
}

// Current returns the index and name of the active stage.
func (t *Tracker) Current() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index, t.stages[t.index].Name
}

func stageMessage(name string, percent float64) string {
	if percent >= 100 {
		return fmt.Sprintf("Completed: %s", name)
	}
	return fmt.Sprintf("%s: %d%%", name, int(percent))
}
