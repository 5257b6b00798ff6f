package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/worker"
)

// Kind names a built-in unit of work.
type Kind string

const (
	KindCopy    Kind = "copy"
	KindCompare Kind = "compare"
	KindSleep   Kind = "sleep"
	KindFail    Kind = "fail"
)

// Plan is a task graph read from a TOML file.
//
//	name = "month-end"
//
//	[[task]]
//	name = "copy-ledger"
//	kind = "copy"
//	source = "in/ledger.xlsx"
//	dest = "out/ledger.xlsx"
//
//	[[task]]
//	name = "verify"
//	kind = "compare"
//	depends_on = ["copy-ledger"]
type Plan struct {
	Name  string     `toml:"name"`
	Tasks []TaskSpec `toml:"task"`
}

// TaskSpec describes one task of a [Plan].
type TaskSpec struct {
	Name      string        `toml:"name"`
	Kind      Kind          `toml:"kind"`
	DependsOn []string      `toml:"depends_on"`
	Source    string        `toml:"source"`
	Dest      string        `toml:"dest"`
	ChunkSize int           `toml:"chunk_size"`
	Duration  time.Duration `toml:"duration"`
	Stages    []string      `toml:"stages"`
	Message   string        `toml:"message"`
}

// LoadPlan reads a plan file. Relative source and dest paths are resolved against the directory
// containing the plan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}

	if plan.Name == "" {
		plan.Name = filepath.Base(path)
	}

	dir := filepath.Dir(path)
	for i := range plan.Tasks {
		plan.Tasks[i].Source = resolve(dir, plan.Tasks[i].Source)
		plan.Tasks[i].Dest = resolve(dir, plan.Tasks[i].Dest)
	}
	return plan, nil
}

// ParsePlan decodes and validates plan data.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	md, err := toml.Decode(string(data), &plan)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse plan: %v", shared.ErrInvalidConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown plan key %q", shared.ErrInvalidConfig, undecoded[0].String())
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Validate checks each task's own fields. Graph problems are reported by [Runner.Plan].
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("%w: plan has no tasks", shared.ErrInvalidConfig)
	}

	for i, t := range p.Tasks {
		if t.Name == "" {
			return fmt.Errorf("%w: task %d has no name", shared.ErrInvalidConfig, i)
		}
		switch t.Kind {
		case KindCopy:
			if t.Source == "" || t.Dest == "" {
				return fmt.Errorf("%w: copy task %q needs source and dest", shared.ErrInvalidConfig, t.Name)
			}
		case KindCompare:
			if (t.Source == "") != (t.Dest == "") {
				return fmt.Errorf("%w: compare task %q needs both source and dest, or neither", shared.ErrInvalidConfig, t.Name)
			}
			if t.Source == "" && len(t.DependsOn) == 0 {
				return fmt.Errorf("%w: compare task %q has no files and no copy dependency", shared.ErrInvalidConfig, t.Name)
			}
		case KindSleep:
			if t.Duration < 0 {
				return fmt.Errorf("%w: sleep task %q has negative duration", shared.ErrInvalidConfig, t.Name)
			}
		case KindFail:
		default:
			return fmt.Errorf("%w: task %q has unknown kind %q", shared.ErrInvalidConfig, t.Name, t.Kind)
		}
	}
	return nil
}

// Work returns the unit of work described by t.
func (t TaskSpec) Work() (worker.Work, error) {
	switch t.Kind {
	case KindCopy:
		return CopyFile(t.Source, t.Dest, t.ChunkSize), nil
	case KindCompare:
		return CompareFiles(t.Source, t.Dest, t.DependsOn), nil
	case KindSleep:
		return Simulate(t.Duration, t.Stages), nil
	case KindFail:
		return Fail(t.Message), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidConfig, t.Kind)
	}
}

// Build registers every task of p on r.
func Build(p *Plan, r *Runner) error {
	for _, t := range p.Tasks {
		work, err := t.Work()
		if err != nil {
			return err
		}
		if err := r.AddTask(t.Name, work, t.DependsOn...); err != nil {
			return err
		}
	}
	return nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
