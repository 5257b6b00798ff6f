package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/tasks"
	"github.com/desertthunder/xlsync/internal/worker"
)

// planView is the JSON output of plan show.
type planView struct {
	Name  string     `json:"name"`
	Tasks int        `json:"tasks"`
	Waves [][]string `json:"waves"`
}

// PlanShow validates a plan file and prints the waves it would run in.
func (r *Runner) PlanShow(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("plan")
	if path == "" {
		return fmt.Errorf("%w: plan file", shared.ErrMissingArgument)
	}

	plan, err := tasks.LoadPlan(path)
	if err != nil {
		return err
	}

	runner := tasks.NewRunner(worker.NewEngine(worker.Options{}), tasks.RunnerOpts{Name: plan.Name})
	if err := tasks.Build(plan, runner); err != nil {
		return err
	}

	waves, err := runner.Plan()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(planView{Name: plan.Name, Tasks: runner.Len(), Waves: waves}, true)
	}

	deps := make(map[string][]string, len(plan.Tasks))
	kinds := make(map[string]tasks.Kind, len(plan.Tasks))
	for _, t := range plan.Tasks {
		deps[t.Name] = t.DependsOn
		kinds[t.Name] = t.Kind
	}

	r.writePlainHeader(fmt.Sprintf("%s (%d tasks)", plan.Name, runner.Len()))
	for i, wave := range waves {
		r.writePlain("Wave %d\n", i+1)
		for _, name := range wave {
			line := fmt.Sprintf("  • %s [%s]", name, kinds[name])
			if len(deps[name]) > 0 {
				line += " after " + strings.Join(deps[name], ", ")
			}
			r.writePlain("%s\n", line)
		}
	}
	return nil
}
