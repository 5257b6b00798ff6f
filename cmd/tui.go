package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/tasks"
	"github.com/desertthunder/xlsync/internal/ui"
	"github.com/desertthunder/xlsync/internal/worker"
)

const tuiLogPath = "./tmp/xlsync-tui.log"

// TUI launches the interactive run monitor for a plan.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("plan")
	if path == "" {
		return fmt.Errorf("%w: plan file", shared.ErrMissingArgument)
	}

	plan, err := tasks.LoadPlan(path)
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	if r.config.Logging.File == "" {
		fileLogger, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		shared.SetLogLevel(fileLogger, r.logger.GetLevel())
		r.SetLogger(fileLogger)
	}

	feed := ui.NewFeed(0)
	engine := worker.NewEngine(r.engineOptions(feed.Handlers()))
	engine.Start()
	defer func() {
		// The feed must release blocked callbacks before the engine can stop.
		feed.Close()
		engine.Halt()
	}()

	runner := tasks.NewRunner(engine, tasks.RunnerOpts{
		Name:       plan.Name,
		Logger:     shared.WithLogger(r.logger, "plan", plan.Name),
		OnComplete: feed.Complete,
	})
	if err := tasks.Build(plan, runner); err != nil {
		return err
	}

	model, err := ui.NewModel(ctx, runner, feed, ui.Options{
		Title: plan.Name,
		OnResult: func(res *tasks.RunResult) {
			r.saveRun(res.Record())
		},
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
