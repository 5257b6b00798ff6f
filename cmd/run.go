package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/formatter"
	"github.com/desertthunder/xlsync/internal/models"
	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/tasks"
	"github.com/desertthunder/xlsync/internal/worker"
)

// runOpts controls a single execution of a plan.
type runOpts struct {
	record bool // Save the run to the history database
	live   bool // Print engine messages to the output as they happen
}

// Run executes a plan once and writes its report.
//
// The command fails with [shared.ErrRunFailed] when any task did not succeed.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("plan")
	if path == "" {
		return fmt.Errorf("%w: plan file", shared.ErrMissingArgument)
	}

	format := cmd.String("format")
	if err := formatter.CheckFormat(format); err != nil {
		return err
	}
	output := cmd.String("output")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rec, err := r.execute(ctx, path, runOpts{
		record: !cmd.Bool("no-history"),
		live:   output == "" && (format == formatter.FormatText || format == ""),
	})
	if err != nil {
		return err
	}

	if output != "" {
		if err := formatter.WriteReport(rec, format, output); err != nil {
			return err
		}
		r.logger.Info("report written", "path", output, "format", format)
	} else {
		data, err := formatter.Export(rec, format)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	if rec.Status() != worker.Succeeded.String() {
		return fmt.Errorf("%w: %s finished %s", shared.ErrRunFailed, rec.Name(), rec.Status())
	}
	return nil
}

// execute loads the plan at path, runs it on a fresh engine, and returns the run as a record.
func (r *Runner) execute(ctx context.Context, path string, opts runOpts) (*models.RunRecord, error) {
	plan, err := tasks.LoadPlan(path)
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(r.logger, "plan", plan.Name)
	handlers := worker.Handlers{
		Progress: func(id string, value float64, message string) {
			logger.Debug(message, "task", tasks.TaskName(id), "progress", fmt.Sprintf("%.0f%%", value))
		},
	}
	if opts.live {
		handlers.Message = func(text string, level log.Level) {
			if level >= log.WarnLevel {
				r.writePlain("! %s\n", text)
				return
			}
			r.writePlain("%s\n", text)
		}
		r.writePlainHeader(plan.Name)
	}

	engine := worker.NewEngine(r.engineOptions(handlers))
	engine.Start()
	defer engine.Stop()

	runner := tasks.NewRunner(engine, tasks.RunnerOpts{
		Name:   plan.Name,
		Logger: logger,
		OnComplete: func(c worker.Completion) {
			if opts.live && c.Status == worker.Skipped {
				r.writePlain("Task skipped: %s - %v\n", c.Name, c.Err)
			}
		},
	})
	if err := tasks.Build(plan, runner); err != nil {
		return nil, err
	}

	res, err := runner.Execute(ctx)
	if err != nil {
		return nil, err
	}

	rec := res.Record()
	if opts.live {
		r.writePlain("\n")
	}
	if opts.record {
		r.saveRun(rec)
	}
	return rec, nil
}

// saveRun records rec in the history database when history is enabled. Failures are logged, not
// returned.
func (r *Runner) saveRun(rec *models.RunRecord) {
	if !r.config.History.Enabled {
		return
	}

	repo, closeDB, err := r.openHistory()
	if err != nil {
		r.logger.Warn("run not recorded", "err", err)
		return
	}
	defer closeDB()

	if err := repo.Create(rec); err != nil {
		r.logger.Warn("run not recorded", "err", err)
		return
	}
	r.logger.Debug("run recorded", "sequence", rec.Sequence(), "id", rec.ID())
}
