package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/formatter"
	"github.com/desertthunder/xlsync/internal/models"
	"github.com/desertthunder/xlsync/internal/repositories"
	"github.com/desertthunder/xlsync/internal/server"
	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/worker"
)

// HistoryList prints recorded runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if name := cmd.String("name"); name != "" {
		criteria["name"] = name
	}
	if status := cmd.String("status"); status != "" {
		if _, err := worker.ParseStatus(status); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		criteria["status"] = status
	}

	repo, closeDB, err := r.openHistory()
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := repo.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]formatter.RunView, 0, len(runs))
		for _, run := range runs {
			views = append(views, formatter.NewRunView(run))
		}
		return r.writeJSON(views, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No runs recorded\n")
	}

	data, err := formatter.ExportList(runs)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// HistoryShow prints one recorded run in the requested format.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if err := formatter.CheckFormat(format); err != nil {
		return err
	}

	repo, closeDB, err := r.openHistory()
	if err != nil {
		return err
	}
	defer closeDB()

	run, err := lookupRun(repo, cmd.StringArg("sequence"))
	if err != nil {
		return err
	}

	data, err := formatter.Export(run, format)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// HistoryDelete removes a recorded run from history.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.openHistory()
	if err != nil {
		return err
	}
	defer closeDB()

	run, err := lookupRun(repo, cmd.StringArg("sequence"))
	if err != nil {
		return err
	}

	if err := repo.Delete(run.ID()); err != nil {
		return err
	}

	r.logger.Info("run deleted", "sequence", run.Sequence(), "id", run.ID())
	return r.writePlain("✓ Deleted run #%d (%s)\n", run.Sequence(), run.Name())
}

// HistoryServe serves the history database over HTTP until interrupted.
func (r *Runner) HistoryServe(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.openHistory()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := shared.WithLogger(r.logger, "component", "http")
	router := server.NewBasicRouter()
	router.Use(server.Recovery(logger), server.Logging(logger))
	router.Handle(http.MethodGet, "/healthz", server.Health())
	router.Handler(server.NewHistoryHandler(repo, logger))

	return server.Serve(ctx, cmd.String("addr"), router, logger)
}

// lookupRun finds a run by the sequence number shown in history list.
func lookupRun(repo *repositories.RunRepository, arg string) (*models.RunRecord, error) {
	if arg == "" {
		return nil, fmt.Errorf("%w: run sequence number", shared.ErrMissingArgument)
	}

	sequence, err := strconv.Atoi(arg)
	if err != nil || sequence <= 0 {
		return nil, fmt.Errorf("%w: sequence must be a positive number, got %q", shared.ErrInvalidArgument, arg)
	}

	run, err := repo.GetBySequence(sequence)
	if err != nil {
		return nil, fmt.Errorf("run #%d: %w", sequence, err)
	}
	return run, nil
}
