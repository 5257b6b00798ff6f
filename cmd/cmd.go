// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (text, json, csv, markdown)",
		Value:   "text",
	}
}

// setupCommand handles setup operations for the configuration file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the default configuration file",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"}},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the run history database and run migrations",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "rollback", Usage: "Revert the latest migration"}},
				Action: r.SetupDatabase,
			},
		},
	}
}

// planCommand handles inspecting plan files without running them.
func planCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Inspect plan files",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Validate a plan and print its execution waves",
				Arguments: []cli.Argument{&cli.StringArg{Name: "plan"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.PlanShow,
			},
		},
	}
}

// runCommand executes a plan once.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a plan and report each task's outcome",
		Arguments: []cli.Argument{&cli.StringArg{Name: "plan"}},
		Flags: []cli.Flag{
			formatFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record the run in the history database",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Cancel the run after this long (0 disables)",
			},
		},
		Action: r.Run,
	}
}

// watchCommand re-runs a plan whenever the plan file changes.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Run a plan, then run it again each time the plan file changes",
		Arguments: []cli.Argument{&cli.StringArg{Name: "plan"}},
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Wait this long after the last change before re-running",
				Value: defaultDebounce,
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record runs in the history database",
			},
		},
		Action: r.Watch,
	}
}

// historyCommand handles recorded runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect recorded runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to list",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Only list runs of this plan",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only list runs with this status",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:      "show",
				Usage:     "Show one recorded run",
				Arguments: []cli.Argument{&cli.StringArg{Name: "sequence"}},
				Flags:     []cli.Flag{formatFlag()},
				Action:    r.HistoryShow,
			},
			{
				Name:      "delete",
				Usage:     "Delete a recorded run",
				Arguments: []cli.Argument{&cli.StringArg{Name: "sequence"}},
				Action:    r.HistoryDelete,
			},
			{
				Name:  "serve",
				Usage: "Serve recorded runs as a read-only JSON API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Address to listen on",
						Value: "127.0.0.1:8080",
					},
				},
				Action: r.HistoryServe,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for monitoring a plan interactively.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "tui",
		Aliases:   []string{"interactive", "ui"},
		Usage:     "Launch interactive TUI for running a plan",
		Arguments: []cli.Argument{&cli.StringArg{Name: "plan"}},
		Action:    r.TUI,
	}
}
