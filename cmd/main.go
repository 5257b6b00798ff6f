package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := newApp(runner)

	if err := app.Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrRunFailed):
			logger.Error(err)
			os.Exit(2)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

// newApp builds the root command with global flags and every subcommand registered on r.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "xlsync",
		Usage:   "Run dependency graphs of file tasks on a background worker",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before:   r.configure,
		Commands: r.register(),
	}
}
