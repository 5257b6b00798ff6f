package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/repositories"
	"github.com/desertthunder/xlsync/internal/shared"
	"github.com/desertthunder/xlsync/internal/worker"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, planCommand, runCommand, watchCommand, historyCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure loads the configuration file named by --config, when it exists, and applies the log level.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	r.configPath = path

	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}

	name := r.config.Logging.Level
	if override := cmd.String("log-level"); override != "" {
		name = override
	}
	level, err := shared.ParseLevel(name)
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, level)

	if r.config.Logging.File != "" {
		logger, err := shared.NewFileLogger(r.config.Logging.File)
		if err != nil {
			return ctx, err
		}
		shared.SetLogLevel(logger, level)
		r.SetLogger(logger)
	}
	return ctx, nil
}

// SetLogger replaces the logger used by every command.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// engineOptions builds engine options from the loaded configuration.
func (r *Runner) engineOptions(handlers worker.Handlers) worker.Options {
	return worker.Options{
		Logger:           r.logger,
		Handlers:         handlers,
		ProgressInterval: r.config.Engine.ProgressInterval,
		MaxQueue:         r.config.Engine.MaxQueue,
	}
}

// openHistory opens the configured database, applies pending migrations, and returns the run
// repository with a function that closes the database.
func (r *Runner) openHistory() (*repositories.RunRepository, func(), error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repositories.NewRunRepository(db), func() { db.Close() }, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
