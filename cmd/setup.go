package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/xlsync/internal/shared"
)

// SetupConfig writes the default configuration file to the path named by --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if cmd.Bool("force") {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	r.logger.Info("creating config file from template", "path", path)
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.writePlain("✓ Config written to %s\n", path)
	return nil
}

// SetupDatabase initializes the database and runs migrations. With --rollback it reverts the
// latest migration instead.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Database.Path
	r.logger.Info("initializing database", "path", path)

	db, err := shared.NewDatabase(path)
	if err != nil {
		return err
	}
	defer db.Close()
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
		r.logger.Warn("rolled back latest migration", "path", path)
	}

	version, err := shared.SchemaVersion(db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", path)
	r.writePlain("✓ Database ready at %s (schema version %d)\n", path, version)
	return nil
}
