package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
	History  HistoryConfig  `toml:"history"`
}

// EngineConfig contains background worker settings.
type EngineConfig struct {
	ProgressInterval time.Duration `toml:"progress_interval"`
	MaxQueue         int           `toml:"max_queue"`
}

// LoggingConfig controls log verbosity and destination.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// HistoryConfig controls whether finished runs are recorded.
type HistoryConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if c.Engine.ProgressInterval < 0 {
		return fmt.Errorf("%w: engine.progress_interval must not be negative", ErrInvalidConfig)
	}
	if c.Engine.MaxQueue < 0 {
		return fmt.Errorf("%w: engine.max_queue must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
