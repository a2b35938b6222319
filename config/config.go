// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

type Config struct {
	// Backend selects the event store.
	Backend Backend `env:"KPSMART_BACKEND" envDefault:"sqlite"`
	// DBPath is the SQLite database file.
	DBPath string `env:"KPSMART_DB_PATH" envDefault:"kpsmart.db"`
	// BadgerDir is the Badger data directory.
	BadgerDir string `env:"KPSMART_BADGER_DIR" envDefault:"kpsmart-badger"`
	LogLevel  string `env:"KPSMART_LOG_LEVEL" envDefault:"info"`
}

// Load reads the given dotenv files (".env" when none are named), then
// parses the environment. Missing dotenv files are not an error; variables
// already set in the environment win over the files.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel as a slog level name (debug, info, warn, error).
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
