package config

import (
	"fmt"

	"github.com/caarlos0/env/v9"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	DBPath        string `env:"DB_PATH" envDefault:"./sims.db"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	Env           string `env:"APP_ENV" envDefault:"development"`
}

// Load reads a local .env file if present, then parses the process
// environment into a Config.
func Load() (Config, error) {
	// Best-effort: production should use real env injection.
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("load dotenv file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment, where
// migrations are applied automatically on startup.
func (c Config) IsDev() bool {
	return c.Env != "production"
}
