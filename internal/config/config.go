package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, loaded from the environment.
type Config struct {
	Addr      string `env:"ASSESSHUB_ADDR" envDefault:":8080"`
	DBPath    string `env:"ASSESSHUB_DB" envDefault:"assesshub.db"`
	JWTSecret string `env:"ASSESSHUB_JWT_SECRET"`

	TokenTTL   time.Duration `env:"ASSESSHUB_TOKEN_TTL" envDefault:"720h"`
	DefaultLab string        `env:"ASSESSHUB_DEFAULT_LAB" envDefault:"PAL"`

	// Retention: responses older than the window are purged on the cron
	// schedule. A zero window disables the sweeper.
	RetentionWindow time.Duration `env:"ASSESSHUB_RETENTION_WINDOW" envDefault:"0"`
	RetentionSpec   string        `env:"ASSESSHUB_RETENTION_SPEC" envDefault:"0 3 * * *"`

	SeedFile        string `env:"ASSESSHUB_SEED_FILE"`
	CoachingEnabled bool   `env:"ASSESSHUB_COACHING_ENABLED" envDefault:"false"`

	Commit    string `env:"ASSESSHUB_COMMIT" envDefault:"dev"`
	BuildTime string `env:"ASSESSHUB_BUILD_TIME"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
