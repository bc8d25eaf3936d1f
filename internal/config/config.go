// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the server configuration, read from the environment.
type Config struct {
	HTTPAddr string `env:"DICEHALL_HTTP_ADDR" envDefault:":8080"`

	// Exactly one store is used: Postgres when PostgresDSN is set, otherwise
	// SQLite at SQLitePath.
	PostgresDSN string `env:"DICEHALL_POSTGRES_DSN"`
	SQLitePath  string `env:"DICEHALL_SQLITE_PATH" envDefault:"dicehall.db"`

	// The action historian is disabled when RedisAddr is empty.
	RedisAddr     string `env:"DICEHALL_REDIS_ADDR"`
	RedisPassword string `env:"DICEHALL_REDIS_PASSWORD"`
	RedisDB       int    `env:"DICEHALL_REDIS_DB" envDefault:"0"`

	TokenSecret    string   `env:"DICEHALL_TOKEN_SECRET,required"`
	AllowGuest     bool     `env:"DICEHALL_ALLOW_GUEST" envDefault:"true"`
	OriginPatterns []string `env:"DICEHALL_ORIGIN_PATTERNS" envSeparator:","`

	GracePeriod time.Duration `env:"DICEHALL_GRACE_PERIOD" envDefault:"30s"`
	TurnTimeout time.Duration `env:"DICEHALL_TURN_TIMEOUT" envDefault:"90s"`
	BotPace     time.Duration `env:"DICEHALL_BOT_PACE" envDefault:"600ms"`
	RateLimit   int           `env:"DICEHALL_RATE_LIMIT" envDefault:"20"`

	// SchemaVersion is the migration the binary expects. serve refuses to
	// start against an older database unless AutoMigrate is set.
	SchemaVersion int  `env:"DICEHALL_SCHEMA_VERSION" envDefault:"1"`
	AutoMigrate   bool `env:"DICEHALL_AUTO_MIGRATE" envDefault:"true"`

	LogLevel  string `env:"DICEHALL_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DICEHALL_LOG_FORMAT" envDefault:"text"`
}

// LoadDotEnv reads files into the environment without overriding variables
// that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads dotenv files, then the environment, and validates the result.
func Load(dotenv ...string) (Config, error) {
	var cfg Config
	if err := LoadDotEnv(dotenv...); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if len(c.TokenSecret) < 16 {
		errs = append(errs, errors.New("DICEHALL_TOKEN_SECRET must be at least 16 bytes"))
	}
	if c.PostgresDSN == "" && strings.TrimSpace(c.SQLitePath) == "" {
		errs = append(errs, errors.New("one of DICEHALL_POSTGRES_DSN or DICEHALL_SQLITE_PATH is required"))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, errors.New("DICEHALL_GRACE_PERIOD must be positive"))
	}
	if c.TurnTimeout < 0 {
		errs = append(errs, errors.New("DICEHALL_TURN_TIMEOUT must not be negative"))
	}
	if c.BotPace < 0 {
		errs = append(errs, errors.New("DICEHALL_BOT_PACE must not be negative"))
	}
	if c.SchemaVersion < 1 {
		errs = append(errs, errors.New("DICEHALL_SCHEMA_VERSION must be at least 1"))
	}
	return errors.Join(errs...)
}

// UsePostgres reports whether the Postgres store is configured.
func (c Config) UsePostgres() bool { return c.PostgresDSN != "" }
