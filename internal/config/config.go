package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Redis   Redis
	Sync    Sync
	Journal Journal
	HTTP    HTTP
	Log     Log
}

type Redis struct {
	Addr        string `env:"REDIS_ADDRESS" envDefault:"localhost:6379"`
	Password    string `env:"REDIS_PASSWORD"`
	DB          int    `env:"REDIS_DB" envDefault:"0"`
	NotesPrefix string `env:"REDIS_NOTES_PREFIX" envDefault:"notesync"`
}

type Sync struct {
	MaxAttempts int           `env:"SYNC_MAX_ATTEMPTS" envDefault:"5"`
	BaseDelay   time.Duration `env:"SYNC_BASE_DELAY" envDefault:"1s"`
	MaxDelay    time.Duration `env:"SYNC_MAX_DELAY" envDefault:"30s"`
	Jitter      bool          `env:"SYNC_JITTER" envDefault:"false"`
}

type Journal struct {
	Enabled      bool          `env:"JOURNAL_ENABLED" envDefault:"true"`
	StreamKey    string        `env:"JOURNAL_STREAM_KEY" envDefault:"notesync:status"`
	MaxLen       int64         `env:"JOURNAL_MAX_LEN" envDefault:"10000"`
	Buffer       int           `env:"JOURNAL_BUFFER" envDefault:"256"`
	Retention    time.Duration `env:"JOURNAL_RETENTION" envDefault:"24h"`
	TrimSchedule string        `env:"JOURNAL_TRIM_SCHEDULE" envDefault:"@every 10m"`
}

type HTTP struct {
	Port         int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"true"`
}

// Parse reads the configuration from the environment and validates it.
func Parse() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load loads an optional .env file and then parses the environment,
// exiting the process on invalid configuration.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	c, err := Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return c
}

func (c *Config) validate() error {
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be >= 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.BaseDelay < 0 {
		return fmt.Errorf("SYNC_BASE_DELAY must not be negative, got %s", c.Sync.BaseDelay)
	}
	if c.Sync.Jitter && c.Sync.MaxDelay < c.Sync.BaseDelay {
		return fmt.Errorf("SYNC_MAX_DELAY (%s) must be >= SYNC_BASE_DELAY (%s)", c.Sync.MaxDelay, c.Sync.BaseDelay)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTP.Port)
	}
	return nil
}
