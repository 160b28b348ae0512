package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// ErrParsingConfig is returned when the environment cannot be parsed into Config
var ErrParsingConfig = errors.New("failed to parse config")

// Config aggregates runtime configuration for the service.
type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":9000"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"tessera"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	EventsEnabled bool `env:"EVENTS_ENABLED" envDefault:"false"`
}

// Load reads configuration from environment variables, applying defaults where possible.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	// the .env file is optional
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings env tags cannot express
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.EventsEnabled && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when events are enabled")
	}
	if c.RequestTimeout < 0 {
		return errors.New("REQUEST_TIMEOUT must not be negative")
	}

	return nil
}
