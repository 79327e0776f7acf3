// Package config loads the runner configuration from environment variables
// with caarlos0/env. Each concern lives in its own struct; Load parses them
// all and validates the combinations env tags cannot express.
package config

import (
	"net/http"

	"github.com/caarlos0/env/v11"

	"github.com/Abraxas-365/jobrunner/pkg/errx"
)

// Config is the full runner configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Jobx     JobxConfig
	Storage  StorageConfig
	Notifx   NotifxConfig
	Auth     AuthConfig
}

var configErrors = errx.NewRegistry("CONFIG")

var (
	ErrParse   = configErrors.Register("PARSE", errx.TypeValidation, http.StatusBadRequest, "Invalid environment configuration")
	ErrInvalid = configErrors.Register("INVALID", errx.TypeValidation, http.StatusBadRequest, "Inconsistent configuration")
)

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

// LoadAuth parses only the AUTH_* variables, for commands that need nothing
// else.
func LoadAuth() (AuthConfig, error) {
	var cfg AuthConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, configErrors.NewWithCause(ErrParse, err)
	}
	return cfg, nil
}

// LoadDatabase parses only the DATABASE_URL and DB_* variables and requires
// the URL.
func LoadDatabase() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, configErrors.NewWithCause(ErrParse, err)
	}
	if cfg.URL == "" {
		return cfg, invalid("DATABASE_URL", "required")
	}
	return cfg, nil
}

// LoadStorage parses only the storage variables.
func LoadStorage() (StorageConfig, error) {
	var cfg StorageConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, configErrors.NewWithCause(ErrParse, err)
	}
	return cfg, cfg.validate()
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, configErrors.NewWithCause(ErrParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules.
func (c *Config) Validate() error {
	if err := c.Jobx.validate(); err != nil {
		return err
	}
	if c.Jobx.Backend == BackendPostgres && c.Database.URL == "" {
		return invalid("DATABASE_URL", "required when JOBX_BACKEND=postgres")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	return c.Notifx.validate()
}

func invalid(variable, reason string) error {
	return configErrors.New(ErrInvalid).
		WithDetail("variable", variable).
		WithDetail("reason", reason)
}
