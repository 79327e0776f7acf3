package config

import "time"

// AuthConfig configures bearer authentication on the API. An empty secret
// disables it.
type AuthConfig struct {
	JWTSecret string        `env:"AUTH_JWT_SECRET"`
	JWTIssuer string        `env:"AUTH_JWT_ISSUER" envDefault:"jobrunner"`
	TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL"  envDefault:"24h"`
}

func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}
