package config

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        string `env:"SERVER_PORT"  envDefault:"8080"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
	Version     string `env:"APP_VERSION"  envDefault:"dev"`
	// Debug adds wrapped causes to API error responses.
	Debug bool `env:"DEBUG" envDefault:"false"`
}
