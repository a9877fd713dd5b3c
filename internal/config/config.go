// Package config provides centralized configuration for the annotation CLI
// and server. Settings come from environment variables with defaults and
// are validated on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Oracle   OracleConfig
	Annotate AnnotateConfig
	Database DatabaseConfig
	Runs     RunsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining runs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// OracleConfig holds the chat-completions endpoint used as the oracle.
type OracleConfig struct {
	// URL is the API base URL (default: https://api.openai.com/v1)
	URL string `env:"ORACLE_URL" default:"https://api.openai.com/v1"`

	// APIKey authenticates oracle requests (required)
	APIKey string `env:"ORACLE_API_KEY" envAlt:"OPENAI_API_KEY" required:"true"`

	// Model is the model name sent with each request (default: gpt-4-turbo-preview)
	Model string `env:"ORACLE_MODEL" default:"gpt-4-turbo-preview"`

	// Timeout bounds a single oracle call (default: 10s)
	Timeout time.Duration `env:"ORACLE_TIMEOUT" default:"10s"`
}

// AnnotateConfig holds annotation engine settings.
type AnnotateConfig struct {
	// SampleRows is how many leading values are shown per column (default: 5)
	SampleRows int `env:"ANNOTATE_SAMPLE_ROWS" default:"5"`

	// MaxRows is how many rows loaders read (default: 1000)
	MaxRows int `env:"ANNOTATE_MAX_ROWS" default:"1000"`

	// Unattended answers every operator question with NONE (default: false)
	Unattended bool `env:"ANNOTATE_UNATTENDED" default:"false"`

	// ShortenDescriptionOver is the description length that triggers
	// shortening; negative disables it (default: 1000)
	ShortenDescriptionOver int `env:"ANNOTATE_SHORTEN_DESCRIPTION_OVER" default:"1000"`
}

// DatabaseConfig holds the optional PostgreSQL connection used for run
// history and for annotating relations in place.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// RunsConfig holds background annotation run settings.
type RunsConfig struct {
	// MaxConcurrent is the maximum number of parallel runs (default: 4)
	MaxConcurrent int `env:"RUNS_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUNS_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a whole run (default: 15m)
	Timeout time.Duration `env:"RUNS_TIMEOUT" default:"15m"`

	// Retention is how long finished runs stay in memory (default: 30m)
	Retention time.Duration `env:"RUNS_RETENTION" default:"30m"`

	// MaxFileSize is the maximum upload size in bytes (default: 50MB)
	MaxFileSize int64 `env:"RUNS_MAX_FILE_SIZE" default:"52428800"`

	// HistoryRetention is how long stored runs are kept (default: 720h)
	HistoryRetention time.Duration `env:"RUNS_HISTORY_RETENTION" default:"720h"`

	// PruneInterval is how often old stored runs are deleted (default: 24h)
	PruneInterval time.Duration `env:"RUNS_PRUNE_INTERVAL" default:"24h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// TrustedProxies is a comma-separated list of proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// SecurityConfig guards the run API.
type SecurityConfig struct {
	// RequireAPIKey rejects API requests without a valid X-API-Key header
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
