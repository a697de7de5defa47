// Package config loads reconcile settings from environment variables with
// defaults, and validates them on startup so misconfiguration fails fast.
package config

import (
	"net/url"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings for the serve command.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s" validate:"min=0s"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, imports can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s" validate:"min=0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0s"`
}

// DatabaseConfig holds database connection settings.
// Either URL or Host must be set; URL wins when both are present.
type DatabaseConfig struct {
	// URL is a full PostgreSQL connection string
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" default:"5432" validate:"min=1,max=65535"`
	Name     string `env:"DB_DATABASE" envAlt:"DB_NAME"`
	User     string `env:"DB_USERNAME" envAlt:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	SSLMode  string `env:"DB_SSLMODE" default:"disable" validate:"oneofci=disable allow prefer require verify-ca verify-full"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10" validate:"gt=0"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1" validate:"min=0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// DSN returns the connection string, assembling it from the discrete
// settings when no URL was given.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// ImportConfig holds batch import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted upload in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600" validate:"gt=0"`

	// MaxConcurrent is the number of batches that may run at once (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4" validate:"gt=0"`

	// MaxWaitTime is how long a batch waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s" validate:"gt=0s"`

	// Timeout bounds a single batch (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m" validate:"gt=0s"`

	// Encodings overrides the CSV encoding detection order
	Encodings []string `env:"IMPORT_ENCODINGS" validate:"dive,oneofci=utf-8 utf8 gbk gb2312 gb18030 latin-1 latin1 iso-8859-1"`

	// MappingFile points to a YAML file of column alias overrides
	MappingFile string `env:"IMPORT_MAPPING_FILE"`
}

// RateLimitConfig holds rate limiting settings per client IP.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey guards /api routes with an X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" validate:"oneofci=debug info warn error"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" validate:"oneofci=text json"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
