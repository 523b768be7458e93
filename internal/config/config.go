// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment key, e.g. CHAT_PORT.
const Prefix = "CHAT"

// Config holds the server configuration.
type Config struct {
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	Port int    `envconfig:"PORT" default:"8080"`

	HistoryCapacity  int   `envconfig:"HISTORY_CAPACITY" default:"100"`
	DeliveryBuffer   int   `envconfig:"DELIVERY_BUFFER" default:"256"`
	MaxMessageSize   int64 `envconfig:"MAX_MESSAGE_SIZE" default:"8192"`
	MaxContentLength int   `envconfig:"MAX_CONTENT_LENGTH" default:"2000"`

	// Per-session inbound throttling, in messages per second. Zero disables it.
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"0"`
	RateBurst int     `envconfig:"RATE_BURST" default:"10"`

	WriteWait time.Duration `envconfig:"WRITE_WAIT" default:"10s"`
	PongWait  time.Duration `envconfig:"PONG_WAIT" default:"60s"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	DBPath    string `envconfig:"DB_PATH" default:"data/sessions.db"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	GinMode   string `envconfig:"GIN_MODE" default:"release"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be positive, got %d", c.HistoryCapacity)
	}
	if c.DeliveryBuffer <= 0 {
		return fmt.Errorf("delivery buffer must be positive, got %d", c.DeliveryBuffer)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive, got %d", c.MaxMessageSize)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("max content length must be positive, got %d", c.MaxContentLength)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when a rate limit is set")
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 {
		return fmt.Errorf("write and pong waits must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PingPeriod is how often the outbound pump pings. Must be less than PongWait.
func (c *Config) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
