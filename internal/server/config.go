// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the group chat service.
package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultRateBurst       = 5
	defaultRefillInterval  = time.Second
	defaultSendBufferSize  = 256
	defaultDatabasePath    = "chat.db"
	defaultLogLevel        = "INFO"
	defaultShutdownTimeout = 10 * time.Second
	defaultBcryptCost      = 10
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBufferSize  int
	RateLimit       RateLimitConfig
	DatabasePath    string
	LogLevel        string
	ShutdownTimeout time.Duration
	BcryptCost      int
}

// envConfig mirrors Config with the environment variable bindings.
type envConfig struct {
	Port                    string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize          int           `env:"SEND_BUFFER_SIZE,default=256"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	DatabasePath            string        `env:"DATABASE_PATH,default=chat.db"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	BcryptCost              int           `env:"BCRYPT_COST,default=10"`
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:           defaultPort,
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: defaultMaxMessageSize,
		SendBufferSize: defaultSendBufferSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultRateBurst,
			RefillInterval: defaultRefillInterval,
		},
		DatabasePath:    defaultDatabasePath,
		LogLevel:        defaultLogLevel,
		ShutdownTimeout: defaultShutdownTimeout,
		BcryptCost:      defaultBcryptCost,
	}
}

// LoadConfig reads the configuration from the environment, after loading a
// .env file from the working directory when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var raw envConfig
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	cfg := Config{
		Port:           raw.Port,
		AllowedOrigins: parseOrigins(raw.AllowedOrigins),
		MaxMessageSize: raw.MaxMessageSize,
		SendBufferSize: raw.SendBufferSize,
		RateLimit: RateLimitConfig{
			Burst:          raw.RateLimitBurst,
			RefillInterval: raw.RateLimitRefillInterval,
		},
		DatabasePath:    raw.DatabasePath,
		LogLevel:        raw.LogLevel,
		ShutdownTimeout: raw.ShutdownTimeout,
		BcryptCost:      raw.BcryptCost,
	}
	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

// sanitizeConfig replaces unusable values with defaults.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultRateBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = defaultBcryptCost
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
