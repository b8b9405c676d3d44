// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

// EnvPrefix is prepended to every environment variable the server reads.
const EnvPrefix = "CHAT_"

const (
	defaultHTTPAddr        = ":7484"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultBurst           = 10
	defaultRefillInterval  = time.Second
	defaultPendingRoomTTL  = time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	HTTPAddr         string        `env:"HTTP_ADDR"`
	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE"`
	InviteCodeLength int           `env:"INVITE_CODE_LENGTH"`
	PendingRoomTTL   time.Duration `env:"PENDING_ROOM_TTL"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel         string        `env:"LOG_LEVEL"`
	LogFormat        string        `env:"LOG_FORMAT"`
	RateLimit        RateLimitConfig
}

func defaultConfig() Config {
	return Config{
		HTTPAddr: defaultHTTPAddr,
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:7484",
		},
		MaxMessageSize:   defaultMaxMessageSize,
		SendBufferSize:   defaultSendBufferSize,
		InviteCodeLength: rooms.DefaultInviteCodeLength,
		PendingRoomTTL:   defaultPendingRoomTTL,
		ShutdownTimeout:  defaultShutdownTimeout,
		LogLevel:         "info",
		LogFormat:        "text",
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// SanitizeConfig replaces zero or invalid settings with defaults and trims the
// origin list.
func SanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = def.HTTPAddr
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.InviteCodeLength < rooms.DefaultInviteCodeLength {
		cfg.InviteCodeLength = def.InviteCodeLength
	}
	if cfg.PendingRoomTTL <= 0 {
		cfg.PendingRoomTTL = def.PendingRoomTTL
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins
	return cfg
}

// LoadConfig reads an optional .env file, then CHAT_* environment variables,
// then command-line flags, each layer overriding the previous one.
func LoadConfig(flags *flag.FlagSet, args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	origins := strings.Join(cfg.AllowedOrigins, ",")
	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "chat HTTP listen address")
	flags.StringVar(&origins, "allowed-origins", origins, "comma-separated WebSocket origin allow-list, * allows all")
	flags.Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "maximum inbound frame size in bytes")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	if err := flags.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	cfg.AllowedOrigins = strings.Split(origins, ",")

	return SanitizeConfig(cfg), nil
}
