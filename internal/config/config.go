// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds all application configuration
type Config struct {
	API    APIConfig
	Cache  CacheConfig
	Auth   AuthConfig
	Server ServerConfig

	Locale   string `env:"YOUTHLOOP_LOCALE" envDefault:"zh"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// APIConfig locates the social and game services
type APIConfig struct {
	SocialOrigin string        `env:"SOCIAL_API_ORIGIN" envDefault:"http://localhost:8080"`
	GameOrigin   string        `env:"GAME_API_ORIGIN" envDefault:"http://localhost:8081"`
	Timeout      time.Duration `env:"YOUTHLOOP_HTTP_TIMEOUT" envDefault:"10s"`
}

// CacheConfig tunes the response cache
type CacheConfig struct {
	TTL          time.Duration `env:"YOUTHLOOP_CACHE_TTL" envDefault:"5m"`
	SingleFlight bool          `env:"YOUTHLOOP_SINGLE_FLIGHT"`
}

// AuthConfig controls where the CLI keeps its tokens
type AuthConfig struct {
	TokenFile string `env:"YOUTHLOOP_TOKEN_FILE"` // empty means ~/.youthloop/auth_tokens.json
}

// ServerConfig is used by cmd/api
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"12h"`
	SecureCookies   bool          `env:"SECURE_COOKIES"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks values env parsing cannot
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"SOCIAL_API_ORIGIN": c.API.SocialOrigin,
		"GAME_API_ORIGIN":   c.API.GameOrigin,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Locale != "zh" && c.Locale != "en" {
		return fmt.Errorf("YOUTHLOOP_LOCALE must be zh or en, got %q", c.Locale)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("YOUTHLOOP_CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("YOUTHLOOP_HTTP_TIMEOUT must be positive, got %s", c.API.Timeout)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %v", err)
	}
	return nil
}

// Logger builds the process logger at the configured level, writing JSON to w
// (stderr when nil) or human-readable lines when console is set
func (c *Config) Logger(w io.Writer, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
