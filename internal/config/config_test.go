package config

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"SOCIAL_API_ORIGIN", "GAME_API_ORIGIN", "YOUTHLOOP_CACHE_TTL", "YOUTHLOOP_SINGLE_FLIGHT",
		"YOUTHLOOP_TOKEN_FILE", "YOUTHLOOP_LOCALE", "PORT", "SESSION_LIFETIME", "SECURE_COOKIES",
		"LOG_LEVEL", "YOUTHLOOP_HTTP_TIMEOUT",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.SocialOrigin != "http://localhost:8080" {
		t.Errorf("SocialOrigin = %q", cfg.API.SocialOrigin)
	}
	if cfg.API.GameOrigin != "http://localhost:8081" {
		t.Errorf("GameOrigin = %q", cfg.API.GameOrigin)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %s, want 5m", cfg.Cache.TTL)
	}
	if cfg.Cache.SingleFlight {
		t.Error("SingleFlight should default to false")
	}
	if cfg.Locale != "zh" {
		t.Errorf("Locale = %q, want zh", cfg.Locale)
	}
	if cfg.Server.Port != "3000" || cfg.Server.SessionLifetime != 12*time.Hour {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SOCIAL_API_ORIGIN", "https://social.example.com")
	t.Setenv("YOUTHLOOP_CACHE_TTL", "30s")
	t.Setenv("YOUTHLOOP_SINGLE_FLIGHT", "true")
	t.Setenv("YOUTHLOOP_LOCALE", "en")
	t.Setenv("YOUTHLOOP_TOKEN_FILE", "/tmp/tokens.json")
	t.Setenv("SECURE_COOKIES", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.SocialOrigin != "https://social.example.com" {
		t.Errorf("SocialOrigin = %q", cfg.API.SocialOrigin)
	}
	if cfg.Cache.TTL != 30*time.Second || !cfg.Cache.SingleFlight {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Locale != "en" || cfg.Auth.TokenFile != "/tmp/tokens.json" || !cfg.Server.SecureCookies {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadBadDuration(t *testing.T) {
	t.Setenv("YOUTHLOOP_CACHE_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API:      APIConfig{SocialOrigin: "http://a", GameOrigin: "http://b", Timeout: time.Second},
			Cache:    CacheConfig{TTL: time.Minute},
			Locale:   "zh",
			LogLevel: "info",
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"relative origin", func(c *Config) { c.API.SocialOrigin = "/api" }, "SOCIAL_API_ORIGIN"},
		{"bad locale", func(c *Config) { c.Locale = "fr" }, "YOUTHLOOP_LOCALE"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "YOUTHLOOP_CACHE_TTL"},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "YOUTHLOOP_HTTP_TIMEOUT"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn"}
	var buf bytes.Buffer
	log := cfg.Logger(&buf, false)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected log output %q", buf.String())
	}
}
