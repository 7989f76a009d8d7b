// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"inlinecms/internal/autosave"
	"inlinecms/internal/preview"
	"inlinecms/internal/session"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host     string
	Port     string
	Env      string // "development", "production", "testing"
	LogLevel slog.Level

	// Content repository: "postgres" or "memory"
	StoreBackend string

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache and preview override channel)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Content languages; the default language must be filled to publish.
	Languages       []string
	DefaultLanguage string

	// EditorTokens maps bearer tokens to editor identities.
	EditorTokens map[string]string

	AutosaveDebounce   time.Duration
	AutosaveRetryDelay time.Duration
	AutosaveMaxRetries uint64
	AutosaveTeardown   autosave.Policy

	PreviewDelay          time.Duration
	PreviewAckTimeout     time.Duration
	PreviewTTL            time.Duration
	PreviewAllowedOrigins []string

	SessionIdleTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if a value cannot be
// parsed, or if critical values are missing in production mode.
func Load() (*Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		StoreBackend: envOrDefault("STORE_BACKEND", BackendPostgres),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "inlinecms"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "inlinecms"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		Languages: splitList(envOrDefault("CONTENT_LANGUAGES", "ar,en")),

		AutosaveDebounce:   p.duration("AUTOSAVE_DEBOUNCE", 30*time.Second),
		AutosaveRetryDelay: p.duration("AUTOSAVE_RETRY_DELAY", 5*time.Second),
		AutosaveMaxRetries: p.uint("AUTOSAVE_MAX_RETRIES", 1),

		PreviewDelay:          p.duration("PREVIEW_DELAY", 100*time.Millisecond),
		PreviewAckTimeout:     p.duration("PREVIEW_ACK_TIMEOUT", 2*time.Second),
		PreviewTTL:            p.duration("PREVIEW_TTL", 30*time.Minute),
		PreviewAllowedOrigins: splitList(os.Getenv("PREVIEW_ALLOWED_ORIGINS")),

		SessionIdleTimeout: p.duration("SESSION_IDLE_TIMEOUT", session.DefaultIdleTimeout),
	}

	if len(cfg.Languages) > 0 {
		cfg.DefaultLanguage = envOrDefault("CONTENT_DEFAULT_LANGUAGE", cfg.Languages[0])
	}
	if !contains(cfg.Languages, cfg.DefaultLanguage) {
		errs = append(errs, fmt.Errorf("CONTENT_DEFAULT_LANGUAGE %q is not in CONTENT_LANGUAGES", cfg.DefaultLanguage))
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	policy, err := autosave.ParsePolicy(os.Getenv("AUTOSAVE_TEARDOWN"))
	if err != nil {
		errs = append(errs, fmt.Errorf("AUTOSAVE_TEARDOWN: %w", err))
	}
	cfg.AutosaveTeardown = policy

	tokens, err := parseTokens(os.Getenv("EDITOR_TOKENS"))
	if err != nil {
		errs = append(errs, fmt.Errorf("EDITOR_TOKENS: %w", err))
	}
	cfg.EditorTokens = tokens

	switch cfg.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.StoreBackend))
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			errs = append(errs, errors.New("POSTGRES_PASSWORD must be set in production"))
		}
		if len(cfg.EditorTokens) == 0 {
			errs = append(errs, errors.New("EDITOR_TOKENS must be set in production"))
		}
		if cfg.PreviewDelay >= preview.MaxDelay {
			errs = append(errs, fmt.Errorf("PREVIEW_DELAY must be below %s", preview.MaxDelay))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Autosave returns the scheduler settings.
func (c *Config) Autosave() autosave.Config {
	cfg := autosave.DefaultConfig()
	cfg.Debounce = c.AutosaveDebounce
	cfg.RetryDelay = c.AutosaveRetryDelay
	cfg.MaxRetries = c.AutosaveMaxRetries
	cfg.Teardown = c.AutosaveTeardown
	return cfg
}

// Preview returns the bridge settings.
func (c *Config) Preview() preview.Config {
	return preview.Config{Delay: c.PreviewDelay, AckTimeout: c.PreviewAckTimeout}
}

// Session returns the editing session settings.
func (c *Config) Session() session.Config {
	return session.Config{
		Autosave:    c.Autosave(),
		Preview:     c.Preview(),
		IdleTimeout: c.SessionIdleTimeout,
	}
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser reads typed variables and collects parse errors.
type parser struct {
	errs *[]error
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: want a positive duration, got %q", key, v))
		return fallback
	}
	return d
}

func (p parser) uint(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: want a non-negative integer, got %q", key, v))
		return fallback
	}
	return n
}

// parseTokens reads "editor=token" pairs separated by commas.
func parseTokens(raw string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range splitList(raw) {
		editor, token, ok := strings.Cut(pair, "=")
		editor, token = strings.TrimSpace(editor), strings.TrimSpace(token)
		if !ok || editor == "" || token == "" {
			return nil, fmt.Errorf("malformed entry %q (want editor=token)", pair)
		}
		if _, dup := tokens[token]; dup {
			return nil, fmt.Errorf("token for %q is already assigned", editor)
		}
		tokens[token] = editor
	}
	return tokens, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
