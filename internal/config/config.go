// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
//
// Everything is validated eagerly: a malformed tenant id, an unusable retry
// policy or an incomplete credential provider fails Load, so the gateway
// never starts in a broken state.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bcem/activitygateway/internal/identity"
	"github.com/bcem/activitygateway/internal/outbound"
	"github.com/bcem/activitygateway/internal/tenant"
)

// Credential provider kinds.
const (
	ProviderStatic   = "static"
	ProviderPostgres = "postgres"
	ProviderRedis    = "redis"
)

// TenantsConfig is the tenant admission allow-list.
type TenantsConfig struct {
	EnableFiltering bool
	// Allowed holds normalised (lower-case) tenant GUIDs.
	Allowed []string
}

// OAuthConfig points at the token endpoint for outbound calls.
type OAuthConfig struct {
	TokenURL string
	Scope    string
}

// CredentialsConfig selects where app secrets come from.
type CredentialsConfig struct {
	Provider    string
	Apps        map[string]string // app id -> secret; seeded into the table for postgres
	DatabaseURL string
	RedisURL    string
	RedisKey    string
}

// DeferredConfig enables deferred sends when RedisURL is set.
type DeferredConfig struct {
	RedisURL string
	Queue    string
}

// Config holds all configuration for the activity gateway.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LogLevel     slog.Level

	Auth        identity.VerifierConfig
	Tenants     TenantsConfig
	Retry       outbound.RetryPolicy
	OAuth       OAuthConfig
	Credentials CredentialsConfig
	Deferred    DeferredConfig
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Auth struct {
		Enabled    *bool  `yaml:"enabled"`
		SigningKey string `yaml:"signing_key"`
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
	} `yaml:"auth"`
	Tenants struct {
		EnableFiltering bool     `yaml:"enable_filtering"`
		Allowed         []string `yaml:"allowed"`
	} `yaml:"tenants"`
	Retry struct {
		MaxAttempts int     `yaml:"max_attempts"`
		MinBackoff  string  `yaml:"min_backoff"`
		MaxBackoff  string  `yaml:"max_backoff"`
		Growth      float64 `yaml:"growth"`
	} `yaml:"retry"`
	OAuth struct {
		TokenURL string `yaml:"token_url"`
		Scope    string `yaml:"scope"`
	} `yaml:"oauth"`
	Credentials struct {
		Provider string `yaml:"provider"`
		Apps     []struct {
			AppID  string `yaml:"app_id"`
			Secret string `yaml:"secret"`
		} `yaml:"apps"`
		DatabaseURL string `yaml:"database_url"`
		RedisURL    string `yaml:"redis_url"`
		RedisKey    string `yaml:"redis_key"`
	} `yaml:"credentials"`
	Deferred struct {
		RedisURL string `yaml:"redis_url"`
		Queue    string `yaml:"queue"`
	} `yaml:"deferred"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile is Load for an explicit path.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse builds and validates a Config from YAML.
func Parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	defaults := outbound.DefaultRetryPolicy()
	cfg := &Config{
		Port: firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 3978)),
		Auth: identity.VerifierConfig{
			Enabled:    raw.Auth.Enabled == nil || *raw.Auth.Enabled,
			SigningKey: firstNonEmpty(raw.Auth.SigningKey, os.Getenv("AUTH_SIGNING_KEY")),
			Issuer:     raw.Auth.Issuer,
			Audience:   raw.Auth.Audience,
		},
		Tenants: TenantsConfig{EnableFiltering: raw.Tenants.EnableFiltering},
		Retry: outbound.RetryPolicy{
			MaxAttempts: raw.Retry.MaxAttempts,
			Growth:      raw.Retry.Growth,
		},
		OAuth: OAuthConfig{
			TokenURL: firstNonEmpty(raw.OAuth.TokenURL, outbound.DefaultTokenURL),
			Scope:    firstNonEmpty(raw.OAuth.Scope, outbound.DefaultScope),
		},
		Credentials: CredentialsConfig{
			Provider:    strings.ToLower(firstNonEmpty(raw.Credentials.Provider, ProviderStatic)),
			Apps:        make(map[string]string, len(raw.Credentials.Apps)),
			DatabaseURL: firstNonEmpty(raw.Credentials.DatabaseURL, os.Getenv("DATABASE_URL")),
			RedisURL:    firstNonEmpty(raw.Credentials.RedisURL, os.Getenv("REDIS_URL")),
			RedisKey:    raw.Credentials.RedisKey,
		},
		Deferred: DeferredConfig{
			RedisURL: raw.Deferred.RedisURL,
			Queue:    raw.Deferred.Queue,
		},
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Retry.Growth == 0 {
		cfg.Retry.Growth = defaults.Growth
	}

	var err error
	if cfg.ReadTimeout, err = parseDuration("server.read_timeout", raw.Server.ReadTimeout, 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = parseDuration("server.write_timeout", raw.Server.WriteTimeout, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Retry.MinBackoff, err = parseDuration("retry.min_backoff", raw.Retry.MinBackoff, defaults.MinBackoff); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxBackoff, err = parseDuration("retry.max_backoff", raw.Retry.MaxBackoff, defaults.MaxBackoff); err != nil {
		return nil, err
	}

	level := firstNonEmpty(raw.Log.Level, envOrDefault("LOG_LEVEL", "info"))
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log.level %q: %w", level, err)
	}

	for _, id := range raw.Tenants.Allowed {
		normalized, err := tenant.Normalize(id)
		if err != nil {
			return nil, fmt.Errorf("tenants.allowed: %w", err)
		}
		cfg.Tenants.Allowed = append(cfg.Tenants.Allowed, normalized)
	}

	for i, app := range raw.Credentials.Apps {
		appID := strings.TrimSpace(app.AppID)
		if appID == "" || app.Secret == "" {
			return nil, fmt.Errorf("credentials.apps[%d]: app_id and secret are required", i)
		}
		cfg.Credentials.Apps[appID] = app.Secret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Port)
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.SigningKey) == "" {
		return fmt.Errorf("auth.signing_key is required when auth is enabled")
	}

	switch c.Credentials.Provider {
	case ProviderStatic:
	case ProviderPostgres:
		if c.Credentials.DatabaseURL == "" {
			return fmt.Errorf("credentials.database_url is required for the postgres provider")
		}
	case ProviderRedis:
		if c.Credentials.RedisURL == "" {
			return fmt.Errorf("credentials.redis_url is required for the redis provider")
		}
	default:
		return fmt.Errorf("unknown credentials.provider %q (want static, postgres or redis)", c.Credentials.Provider)
	}
	return nil
}

func parseDuration(field, v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
