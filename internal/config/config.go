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
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// OAuthConfig holds the refresh-token grant used for IMAP OAUTHBEARER.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	TokenURL     string `yaml:"token_url"`
}

// MailboxConfig describes the monitored inbox.
type MailboxConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Folder             string        `yaml:"folder"`
	TLS                *bool         `yaml:"tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	MaxMessages        int           `yaml:"max_messages"`
	Timeout            time.Duration `yaml:"timeout"`
	DNSServers         []string      `yaml:"dns_servers"`
	OAuth              OAuthConfig   `yaml:"oauth"`
}

// UseTLS reports whether to dial with implicit TLS. Unset means true.
func (m MailboxConfig) UseTLS() bool {
	return m.TLS == nil || *m.TLS
}

// AIConfig selects the language model.
type AIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// SchedulerConfig controls background polling.
type SchedulerConfig struct {
	Interval      time.Duration
	StartupDelay  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Config holds all configuration for the procurement service.
type Config struct {
	Mailbox MailboxConfig
	AI      AIConfig

	// DatabaseURL is a Postgres DSN. Empty selects the in-memory store.
	DatabaseURL string
	// SeedPath optionally bootstraps vendors and RFPs into the store.
	SeedPath string

	// RedisURL is optional. It enables the poll lease and review queue.
	RedisURL    string
	ReviewQueue string

	Scheduler SchedulerConfig

	Port     int
	LogLevel slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Mailbox  MailboxConfig `yaml:"mailbox"`
	Database struct {
		URL  string `yaml:"url"`
		Seed string `yaml:"seed"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Review string `yaml:"review"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	AI AIConfig `yaml:"ai"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(envOrDefault("CONFIG_PATH", "config/config.yaml"))
}

// LoadFile reads configuration from path. Environment variables are not
// read from .env.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Mailbox:     raw.Mailbox,
		AI:          raw.AI,
		DatabaseURL: firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		SeedPath:    firstNonEmpty(raw.Database.Seed, os.Getenv("SEED_PATH")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		ReviewQueue: firstNonEmpty(raw.Redis.Queues.Review, envOrDefault("REVIEW_QUEUE", "procurement:review")),
		Scheduler: SchedulerConfig{
			Interval:      envOrDefaultDuration("POLL_INTERVAL", 5*time.Minute),
			StartupDelay:  envOrDefaultDuration("POLL_STARTUP_DELAY", 2*time.Second),
			RetryAttempts: envOrDefaultInt("POLL_RETRY_ATTEMPTS", 3),
			RetryDelay:    envOrDefaultDuration("POLL_RETRY_DELAY", 5*time.Second),
		},
		Port:     envOrDefaultInt("PORT", 8080),
		LogLevel: parseLevel(os.Getenv("LOG_LEVEL")),
	}

	m := &cfg.Mailbox
	m.Host = firstNonEmpty(m.Host, envOrDefault("IMAP_HOST", "imap.gmail.com"))
	if m.Port == 0 {
		m.Port = envOrDefaultInt("IMAP_PORT", 993)
	}
	m.Username = firstNonEmpty(m.Username, os.Getenv("EMAIL_USER"))
	m.Password = firstNonEmpty(m.Password, os.Getenv("EMAIL_PASSWORD"))
	m.Folder = firstNonEmpty(m.Folder, "INBOX")
	if m.MaxMessages <= 0 {
		m.MaxMessages = 10
	}
	if m.Timeout <= 0 {
		m.Timeout = 30 * time.Second
	}

	a := &cfg.AI
	a.APIKey = firstNonEmpty(a.APIKey, os.Getenv("GEMINI_API_KEY"))
	a.Model = firstNonEmpty(a.Model, envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"))
	if a.Temperature == 0 {
		a.Temperature = 0.1
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mailbox.Username == "" {
		return fmt.Errorf("mailbox username not configured (set mailbox.username or EMAIL_USER)")
	}
	if c.Mailbox.Password == "" && c.Mailbox.OAuth.RefreshToken == "" {
		return fmt.Errorf("mailbox credentials not configured (set mailbox.password or mailbox.oauth.refresh_token)")
	}
	if c.Mailbox.OAuth.RefreshToken != "" && c.Mailbox.OAuth.ClientID == "" {
		return fmt.Errorf("mailbox.oauth.client_id is required with a refresh token")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	return nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
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

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
