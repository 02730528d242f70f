// Package config provides YAML-based configuration loading for the bridge.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bridge configuration, loaded from bridge.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Guard     GuardConfig     `yaml:"guard"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Sweep     SweepConfig     `yaml:"sweep"`

	// ConversationTTLHours is the fixed conversation lifetime from creation.
	ConversationTTLHours int `yaml:"conversation_ttl_hours"`
}

// DatabaseConfig selects the storage backend. The default is a local SQLite
// file; a MySQL-compatible server can be used when sessions run on separate
// machines.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
}

// RateLimitConfig holds per-session request limits across three windows.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
}

// GuardConfig locates the approval-token store and its audit journal.
type GuardConfig struct {
	TokenFile   string `yaml:"token_file"`
	JournalFile string `yaml:"journal_file"`
}

// ExecutorConfig holds command execution defaults.
type ExecutorConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	SandboxImage   string `yaml:"sandbox_image"`
}

// SweepConfig schedules the expiry sweeper.
type SweepConfig struct {
	Schedule string `yaml:"schedule"` // 5-field cron expression
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, for callers that run
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = os.ExpandEnv("${HOME}/.bridge/bridge.db")
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "bridge"
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 10
	}
	if c.RateLimit.PerHour == 0 {
		c.RateLimit.PerHour = 100
	}
	if c.RateLimit.PerDay == 0 {
		c.RateLimit.PerDay = 500
	}
	if c.Guard.TokenFile == "" {
		c.Guard.TokenFile = os.ExpandEnv("${HOME}/.bridge/approval_tokens.json")
	}
	if c.Guard.JournalFile == "" {
		c.Guard.JournalFile = os.ExpandEnv("${HOME}/.bridge/guard_audit.log")
	}
	if c.Executor.TimeoutSeconds == 0 {
		c.Executor.TimeoutSeconds = 30
	}
	if c.Executor.SandboxImage == "" {
		c.Executor.SandboxImage = "python:3.11-slim"
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "*/15 * * * *"
	}
	if c.ConversationTTLHours == 0 {
		c.ConversationTTLHours = 3
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.PerHour < 0 || c.RateLimit.PerDay < 0 {
		errs = append(errs, "rate_limit values must not be negative")
	}
	if c.Executor.TimeoutSeconds < 0 {
		errs = append(errs, "executor.timeout_seconds must not be negative")
	}
	if c.ConversationTTLHours < 0 {
		errs = append(errs, "conversation_ttl_hours must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
