// Package config loads the suite's TOML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/k2riddim/linkedin-research-suite/internal/logger"
	"github.com/k2riddim/linkedin-research-suite/internal/service"
	"github.com/k2riddim/linkedin-research-suite/internal/supervisor"
)

// Config is the top-level TOML structure.
type Config struct {
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`

	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Log        logger.Config    `toml:"log" mapstructure:"log"`
	ProcessLog ProcessLogConfig `toml:"process_log" mapstructure:"process_log"`
	Lifecycle  LifecycleConfig  `toml:"lifecycle" mapstructure:"lifecycle"`
	Store      StoreConfig      `toml:"store" mapstructure:"store"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`
	Sessions   SessionsConfig   `toml:"sessions" mapstructure:"sessions"`
	Services   []service.Spec   `toml:"services" mapstructure:"services"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// ProcessLogConfig controls the multiplexed child-output log.
type ProcessLogConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// LifecycleConfig tunes the supervisor policy. Zero values mean defaults.
type LifecycleConfig struct {
	HealthInterval time.Duration `toml:"health_interval" mapstructure:"health_interval"`
	HealthAttempts int           `toml:"health_attempts" mapstructure:"health_attempts"`
	RestartDelay   time.Duration `toml:"restart_delay" mapstructure:"restart_delay"`
	MaxRestarts    int           `toml:"max_restarts" mapstructure:"max_restarts"`
	StopTimeout    time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
}

// Options converts the section into supervisor options.
func (l LifecycleConfig) Options() supervisor.Options {
	return supervisor.Options{
		HealthInterval: l.HealthInterval,
		HealthAttempts: l.HealthAttempts,
		RestartDelay:   l.RestartDelay,
		MaxRestarts:    l.MaxRestarts,
		StopTimeout:    l.StopTimeout,
	}
}

// StoreConfig selects the lifecycle event store. An empty DSN disables
// persistence.
type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// HistoryConfig selects optional history sinks.
type HistoryConfig struct {
	ClickhouseDSN string `toml:"clickhouse_dsn" mapstructure:"clickhouse_dsn"`
	Table         string `toml:"table" mapstructure:"table"`
}

// SessionsConfig tunes the browser-session registry.
type SessionsConfig struct {
	ProviderURL    string        `toml:"provider_url" mapstructure:"provider_url"`
	RequestTimeout time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
	SweepInterval  time.Duration `toml:"sweep_interval" mapstructure:"sweep_interval"`
	MaxIdle        time.Duration `toml:"max_idle" mapstructure:"max_idle"`
	ShutdownBudget time.Duration `toml:"shutdown_budget" mapstructure:"shutdown_budget"`
}

// Load reads, unmarshals and validates the config at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("config declares no services")
	}
	// Order also validates specs, duplicate names and dependency cycles.
	if _, err := service.Order(c.Services); err != nil {
		return err
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Sessions.ShutdownBudget <= 0 {
		c.Sessions.ShutdownBudget = 5 * time.Second
	}
	if c.Sessions.RequestTimeout <= 0 {
		c.Sessions.RequestTimeout = 90 * time.Second
	}
	return nil
}

// GlobalEnv merges env_files contents with the top-level env list, the list
// winning. The result feeds the supervisor's overlay for every service.
func (c *Config) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines; blanks and # comments are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}
