package config

import (
	"fmt"
	"time"

	"github.com/loykin/vigil/internal/logger"
	"github.com/loykin/vigil/internal/store"
	"github.com/spf13/viper"
)

// Config is the top-level TOML structure.
//
//	[monitor]
//	workdir = "/var/lib/myapp/vigil"
//	heartbeat_interval = "1m"
//	check_interval = "2m"
//	crash_threshold = "4m"
//	debug = false
//
//	[log]
//	dir = "/var/log/myapp"
//	level = "info"
//
//	[store]
//	driver = "sqlite"
//	dsn = "/var/lib/myapp/vigil.db"
//
//	[history]
//	clickhouse_addr = "localhost:9000"
//
//	[server]
//	listen = ":9321"
type Config struct {
	Monitor MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Store   StoreConfig   `toml:"store" mapstructure:"store"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
}

type MonitorConfig struct {
	WorkDir           string        `toml:"workdir" mapstructure:"workdir"`
	SessionID         string        `toml:"session_id" mapstructure:"session_id"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	CheckInterval     time.Duration `toml:"check_interval" mapstructure:"check_interval"`
	CrashThreshold    time.Duration `toml:"crash_threshold" mapstructure:"crash_threshold"`
	Debug             bool          `toml:"debug" mapstructure:"debug"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Path       string `toml:"path" mapstructure:"path"`
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type StoreConfig struct {
	Driver string `toml:"driver" mapstructure:"driver"`
	DSN    string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	ClickHouseAddr     string `toml:"clickhouse_addr" mapstructure:"clickhouse_addr"`
	ClickHouseDatabase string `toml:"clickhouse_database" mapstructure:"clickhouse_database"`
	ClickHouseUser     string `toml:"clickhouse_user" mapstructure:"clickhouse_user"`
	ClickHousePassword string `toml:"clickhouse_password" mapstructure:"clickhouse_password"`
	ClickHouseTable    string `toml:"clickhouse_table" mapstructure:"clickhouse_table"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// Load parses a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects obviously inconsistent settings. Zero durations are fine
// (the monitor applies defaults); a threshold at or below the heartbeat
// interval is not, because one late write would look like a crash.
func (c *Config) Validate() error {
	m := c.Monitor
	if m.HeartbeatInterval < 0 || m.CheckInterval < 0 || m.CrashThreshold < 0 {
		return fmt.Errorf("config: intervals must not be negative")
	}
	if m.CrashThreshold > 0 {
		hb := m.HeartbeatInterval
		if hb == 0 {
			hb = time.Minute
		}
		if m.CrashThreshold <= hb {
			return fmt.Errorf("config: crash_threshold %v must exceed heartbeat_interval %v", m.CrashThreshold, hb)
		}
	}
	return nil
}

// LoggerConfig converts the [log] section to the logger package's config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Dir:        c.Log.Dir,
		Path:       c.Log.Path,
		Level:      c.Log.Level,
		Color:      c.Log.Color,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// StoreConfig converts the [store] section to the store factory's config.
func (c *Config) StoreConfig() store.Config {
	return store.Config{Driver: c.Store.Driver, DSN: c.Store.DSN}
}
