// Package config loads the application configuration from an XDG-placed
// YAML file, filling anything unset from defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "fetchq"

// Config holds the configuration options for the application.
type Config struct {
	Engine  *EngineConfig  `yaml:"engine,omitempty"`
	API     *APIConfig     `yaml:"api,omitempty"`
	Queue   *QueueConfig   `yaml:"queue,omitempty"`
	History *HistoryConfig `yaml:"history,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// EngineConfig points at the transfer engine daemon.
type EngineConfig struct {
	Addr        string `yaml:"addr,omitempty"`
	EventBuffer int    `yaml:"eventBuffer,omitempty"`
}

// APIConfig holds the HTTP API listener options.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr,omitempty"`
}

// QueueConfig holds queue tunables and the snapshot database location.
type QueueConfig struct {
	MaxConcurrent int    `yaml:"maxConcurrent,omitempty"`
	SpeedLimitBPS int64  `yaml:"speedLimitBytesPerSec,omitempty"`
	DBPath        string `yaml:"dbPath,omitempty"`
}

// HistoryConfig holds the history database location and retention.
type HistoryConfig struct {
	DBPath        string `yaml:"dbPath,omitempty"`
	RetentionDays int    `yaml:"retentionDays,omitempty"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Debug bool   `yaml:"debug,omitempty"`
	Path  string `yaml:"path,omitempty"`
}

// Path returns the configuration file location.
func Path() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default
// configuration.
func GetConfig() (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	engineCfg := zeroOr(cfg.Engine, defaults.Engine)
	apiCfg := zeroOr(cfg.API, defaults.API)
	queueCfg := zeroOr(cfg.Queue, defaults.Queue)
	historyCfg := zeroOr(cfg.History, defaults.History)
	logCfg := zeroOr(cfg.Log, defaults.Log)

	return &Config{
		Engine: &EngineConfig{
			Addr:        zeroOr(engineCfg.Addr, defaults.Engine.Addr),
			EventBuffer: zeroOr(engineCfg.EventBuffer, defaults.Engine.EventBuffer),
		},
		API: &APIConfig{
			ListenAddr: zeroOr(apiCfg.ListenAddr, defaults.API.ListenAddr),
		},
		Queue: &QueueConfig{
			MaxConcurrent: zeroOr(queueCfg.MaxConcurrent, defaults.Queue.MaxConcurrent),
			SpeedLimitBPS: zeroOr(queueCfg.SpeedLimitBPS, defaults.Queue.SpeedLimitBPS),
			DBPath:        zeroOr(queueCfg.DBPath, defaults.Queue.DBPath),
		},
		History: &HistoryConfig{
			DBPath:        zeroOr(historyCfg.DBPath, defaults.History.DBPath),
			RetentionDays: zeroOr(historyCfg.RetentionDays, defaults.History.RetentionDays),
		},
		Log: &LogConfig{
			Debug: zeroOr(logCfg.Debug, defaults.Log.Debug),
			Path:  zeroOr(logCfg.Path, defaults.Log.Path),
		},
	}, nil
}

// Save writes the configuration back to the config file.
func Save(cfg *Config) error {
	path := Path()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func DefaultConfig() Config {
	return Config{
		Engine: &EngineConfig{
			Addr:        engineAddr,
			EventBuffer: engineEventBuffer,
		},
		API: &APIConfig{
			ListenAddr: apiListenAddr,
		},
		Queue: &QueueConfig{
			MaxConcurrent: maxConcurrent,
			SpeedLimitBPS: speedLimitBPS,
			DBPath:        queueDBPath,
		},
		History: &HistoryConfig{
			DBPath:        historyDBPath,
			RetentionDays: retentionDays,
		},
		Log: &LogConfig{
			Debug: false,
			Path:  logPath,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
