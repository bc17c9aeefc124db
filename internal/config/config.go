// Package config loads the daemon configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hearthdev/hearth/internal/logging"
)

// Defaults for every tunable. A missing config file is not an error.
const (
	DefaultScrollbackLines  = 10000
	DefaultHistoryMaxBytes  = 5 * 1024 * 1024
	DefaultHistoryBacklog   = 256 * 1024
	DefaultHistoryDrainWait = time.Second
	DefaultKillGrace        = 5 * time.Second
	DefaultExitRetention    = 5 * time.Second
)

// Config is the daemon configuration.
type Config struct {
	// ScrollbackLines caps the emulator scrollback per session.
	ScrollbackLines int `yaml:"scrollback_lines"`

	// HistoryMaxBytes caps cumulative bytes written to a session's
	// scrollback log; further writes are dropped.
	HistoryMaxBytes int64 `yaml:"history_max_bytes"`

	// HistoryBacklogBytes caps the in-memory backlog used when the disk
	// write path is backpressured.
	HistoryBacklogBytes int `yaml:"history_backlog_bytes"`

	// HistoryDrainWait bounds how long close waits for the backlog to
	// drain before metadata is finalized anyway.
	HistoryDrainWait time.Duration `yaml:"history_drain_wait"`

	// KillGrace is how long a terminating session may linger before it is
	// force-disposed even without an exit report.
	KillGrace time.Duration `yaml:"kill_grace"`

	// ExitRetention is how long an exited session is retained so attached
	// clients can observe the exit status.
	ExitRetention time.Duration `yaml:"exit_retention"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ScrollbackLines:     DefaultScrollbackLines,
		HistoryMaxBytes:     DefaultHistoryMaxBytes,
		HistoryBacklogBytes: DefaultHistoryBacklog,
		HistoryDrainWait:    DefaultHistoryDrainWait,
		KillGrace:           DefaultKillGrace,
		ExitRetention:       DefaultExitRetention,
	}
}

// Load reads the config at path, merged over defaults. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	def := Default()
	if c.ScrollbackLines <= 0 {
		c.ScrollbackLines = def.ScrollbackLines
	}
	if c.HistoryMaxBytes <= 0 {
		c.HistoryMaxBytes = def.HistoryMaxBytes
	}
	if c.HistoryBacklogBytes <= 0 {
		c.HistoryBacklogBytes = def.HistoryBacklogBytes
	}
	if c.HistoryDrainWait <= 0 {
		c.HistoryDrainWait = def.HistoryDrainWait
	}
	if c.KillGrace <= 0 {
		c.KillGrace = def.KillGrace
	}
	if c.ExitRetention <= 0 {
		c.ExitRetention = def.ExitRetention
	}
	return c
}
