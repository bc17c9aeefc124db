// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hearthdev/hearth/internal/appdirs"
	"github.com/hearthdev/hearth/internal/identity"
)

// Sink selects where log output goes.
type Sink string

const (
	SinkStderr Sink = "stderr"
	SinkFile   Sink = "file"
	SinkNone   Sink = "none"
)

// Format selects the log record encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls logger construction. Nil fields fall back to defaults.
type Config struct {
	Level      *string `yaml:"level"`
	Format     *string `yaml:"format"`
	Sink       *string `yaml:"sink"`
	File       *string `yaml:"file"`
	AddSource  *bool   `yaml:"add_source"`
	MaxSizeMB  *int    `yaml:"max_size_mb"`
	MaxBackups *int    `yaml:"max_backups"`
	MaxAgeDays *int    `yaml:"max_age_days"`
	Compress   *bool   `yaml:"compress"`
}

// Options identifies the process in every log record.
type Options struct {
	App     string
	Version string
	Mode    string
}

// WithEnv applies HEARTH_LOG_* environment overrides.
func (c Config) WithEnv() Config {
	if v := strings.TrimSpace(os.Getenv("HEARTH_LOG_LEVEL")); v != "" {
		c.Level = &v
	}
	if v := strings.TrimSpace(os.Getenv("HEARTH_LOG_FORMAT")); v != "" {
		c.Format = &v
	}
	if v := strings.TrimSpace(os.Getenv("HEARTH_LOG_SINK")); v != "" {
		c.Sink = &v
	}
	if v := strings.TrimSpace(os.Getenv("HEARTH_LOG_FILE")); v != "" {
		c.File = &v
	}
	return c
}

// Init builds the logger, installs it as the slog default, and returns a
// close function for the underlying sink.
func Init(cfg Config, opts Options) (func() error, error) {
	if opts.App == "" {
		opts.App = identity.AppSlug
	}
	if opts.Mode == "" {
		opts.Mode = "cli"
	}
	cfg = cfg.WithEnv()

	writer, closeFn, err := resolveWriter(cfg)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource != nil && *cfg.AddSource,
	}
	var handler slog.Handler
	if format(cfg) == FormatJSON {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}
	logger := slog.New(handler).With(
		slog.String("app", opts.App),
		slog.String("version", opts.Version),
		slog.String("mode", opts.Mode),
	)
	slog.SetDefault(logger)
	return closeFn, nil
}

func format(cfg Config) Format {
	if cfg.Format == nil {
		return FormatText
	}
	if Format(strings.ToLower(strings.TrimSpace(*cfg.Format))) == FormatJSON {
		return FormatJSON
	}
	return FormatText
}

func parseLevel(value *string) slog.Leveler {
	if value == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(*value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolveWriter(cfg Config) (io.Writer, func() error, error) {
	sink := SinkStderr
	if cfg.Sink != nil {
		sink = Sink(strings.ToLower(strings.TrimSpace(*cfg.Sink)))
	}
	switch sink {
	case SinkNone:
		return io.Discard, func() error { return nil }, nil
	case SinkStderr:
		return os.Stderr, func() error { return nil }, nil
	case SinkFile:
		path := ""
		if cfg.File != nil {
			path = strings.TrimSpace(*cfg.File)
		}
		if path == "" {
			defaultPath, err := appdirs.LogPath()
			if err != nil {
				return nil, nil, err
			}
			path = defaultPath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		rot := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    derefInt(cfg.MaxSizeMB, 20),
			MaxBackups: derefInt(cfg.MaxBackups, 5),
			MaxAge:     derefInt(cfg.MaxAgeDays, 7),
			Compress:   derefBool(cfg.Compress, true),
		}
		return rot, rot.Close, nil
	default:
		return nil, nil, fmt.Errorf("logging: unknown sink %q", sink)
	}
}

func derefInt(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func derefBool(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
