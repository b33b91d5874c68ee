package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"shelfarr/internal/config"
)

// Options configures New.
type Options struct {
	Level       string
	Format      string
	Console     bool
	FilePath    string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Development bool
	// Writer overrides the console destination; used by tests.
	Writer io.Writer
}

type handlerFactory func(w io.Writer, level slog.Leveler, addSource bool) slog.Handler

var handlers = map[string]handlerFactory{
	"console": func(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
		return newConsoleHandler(w, level, addSource)
	},
	"json": func(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: addSource, ReplaceAttr: renameJSONAttr})
	},
}

// New builds a logger from opts. Format defaults to console; caller
// locations are attached in development mode or at debug level.
func New(opts Options) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	factory, ok := handlers[format]
	if !ok {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	w, err := openWriters(opts)
	if err != nil {
		return nil, err
	}
	level := parseLevel(opts.Level)
	return slog.New(factory(w, level, opts.Development || level <= slog.LevelDebug)), nil
}

// NewFromConfig applies the logging section and writes to LogFilePath when set.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Console: true})
	}

	return New(Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Console:    true,
		FilePath:   cfg.LogFilePath(),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.RetentionDays,
	})
}

// parseLevel accepts slog level names; anything unrecognised is info.
func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

func openWriters(opts Options) (io.Writer, error) {
	console := opts.Writer
	if console == nil && opts.Console {
		console = os.Stdout
	}

	path := strings.TrimSpace(opts.FilePath)
	if path == "" {
		if console == nil {
			return os.Stdout, nil
		}
		return console, nil
	}

	file, err := rotatingFile(path, opts)
	if err != nil {
		return nil, err
	}
	if console == nil {
		return file, nil
	}
	return io.MultiWriter(console, file), nil
}

func rotatingFile(path string, opts Options) (*lumberjack.Logger, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	sizeMB := opts.MaxSizeMB
	if sizeMB <= 0 {
		sizeMB = 50
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    sizeMB,
		MaxBackups: max(opts.MaxBackups, 0),
		MaxAge:     opts.MaxAgeDays,
	}, nil
}

// renameJSONAttr emits ts (UTC RFC 3339), a lowercase level and a short
// file:line source.
func renameJSONAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(filepath.Base(src.File) + ":" + strconv.Itoa(src.Line))
		}
	}
	return attr
}
