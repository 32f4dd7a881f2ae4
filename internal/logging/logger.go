package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coldbell/wager/backend/internal/config"
)

// New builds the service logger. The returned func flushes and closes the
// log file when output includes one.
func New(serviceName string, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	newHandler, err := handlerFor(cfg.Format)
	if err != nil {
		return nil, nil, err
	}
	sinks, err := sinksFor(serviceName, cfg)
	if err != nil {
		return nil, nil, err
	}

	writers := make([]io.Writer, len(sinks))
	for i, s := range sinks {
		writers[i] = s
	}
	handler := newHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", serviceName), closeAll(sinks), nil
}

type handlerFunc func(io.Writer, *slog.HandlerOptions) slog.Handler

func handlerFor(format string) (handlerFunc, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) }, nil
	case "json":
		return func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) }, nil
	}
	return nil, fmt.Errorf("invalid log format %q (expected text|json)", format)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// sinksFor maps the output selector onto writers. "both" tees the console
// and the rotating file.
func sinksFor(serviceName string, cfg config.LogConfig) ([]io.WriteCloser, error) {
	output := strings.ToLower(strings.TrimSpace(cfg.Output))
	switch output {
	case "", "console":
		return []io.WriteCloser{nopCloser{os.Stdout}}, nil
	case "stderr":
		return []io.WriteCloser{nopCloser{os.Stderr}}, nil
	case "file", "both":
		file, err := rotatingFile(serviceName, cfg)
		if err != nil {
			return nil, err
		}
		if output == "file" {
			return []io.WriteCloser{file}, nil
		}
		return []io.WriteCloser{nopCloser{os.Stdout}, file}, nil
	}
	return nil, fmt.Errorf("invalid log output %q (expected console|stderr|file|both)", cfg.Output)
}

func rotatingFile(serviceName string, cfg config.LogConfig) (*lumberjack.Logger, error) {
	path := strings.TrimSpace(cfg.FilePath)
	if path == "" {
		path = filepath.Join(".docker", serviceName, serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %q: %w", path, err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		LocalTime:  true,
		Compress:   cfg.Compress,
	}, nil
}

func closeAll(sinks []io.WriteCloser) func() error {
	return func() error {
		var errs []error
		for _, s := range sinks {
			errs = append(errs, s.Close())
		}
		return errors.Join(errs...)
	}
}

func parseLevel(raw string) (slog.Level, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "warning") {
		return slog.LevelWarn, nil
	}
	if strings.TrimSpace(raw) == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
	}
	return level, nil
}
