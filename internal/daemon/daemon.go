// Package daemon runs a long-lived backend service with the shared config
// and logging bootstrap.
package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldbell/wager/backend/internal/config"
	"github.com/coldbell/wager/backend/internal/logging"
)

type Settings interface {
	Logging() config.LogConfig
}

type Service interface {
	Run(ctx context.Context) error
}

// Main is the body of a service binary. It returns the process exit code.
func Main[C Settings, S Service](name string, load func() (C, error), build func(C, *slog.Logger) (S, error)) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Stdout, name, load, build)
}

func run[C Settings, S Service](ctx context.Context, console io.Writer, name string, load func() (C, error), build func(C, *slog.Logger) (S, error)) int {
	bootstrap := slog.New(slog.NewTextHandler(console, nil)).With("service", name)

	cfg, err := load()
	if err != nil {
		bootstrap.Error("load config", "err", err)
		return 1
	}
	logger, closeLogger, err := logging.New(name, cfg.Logging())
	if err != nil {
		bootstrap.Error("init logger", "err", err)
		return 1
	}
	defer func() {
		if err := closeLogger(); err != nil {
			bootstrap.Error("close logger", "err", err)
		}
	}()

	if source, err := config.CurrentConfigSource(); err == nil && source.Loaded {
		logger.Info("config file", "phase", source.Phase, "path", source.Path)
	}

	svc, err := build(cfg, logger)
	if err != nil {
		logger.Error("init service", "err", err)
		return 1
	}
	logger.Info("starting")
	if err := svc.Run(ctx); err != nil {
		logger.Error("service stopped", "err", err)
		return 1
	}
	logger.Info("stopped")
	return 0
}
