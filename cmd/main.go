package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/desertthunder/sqlgym/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	for _, path := range []string{os.Getenv("SQLGYM_CONFIG"), "config.toml", shared.ExpandPath("~/.sqlgym/config.toml")} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		loaded, err := shared.LoadConfig(path)
		if err != nil {
			logger.Warn("failed to load config, using defaults", "path", path, "error", err)
			break
		}
		config = loaded
		break
	}

	runner := NewRunner(RunnerOpts{Config: config, Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := runner.app().Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		case shared.IsAuthError(err):
			logger.Error("authentication required", "error", err)
			os.Exit(2)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
