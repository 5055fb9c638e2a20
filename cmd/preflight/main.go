// Command preflight verifies that the configured transcoder can run, so a
// deployment fails before accepting subtitle jobs it cannot process.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dontdude/vedit/internal/app"
	"github.com/dontdude/vedit/internal/config"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("Starting preflight", "transcoder", cfg.Transcoder)

	// Generous timeout to allow for cold image pulls.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	transcoder, closeTranscoder, err := app.OpenTranscoder(ctx, cfg, logger)
	if err != nil {
		logger.Error("Transcoder unavailable", "error", err)
		os.Exit(1)
	}
	defer closeTranscoder()

	if err := transcoder.Check(ctx); err != nil {
		logger.Error("Preflight failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.TempDir, 0o700); err != nil {
		logger.Error("Scratch directory unusable", "path", cfg.TempDir, "error", err)
		os.Exit(1)
	}

	logger.Info("Preflight passed", "tempDir", cfg.TempDir)
}
