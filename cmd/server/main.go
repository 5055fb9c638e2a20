package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dontdude/vedit/internal/app"
	"github.com/dontdude/vedit/internal/config"
	"github.com/dontdude/vedit/internal/jobs"
	"github.com/dontdude/vedit/internal/pipeline"
	"github.com/dontdude/vedit/internal/platform/storage"
	"github.com/dontdude/vedit/internal/platform/transcription"
	"github.com/dontdude/vedit/internal/platform/web"
	"github.com/dontdude/vedit/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// 1. External dependencies, failing fast when one is unreachable.
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	channel, repo := stores.Channel, stores.Repo

	store, err := storage.NewMinio(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	transcoder, closeTranscoder, err := app.OpenTranscoder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTranscoder()

	transcriber := transcription.NewClient(cfg.TranscriptionURL, cfg.TranscriptionTimeout)

	// 2. Job runner and pipelines.
	pool := worker.NewPool(cfg.MaxConcurrentJobs)
	runner := jobs.NewRunner(pool, channel, jobs.WithTimeout(cfg.JobTimeout), jobs.WithLogger(logger))
	a := &api{
		runner:     runner,
		upload:     pipeline.NewUploadJob(repo, store, logger),
		burn:       pipeline.NewSubtitleBurnJob(repo, store, transcoder, cfg.TempDir, logger),
		transcribe: pipeline.NewTranscriptionJob(repo, transcriber, logger),
		logger:     logger,
	}

	// 3. HTTP surface.
	hub := web.NewHub(channel, logger)
	limiter := web.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	go limiter.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("POST /api/projects/{id}/video", limiter.Limit(http.HandlerFunc(a.handleUpload)))
	mux.Handle("POST /api/projects/{id}/subtitles", limiter.Limit(http.HandlerFunc(a.handleSubtitles)))
	mux.Handle("POST /api/transcriptions", limiter.Limit(http.HandlerFunc(a.handleTranscription)))
	mux.HandleFunc("GET /api/jobs/{id}/events", hub.ServeHistory)
	mux.Handle("GET /api/ws", hub)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           enableCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API Server starting", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// 4. Graceful shutdown: stop intake, let running jobs finish, then drop
	// the subscribers once their last events are out.
	logger.Info("Shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Jobs cancelled before completion", "error", err)
	}
	hub.Close()

	logger.Info("Server stopped")
	return nil
}
