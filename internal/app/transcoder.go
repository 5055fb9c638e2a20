// Package app holds wiring shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dontdude/vedit/internal/config"
	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/platform/docker"
	"github.com/dontdude/vedit/internal/platform/ffmpeg"
)

// OpenTranscoder builds the backend selected by cfg.Transcoder.
// The returned close function releases its resources.
func OpenTranscoder(ctx context.Context, cfg config.Config, logger *slog.Logger) (domain.Transcoder, func() error, error) {
	switch cfg.Transcoder {
	case config.TranscoderExec:
		logger.Info("Using local ffmpeg", "path", cfg.FFmpegPath)
		return ffmpeg.NewExec(cfg.FFmpegPath, cfg.FFmpeg), func() error { return nil }, nil
	case config.TranscoderDocker:
		t, err := docker.NewTranscoder(ctx, cfg.DockerImage, cfg.DockerMemoryMB, cfg.FFmpeg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using dockerized ffmpeg", "image", cfg.DockerImage, "memoryMB", cfg.DockerMemoryMB)
		return t, t.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown transcoder %q (want %s or %s)", cfg.Transcoder, config.TranscoderExec, config.TranscoderDocker)
	}
}
