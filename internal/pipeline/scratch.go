package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dontdude/vedit/internal/domain"
)

// scratch is a private directory for the temporary files of one job run.
// Every path handed out is removed by cleanup, whatever happened in between.
type scratch struct {
	dir   string
	paths []string
}

func newScratch(base, pattern string) (*scratch, error) {
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &scratch{dir: dir}, nil
}

// path reserves name inside the scratch directory.
func (s *scratch) path(name string) string {
	p := filepath.Join(s.dir, name)
	s.paths = append(s.paths, p)
	return p
}

// create opens a new file at path(name).
func (s *scratch) create(name string) (*os.File, error) {
	return os.OpenFile(s.path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
}

// cleanup removes every reserved file, then the directory itself.
// Failures are logged and never returned so they cannot mask the job's result.
func (s *scratch) cleanup(logger *slog.Logger) {
	for _, p := range s.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("Failed to remove temporary file", "path", p, "error", err)
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		logger.Error("Failed to remove scratch directory", "path", s.dir, "error", err)
	}
}

// discardAsset deletes an uploaded asset that could not be recorded.
// The job context may be the reason for leaving, so a fresh one is used.
func discardAsset(store domain.MediaStore, publicID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Delete(ctx, publicID); err != nil {
		logger.Error("Failed to delete orphaned asset", "publicID", publicID, "error", err)
		return
	}
	logger.Info("Deleted orphaned asset", "publicID", publicID)
}
