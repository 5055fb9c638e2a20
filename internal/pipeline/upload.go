package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/jobs"
)

// UploadInput is a raw video to attach to a project.
type UploadInput struct {
	ProjectID string
	FileName  string
	Data      []byte
}

// UploadJob stores a video in the media store and links it to its project.
type UploadJob struct {
	repo   domain.ProjectRepository
	store  domain.MediaStore
	logger *slog.Logger
}

var _ jobs.Job[UploadInput] = (*UploadJob)(nil)

// NewUploadJob creates the job.
func NewUploadJob(repo domain.ProjectRepository, store domain.MediaStore, logger *slog.Logger) *UploadJob {
	return &UploadJob{repo: repo, store: store, logger: logger}
}

// Execute stores the uploaded file and records it as the project's video.
func (j *UploadJob) Execute(ctx context.Context, in UploadInput, e *jobs.Emitter) error {
	logger := j.logger.With("jobID", e.JobID(), "projectID", in.ProjectID)
	e.Progress(0, "Processing video")

	project, err := j.repo.FindProjectByPublicID(ctx, in.ProjectID)
	if err != nil {
		return failLookup(e, in.ProjectID, err)
	}
	e.Progress(10, "Project found")

	asset, err := j.store.Upload(ctx, in.FileName, bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return e.Fail(domain.KindMediaStoreFailed, "Failed to upload video to the media store", err)
	}
	e.Progress(70, "Video uploaded to the media store")

	video := domain.NewVideo(in.FileName, asset)
	if err := j.repo.SaveVideo(ctx, video); err != nil {
		discardAsset(j.store, asset.PublicID, logger)
		return e.Fail(domain.KindDatabaseError, "Failed to save video", err)
	}
	e.Progress(90, "Video saved")

	project.Video = video
	if err := j.repo.SaveProject(ctx, project); err != nil {
		discardAsset(j.store, asset.PublicID, logger)
		return e.Fail(domain.KindDatabaseError, "Failed to link video to project", err)
	}

	logger.Info("Video uploaded", "videoID", video.ID, "publicID", video.PublicID)
	e.Complete(video, "Video processed successfully")
	return nil
}

// failLookup reports a failed project lookup with the matching kind.
func failLookup(e *jobs.Emitter, projectID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return e.Fail(domain.KindProjectNotFound, "Project not found: "+projectID, nil)
	}
	return e.Fail(domain.KindDatabaseError, "Failed to load project", err)
}
