package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/jobs"
)

// SubtitleInput is a subtitle document to burn into a project's video.
// Format is "ass" (default) or "srt".
type SubtitleInput struct {
	ProjectID string
	Subtitles []byte
	Format    string
}

// SubtitleBurnJob downloads a project's video, burns subtitles into it with
// the transcoder, uploads the result and points the project at it.
type SubtitleBurnJob struct {
	repo       domain.ProjectRepository
	store      domain.MediaStore
	transcoder domain.Transcoder
	tempDir    string
	logger     *slog.Logger
}

var _ jobs.Job[SubtitleInput] = (*SubtitleBurnJob)(nil)

// NewSubtitleBurnJob creates the job. Scratch files go under tempDir
// ("" means the OS default).
func NewSubtitleBurnJob(repo domain.ProjectRepository, store domain.MediaStore, transcoder domain.Transcoder, tempDir string, logger *slog.Logger) *SubtitleBurnJob {
	return &SubtitleBurnJob{
		repo:       repo,
		store:      store,
		transcoder: transcoder,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// Execute burns the subtitles into the project's current video.
func (j *SubtitleBurnJob) Execute(ctx context.Context, in SubtitleInput, e *jobs.Emitter) error {
	logger := j.logger.With("jobID", e.JobID(), "projectID", in.ProjectID)
	e.Progress(0, "Starting")

	format, err := subtitleFormat(in.Format)
	if err != nil {
		return e.Fail(domain.KindSystemError, "Unsupported subtitle format", err)
	}
	if len(in.Subtitles) == 0 {
		return e.Fail(domain.KindSubtitlesEmpty, "Subtitle payload is empty", nil)
	}

	e.Progress(10, "Looking up project")
	project, err := j.repo.FindProjectByPublicID(ctx, in.ProjectID)
	if err != nil {
		return failLookup(e, in.ProjectID, err)
	}
	if project.Video == nil || project.Video.URL == "" {
		return e.Fail(domain.KindVideoNotFound, "Project has no video: "+in.ProjectID, nil)
	}

	sc, err := newScratch(j.tempDir, "vedit-burn-*")
	if err != nil {
		return e.Fail(domain.KindSystemError, "Failed to prepare temporary files", err)
	}
	defer sc.cleanup(logger)

	e.Progress(30, "Downloading video")
	videoPath, err := j.download(ctx, sc, project.Video)
	if err != nil {
		return e.Fail(domain.KindMediaStoreFailed, "Failed to download video from the media store", err)
	}

	e.Progress(50, "Writing subtitles")
	subtitlePath := sc.path("subtitles." + format)
	if err := os.WriteFile(subtitlePath, in.Subtitles, 0o600); err != nil {
		return e.Fail(domain.KindSystemError, "Failed to write subtitle file", err)
	}

	e.Progress(70, "Burning subtitles into video")
	outputPath := sc.path("output.mp4")
	if err := j.transcoder.BurnSubtitles(ctx, videoPath, subtitlePath, outputPath); err != nil {
		return e.Fail(domain.KindTranscodeFailed, "Failed to burn subtitles", err)
	}

	e.Progress(90, "Uploading new video")
	title := "subtitled-" + strings.TrimSuffix(project.Video.Title, path.Ext(project.Video.Title))
	asset, err := j.upload(ctx, outputPath, title)
	if err != nil {
		return e.Fail(domain.KindMediaStoreFailed, "Failed to upload video to the media store", err)
	}

	video := domain.NewVideo(title, asset)
	if err := j.repo.SaveVideo(ctx, video); err != nil {
		discardAsset(j.store, asset.PublicID, logger)
		return e.Fail(domain.KindDatabaseError, "Failed to save video", err)
	}
	project.Video = video
	if err := j.repo.SaveProject(ctx, project); err != nil {
		discardAsset(j.store, asset.PublicID, logger)
		return e.Fail(domain.KindDatabaseError, "Failed to update project", err)
	}

	logger.Info("Subtitles burned", "videoID", video.ID, "url", video.URL)
	e.Progress(100, "Done")
	e.Complete(video, "Video uploaded")
	return nil
}

// download fetches the video into the scratch directory.
func (j *SubtitleBurnJob) download(ctx context.Context, sc *scratch, video *domain.Video) (string, error) {
	ext := path.Ext(video.PublicID)
	if ext == "" {
		ext = ".mp4"
	}
	f, err := sc.create("input" + ext)
	if err != nil {
		return "", err
	}

	if err := j.store.Download(ctx, video.URL, f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// upload streams the rendered file to the media store.
func (j *SubtitleBurnJob) upload(ctx context.Context, filePath, title string) (domain.Asset, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return domain.Asset{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return domain.Asset{}, err
	}
	return j.store.Upload(ctx, title+".mp4", f, stat.Size())
}

func subtitleFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimPrefix(format, ".")); f {
	case "", "ass":
		return "ass", nil
	case "srt":
		return "srt", nil
	default:
		return "", fmt.Errorf("format %q: %w", format, errUnsupportedFormat)
	}
}

var errUnsupportedFormat = errors.New("want ass or srt")
