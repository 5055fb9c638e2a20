package pipeline

import (
	"context"
	"log/slog"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/jobs"
)

// TranscriptionInput names the media to transcribe. When URL is empty the
// current video of ProjectID is used.
type TranscriptionInput struct {
	URL       string
	Language  string
	Translate bool
	ProjectID string
}

// TranscriptionJob proxies a request to the transcription service.
type TranscriptionJob struct {
	repo        domain.ProjectRepository
	transcriber domain.Transcriber
	logger      *slog.Logger
}

var _ jobs.Job[TranscriptionInput] = (*TranscriptionJob)(nil)

// NewTranscriptionJob creates the job.
func NewTranscriptionJob(repo domain.ProjectRepository, transcriber domain.Transcriber, logger *slog.Logger) *TranscriptionJob {
	return &TranscriptionJob{repo: repo, transcriber: transcriber, logger: logger}
}

// Execute forwards the request to the transcription service and reports its result.
func (j *TranscriptionJob) Execute(ctx context.Context, in TranscriptionInput, e *jobs.Emitter) error {
	e.Progress(0, "Initializing")

	url := in.URL
	if url == "" && in.ProjectID != "" {
		project, err := j.repo.FindProjectByPublicID(ctx, in.ProjectID)
		if err != nil {
			return failLookup(e, in.ProjectID, err)
		}
		if project.Video == nil {
			return e.Fail(domain.KindVideoNotFound, "Project has no video: "+in.ProjectID, nil)
		}
		url = project.Video.SecureURL
		if url == "" {
			url = project.Video.URL
		}
	}
	if url == "" {
		return e.Fail(domain.KindSystemError, "A media url or project id is required", nil)
	}

	lang := in.Language
	if lang == "" {
		lang = "en"
	}

	e.Progress(10, "Sending transcription request")
	segments, err := j.transcriber.Transcribe(ctx, domain.TranscriptionRequest{
		URL:       url,
		Language:  lang,
		Translate: in.Translate,
	})
	if err != nil {
		return e.Fail(domain.KindSystemError, "Transcription failed", err)
	}
	e.Progress(60, "Response received")

	if len(segments) == 0 {
		return e.Fail(domain.KindSubtitlesEmpty, "Subtitles are empty or invalid", nil)
	}

	j.logger.Info("Transcription received", "jobID", e.JobID(), "segments", len(segments))
	e.Progress(100, "Done")
	e.Complete(segments, "success")
	return nil
}
