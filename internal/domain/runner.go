package domain

import (
	"context"
	"fmt"
	"io"
)

// Transcoder burns a subtitle file into a video using an external media
// processor. All three paths live in the same directory.
type Transcoder interface {
	// BurnSubtitles blocks until the processor exits. A non-zero exit is
	// reported as *TranscodeError.
	BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error

	// Check verifies the processor is runnable.
	Check(ctx context.Context) error
}

// TranscodeError carries the diagnostics of a failed processor run.
type TranscodeError struct {
	Command  string
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *TranscodeError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Output)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// ProjectRepository is the persistence collaborator.
type ProjectRepository interface {
	// FindProjectByPublicID returns ErrNotFound (wrapped) when absent.
	FindProjectByPublicID(ctx context.Context, publicID string) (*Project, error)
	SaveProject(ctx context.Context, project *Project) error
	// SaveVideo assigns video.ID when it is zero.
	SaveVideo(ctx context.Context, video *Video) error
}

// MediaStore is the remote store holding binary video assets.
type MediaStore interface {
	Upload(ctx context.Context, name string, body io.Reader, size int64) (Asset, error)
	Download(ctx context.Context, url string, dst io.Writer) error
	Delete(ctx context.Context, publicID string) error
}

// TranscriptionRequest is sent to the external transcription service.
type TranscriptionRequest struct {
	URL       string `json:"url"`
	Language  string `json:"language"`
	Translate bool   `json:"translate,omitempty"`
}

// Transcriber proxies requests to the external transcription service.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) ([]Segment, error)
}
