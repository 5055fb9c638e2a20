package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dontdude/vedit/internal/domain"
)

// maxCapturedOutput bounds how much process output is kept for diagnostics.
const maxCapturedOutput = 8 << 10

// Options are the encoder settings used when burning subtitles.
type Options struct {
	Preset       string
	CRF          int
	AudioCodec   string
	AudioBitrate string
}

// DefaultOptions produces H.264/AAC output playable in browsers.
func DefaultOptions() Options {
	return Options{
		Preset:       "medium",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "128k",
	}
}

// BurnArgs returns the argument vector (without the binary) that burns
// subtitlePath into videoPath and writes outputPath.
// Paths are passed as discrete arguments, never through a shell.
func BurnArgs(opts Options, videoPath, subtitlePath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", videoPath,
		"-vf", SubtitleFilter(subtitlePath),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(opts.CRF),
		"-preset", opts.Preset,
		"-pix_fmt", "yuv420p",
		"-profile:v", "main",
		"-level", "4.0",
		"-movflags", "+faststart",
		"-c:a", opts.AudioCodec,
		"-b:a", opts.AudioBitrate,
		outputPath,
	}
}

// SubtitleFilter picks the ass filter for .ass files and the generic
// subtitles filter otherwise.
func SubtitleFilter(subtitlePath string) string {
	name := "subtitles"
	if strings.EqualFold(filepath.Ext(subtitlePath), ".ass") {
		name = "ass"
	}
	return name + "=" + escapeFilterPath(subtitlePath)
}

// escapeFilterPath escapes a path for use as a filter option value inside a
// filtergraph: once for the option parser and once for the graph parser.
func escapeFilterPath(path string) string {
	path = filepath.ToSlash(path)
	option := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(path)
	return strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
		`;`, `\;`,
	).Replace(option)
}

// Exec runs a local ffmpeg binary as a subprocess.
type Exec struct {
	path string
	opts Options
}

var _ domain.Transcoder = (*Exec)(nil)

// NewExec returns a transcoder invoking the binary at path.
func NewExec(path string, opts Options) *Exec {
	if path == "" {
		path = "ffmpeg"
	}
	return &Exec{path: path, opts: opts}
}

func (e *Exec) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	args := BurnArgs(e.opts, videoPath, subtitlePath, outputPath)
	slog.Debug("Executing ffmpeg", "path", e.path, "args", args)
	return e.run(ctx, args)
}

// Check runs "ffmpeg -version".
func (e *Exec) Check(ctx context.Context) error {
	return e.run(ctx, []string{"-version"})
}

// run blocks until the process exits. Stdout and stderr share one capped
// buffer that os/exec keeps draining, so a chatty process never stalls on a
// full pipe.
func (e *Exec) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, e.path, args...)
	out := newTailBuffer(maxCapturedOutput)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}

	return &domain.TranscodeError{
		Command:  e.path,
		Args:     args,
		ExitCode: exitCode,
		Output:   strings.TrimSpace(out.String()),
		Err:      err,
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.max {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.max:])
		t.truncated = true
		return n, nil
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
		t.truncated = true
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	if t.truncated {
		return "..." + t.buf.String()
	}
	return t.buf.String()
}
