package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/dontdude/vedit/internal/domain"
)

func TestBurnArgsAreDiscrete(t *testing.T) {
	args := BurnArgs(DefaultOptions(), "/tmp/job/in.mp4", "/tmp/job/sub.ass", "/tmp/job/out.mp4")

	if args[len(args)-1] != "/tmp/job/out.mp4" {
		t.Fatalf("last arg = %q, want output path", args[len(args)-1])
	}
	i := slices.Index(args, "-i")
	if i < 0 || args[i+1] != "/tmp/job/in.mp4" {
		t.Fatalf("input not passed after -i: %v", args)
	}
	vf := slices.Index(args, "-vf")
	if vf < 0 || args[vf+1] != "ass=/tmp/job/sub.ass" {
		t.Fatalf("filter = %v", args)
	}
	if !slices.Contains(args, "libx264") || !slices.Contains(args, "+faststart") {
		t.Fatalf("encoder settings missing: %v", args)
	}
}

func TestSubtitleFilter(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/tmp/a/sub.ass", "ass=/tmp/a/sub.ass"},
		{"/tmp/a/sub.srt", "subtitles=/tmp/a/sub.srt"},
		{"/tmp/a/SUB.ASS", "ass=/tmp/a/SUB.ASS"},
		{"/tmp/it's,odd/s.srt", `subtitles=/tmp/it\\\'s\,odd/s.srt`},
		{"/tmp/x:y/s.ass", `ass=/tmp/x\\:y/s.ass`},
	}
	for _, tt := range tests {
		if got := SubtitleFilter(tt.path); got != tt.want {
			t.Errorf("SubtitleFilter(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("hello "))
	_, _ = b.Write([]byte("world"))
	if got := b.String(); got != "...lo world" {
		t.Fatalf("String() = %q", got)
	}

	b = newTailBuffer(4)
	_, _ = b.Write([]byte("abcdefgh"))
	if got := b.String(); got != "...efgh" {
		t.Fatalf("String() = %q", got)
	}
}

// fakeBinary writes an executable shell script standing in for ffmpeg.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestExecCapturesFailureOutput(t *testing.T) {
	bin := fakeBinary(t, "echo 'Invalid data found when processing input' >&2\nexit 3\n")
	err := NewExec(bin, DefaultOptions()).BurnSubtitles(context.Background(), "in.mp4", "sub.ass", "out.mp4")

	var te *domain.TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TranscodeError", err)
	}
	if te.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", te.ExitCode)
	}
	if !strings.Contains(te.Output, "Invalid data found") {
		t.Fatalf("output = %q", te.Output)
	}
	if !strings.Contains(te.Error(), "Invalid data found") {
		t.Fatalf("Error() = %q", te.Error())
	}
}

func TestExecSuccess(t *testing.T) {
	// The fake writes its last argument, like ffmpeg writes the output file.
	bin := fakeBinary(t, "for a; do last=$a; done\necho burned > \"$last\"\n")
	out := filepath.Join(t.TempDir(), "out.mp4")

	if err := NewExec(bin, DefaultOptions()).BurnSubtitles(context.Background(), "in.mp4", "sub.ass", out); err != nil {
		t.Fatalf("BurnSubtitles: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output not written: %v", err)
	}
}

func TestExecDrainsLargeOutput(t *testing.T) {
	// Far more than a pipe buffer; the process must still exit.
	bin := fakeBinary(t, "i=0\nwhile [ $i -lt 20000 ]; do echo 'frame=   1 fps=0.0 q=0.0 size=0kB time=00:00:00.00' >&2; i=$((i+1)); done\nexit 1\n")
	err := NewExec(bin, DefaultOptions()).Check(context.Background())

	var te *domain.TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TranscodeError", err)
	}
	if len(te.Output) > maxCapturedOutput+3 {
		t.Fatalf("captured %d bytes, want at most %d", len(te.Output), maxCapturedOutput+3)
	}
}

func TestExecMissingBinary(t *testing.T) {
	err := NewExec(filepath.Join(t.TempDir(), "missing"), DefaultOptions()).Check(context.Background())
	var te *domain.TranscodeError
	if !errors.As(err, &te) || te.ExitCode != -1 {
		t.Fatalf("err = %v, want TranscodeError with exit -1", err)
	}
}
