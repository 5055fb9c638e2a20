package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/platform/ffmpeg"
)

// workDir is where the job's scratch directory is mounted in the container.
const workDir = "/work"

// maxCapturedOutput bounds how much container output is kept for diagnostics.
const maxCapturedOutput = 8 << 10

// Transcoder runs ffmpeg inside an ephemeral Docker container.
// The directory holding the input, subtitle and output files is bind-mounted
// so no media crosses the Docker API.
type Transcoder struct {
	cli      *client.Client
	image    string
	memoryMB int64
	opts     ffmpeg.Options
}

// Check if Transcoder implements domain.Transcoder
var _ domain.Transcoder = (*Transcoder)(nil)

// NewTranscoder initializes a Docker client and pings the daemon so a broken
// environment is reported at startup.
func NewTranscoder(ctx context.Context, imageName string, memoryMB int64, opts ffmpeg.Options) (*Transcoder, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to connect to docker daemon: %w", err)
	}

	slog.Info("Docker transcoder initialized", "image", imageName)
	return &Transcoder{
		cli:      cli,
		image:    imageName,
		memoryMB: memoryMB,
		opts:     opts,
	}, nil
}

// Close releases the Docker client.
func (t *Transcoder) Close() error {
	return t.cli.Close()
}

// BurnSubtitles runs the same argument vector as the local transcoder with
// paths rewritten to the mounted directory.
func (t *Transcoder) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	dir := filepath.Dir(videoPath)
	if filepath.Dir(subtitlePath) != dir || filepath.Dir(outputPath) != dir {
		return errors.New("docker transcoder: video, subtitle and output must share a directory")
	}

	args := ffmpeg.BurnArgs(t.opts,
		inContainer(videoPath),
		inContainer(subtitlePath),
		inContainer(outputPath),
	)
	return t.run(ctx, args, []string{dir + ":" + workDir})
}

// Check pulls the image and runs "ffmpeg -version" in it.
func (t *Transcoder) Check(ctx context.Context) error {
	return t.run(ctx, []string{"-version"}, nil)
}

func inContainer(p string) string {
	return path.Join(workDir, filepath.Base(p))
}

// run executes one container to completion and removes it.
func (t *Transcoder) run(ctx context.Context, args, binds []string) error {
	// 1. Pull Image
	slog.Debug("Pulling image", "image", t.image)
	reader, err := t.cli.ImagePull(ctx, t.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", t.image, err)
	}
	// Drain the response body to ensure the pull completes properly.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	// 2. Create Container with Limits
	resp, err := t.cli.ContainerCreate(ctx, &container.Config{
		Image: t.image,
		// The image's entrypoint is ffmpeg, so Cmd carries its arguments only.
		Cmd: args,
	}, &container.HostConfig{
		Binds: binds,
		Resources: container.Resources{
			Memory: t.memoryMB * 1024 * 1024,
		},
	}, nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	// Remove with a fresh context: ctx may be the reason we are leaving.
	defer func() {
		if err := t.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("Failed to remove container", "containerID", resp.ID, "error", err)
		}
	}()

	// 3. Start and wait
	if err := t.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := t.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return &domain.TranscodeError{Command: t.image, Args: args, ExitCode: -1, Err: err}
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	if exitCode == 0 {
		return nil
	}

	// 4. Collect diagnostics
	return &domain.TranscodeError{
		Command:  t.image,
		Args:     args,
		ExitCode: int(exitCode),
		Output:   t.logs(resp.ID),
	}
}

// logs returns the tail of the container's demultiplexed stdout and stderr.
func (t *Transcoder) logs(containerID string) string {
	rc, err := t.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return fmt.Sprintf("(logs unavailable: %v)", err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		slog.Warn("Failed to read container logs", "containerID", containerID, "error", err)
	}

	text := strings.TrimSpace(out.String())
	if len(text) > maxCapturedOutput {
		text = "..." + text[len(text)-maxCapturedOutput:]
	}
	return text
}
