package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/jobs"
	"github.com/dontdude/vedit/internal/platform/repository"
	"github.com/dontdude/vedit/internal/worker"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recorder collects published events and signals terminal ones.
type recorder struct {
	mu     sync.Mutex
	events map[string][]domain.Event
	done   map[string]chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		events: make(map[string][]domain.Event),
		done:   make(map[string]chan struct{}),
	}
}

func (r *recorder) doneCh(jobID string) chan struct{} {
	ch, ok := r.done[jobID]
	if !ok {
		ch = make(chan struct{})
		r.done[jobID] = ch
	}
	return ch
}

func (r *recorder) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.JobID] = append(r.events[e.JobID], e)
	if e.Terminal() {
		close(r.doneCh(e.JobID))
	}
	return nil
}

// run submits job through a real runner and returns all its events.
func run[In any](t *testing.T, job jobs.Job[In], in In) []domain.Event {
	t.Helper()
	rec := newRecorder()
	runner := jobs.NewRunner(worker.NewPool(0), rec, jobs.WithLogger(discardLogger))
	defer runner.Shutdown(context.Background())

	id, err := jobs.Submit(runner, "test", job, in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rec.mu.Lock()
	ch := rec.doneCh(id)
	rec.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal event")
	}

	// Wait for the job goroutine to return so deferred cleanup has run.
	if err := runner.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	events := rec.events[id]

	terminals := 0
	for i, e := range events {
		if e.Terminal() {
			terminals++
			if i != len(events)-1 {
				t.Fatalf("event after terminal: %+v", events)
			}
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want 1", terminals)
	}
	return events
}

func progressValues(events []domain.Event) []int {
	var out []int
	for _, e := range events {
		if e.Type == domain.EventProgress {
			out = append(out, e.Progress)
		}
	}
	return out
}

func terminal(events []domain.Event) domain.Event {
	return events[len(events)-1]
}

// memStore is an in-memory media store addressed by mem://videos/<key>.
type memStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploads     int
	deleted     []string
	uploadErr   error
	downloadErr error
	// opened records files the job handed to Download.
	opened []string
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) put(key string, data []byte) string {
	s.objects[key] = data
	return "mem://videos/" + key
}

func (s *memStore) Upload(_ context.Context, name string, body io.Reader, size int64) (domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return domain.Asset{}, s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.Asset{}, err
	}
	if int64(len(data)) != size {
		return domain.Asset{}, fmt.Errorf("size %d does not match body %d", size, len(data))
	}
	s.uploads++
	key := fmt.Sprintf("video_editor/%d-%s", s.uploads, name)
	url := s.put(key, data)
	return domain.Asset{
		PublicID:     key,
		URL:          url,
		SecureURL:    url + "?signed",
		ResourceType: "video",
		Format:       "mp4",
		Bytes:        size,
	}, nil
}

func (s *memStore) Download(_ context.Context, url string, dst io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := dst.(interface{ Name() string }); ok {
		s.opened = append(s.opened, f.Name())
	}
	if s.downloadErr != nil {
		return s.downloadErr
	}
	data, ok := s.objects[strings.TrimPrefix(url, "mem://videos/")]
	if !ok {
		return errors.New("object not found")
	}
	_, err := dst.Write(data)
	return err
}

func (s *memStore) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, publicID)
	s.deleted = append(s.deleted, publicID)
	return nil
}

// fakeTranscoder "burns" by concatenating video and subtitles into output.
type fakeTranscoder struct {
	mu    sync.Mutex
	err   error
	calls [][3]string
	sub   []byte
}

func (f *fakeTranscoder) BurnSubtitles(_ context.Context, videoPath, subtitlePath, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [3]string{videoPath, subtitlePath, outputPath})

	video, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	sub, err := os.ReadFile(subtitlePath)
	if err != nil {
		return err
	}
	f.sub = sub

	// Like ffmpeg, leave a partial output behind before failing.
	if err := os.WriteFile(outputPath, append(video, sub...), 0o600); err != nil {
		return err
	}
	return f.err
}

func (f *fakeTranscoder) Check(context.Context) error { return nil }

// flakyRepo wraps a repository, fails calls on demand and counts the videos
// it stored.
type flakyRepo struct {
	*repository.Memory
	saveVideoErr   error
	saveProjectErr error
	findErr        error
	videosSaved    int
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{Memory: repository.NewMemory()}
}

func (r *flakyRepo) FindProjectByPublicID(ctx context.Context, id string) (*domain.Project, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.Memory.FindProjectByPublicID(ctx, id)
}

func (r *flakyRepo) SaveVideo(ctx context.Context, v *domain.Video) error {
	if r.saveVideoErr != nil {
		return r.saveVideoErr
	}
	if err := r.Memory.SaveVideo(ctx, v); err != nil {
		return err
	}
	r.videosSaved++
	return nil
}

func (r *flakyRepo) SaveProject(ctx context.Context, p *domain.Project) error {
	if r.saveProjectErr != nil {
		return r.saveProjectErr
	}
	return r.Memory.SaveProject(ctx, p)
}

// seedProject stores a project, optionally with a video already in store.
func seedProject(t *testing.T, repo domain.ProjectRepository, store *memStore, id string, withVideo bool) {
	t.Helper()
	p := &domain.Project{PublicID: id, Name: "Demo"}
	if withVideo {
		url := store.put("video_editor/original.mp4", []byte("VIDEO"))
		v := &domain.Video{PublicID: "video_editor/original.mp4", Title: "original.mp4", URL: url, SecureURL: url}
		if err := repo.SaveVideo(context.Background(), v); err != nil {
			t.Fatalf("SaveVideo: %v", err)
		}
		p.Video = v
	}
	if err := repo.SaveProject(context.Background(), p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("temporary files left behind: %v", names)
	}
}

func assertGone(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s still exists (stat err = %v)", p, err)
		}
	}
}
