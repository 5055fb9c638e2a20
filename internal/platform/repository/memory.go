package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dontdude/vedit/internal/domain"
)

// Memory is an in-process repository, used when the server runs with
// BROKER=memory. Records are copied on the way in and out so callers never
// share state with the store.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]domain.Project
	videos   map[int64]domain.Video
	nextID   int64
}

var _ domain.ProjectRepository = (*Memory)(nil)

// NewMemory creates an empty repository.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]domain.Project),
		videos:   make(map[int64]domain.Video),
	}
}

func (m *Memory) FindProjectByPublicID(_ context.Context, publicID string) (*domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[publicID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", publicID, domain.ErrNotFound)
	}
	return cloneProject(p), nil
}

func (m *Memory) SaveProject(_ context.Context, project *domain.Project) error {
	if project.PublicID == "" {
		return errors.New("save project: public id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	m.projects[project.PublicID] = *cloneProject(*project)
	return nil
}

func (m *Memory) SaveVideo(_ context.Context, video *domain.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if video.ID == 0 {
		m.nextID++
		video.ID = m.nextID
	}
	m.videos[video.ID] = *video
	return nil
}

func cloneProject(p domain.Project) *domain.Project {
	if p.Video != nil {
		v := *p.Video
		p.Video = &v
	}
	return &p
}
