package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis stores project and video records as JSON values.
// Video ids come from an INCR counter.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ domain.ProjectRepository = (*Redis)(nil)

// NewRedis returns a repository namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) projectKey(publicID string) string {
	return r.prefix + ":project:" + publicID
}

func (r *Redis) videoKey(id int64) string {
	return r.prefix + ":video:" + strconv.FormatInt(id, 10)
}

func (r *Redis) FindProjectByPublicID(ctx context.Context, publicID string) (*domain.Project, error) {
	data, err := r.client.Get(ctx, r.projectKey(publicID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("project %s: %w", publicID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load project %s: %w", publicID, err)
	}

	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", publicID, err)
	}
	return &p, nil
}

func (r *Redis) SaveProject(ctx context.Context, project *domain.Project) error {
	if project.PublicID == "" {
		return errors.New("save project: public id is required")
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("encode project %s: %w", project.PublicID, err)
	}
	if err := r.client.Set(ctx, r.projectKey(project.PublicID), data, 0).Err(); err != nil {
		return fmt.Errorf("save project %s: %w", project.PublicID, err)
	}
	return nil
}

func (r *Redis) SaveVideo(ctx context.Context, video *domain.Video) error {
	if video.ID == 0 {
		id, err := r.client.Incr(ctx, r.prefix+":video:seq").Result()
		if err != nil {
			return fmt.Errorf("allocate video id: %w", err)
		}
		video.ID = id
	}

	data, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("encode video %d: %w", video.ID, err)
	}
	if err := r.client.Set(ctx, r.videoKey(video.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save video %d: %w", video.ID, err)
	}
	return nil
}
