package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// Project is the editing project a video belongs to.
// Only the fields the job pipelines read or write are modelled here.
type Project struct {
	PublicID    string    `json:"publicId"`
	Name        string    `json:"name"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	Video       *Video    `json:"video,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Video is a persisted reference to an asset in the remote media store.
type Video struct {
	ID           int64     `json:"id"`
	PublicID     string    `json:"publicId"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	SecureURL    string    `json:"secureUrl"`
	ResourceType string    `json:"resourceType"`
	Format       string    `json:"format"`
	Duration     float64   `json:"duration"`
	Bytes        int64     `json:"bytes"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Asset is what the remote media store reports after an upload.
type Asset struct {
	PublicID     string  `json:"publicId"`
	URL          string  `json:"url"`
	SecureURL    string  `json:"secureUrl"`
	ResourceType string  `json:"resourceType"`
	Format       string  `json:"format"`
	Duration     float64 `json:"duration"`
	Bytes        int64   `json:"bytes"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

// NewVideo builds an unsaved video record from an uploaded asset.
func NewVideo(title string, a Asset) *Video {
	return &Video{
		PublicID:     a.PublicID,
		Title:        title,
		URL:          a.URL,
		SecureURL:    a.SecureURL,
		ResourceType: a.ResourceType,
		Format:       a.Format,
		Duration:     a.Duration,
		Bytes:        a.Bytes,
		Width:        a.Width,
		Height:       a.Height,
		UploadedAt:   time.Now().UTC(),
	}
}

// Segment is one timed line returned by the transcription service.
type Segment struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}
