package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the S3-compatible bucket holding video assets.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// Folder prefixes every object key.
	Folder string
	// PublicBaseURL replaces the endpoint in public URLs, e.g. a CDN host.
	PublicBaseURL string
	// PresignExpiry is the lifetime of the secure (presigned) URL.
	PresignExpiry time.Duration
}

// Minio implements domain.MediaStore on an S3-compatible object store.
// An asset's public id is its object key.
type Minio struct {
	client  *minio.Client
	cfg     Config
	baseURL *url.URL
}

var _ domain.MediaStore = (*Minio)(nil)

// NewMinio connects to the store and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg Config) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	base := client.EndpointURL()
	if cfg.PublicBaseURL != "" {
		base, err = url.Parse(cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse public base url: %w", err)
		}
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("Created media bucket", "bucket", cfg.Bucket)
	}

	return &Minio{client: client, cfg: cfg, baseURL: base}, nil
}

// Upload stores body as a new object and describes the resulting asset.
// Media metadata the store cannot know (duration, dimensions) is left zero.
func (m *Minio) Upload(ctx context.Context, name string, body io.Reader, size int64) (domain.Asset, error) {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = ".mp4"
	}
	key := objectKey(m.cfg.Folder, uuid.New().String()+ext)

	info, err := m.client.PutObject(ctx, m.cfg.Bucket, key, body, size, minio.PutObjectOptions{
		ContentType: mimeTypeForContainer(strings.TrimPrefix(ext, ".")),
	})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("put object %s: %w", key, err)
	}

	secure, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, key, m.cfg.PresignExpiry, nil)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("presign object %s: %w", key, err)
	}

	return domain.Asset{
		PublicID:     key,
		URL:          publicURL(m.baseURL, m.cfg.Bucket, key),
		SecureURL:    secure.String(),
		ResourceType: "video",
		Format:       strings.TrimPrefix(ext, "."),
		Bytes:        info.Size,
	}, nil
}

// Download copies the object addressed by rawURL into dst.
// Both public and presigned URLs of this bucket are accepted.
func (m *Minio) Download(ctx context.Context, rawURL string, dst io.Writer) error {
	key, err := keyFromURL(m.cfg.Bucket, rawURL)
	if err != nil {
		return err
	}

	obj, err := m.client.GetObject(ctx, m.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	if _, err := io.Copy(dst, obj); err != nil {
		return fmt.Errorf("read object %s: %w", key, err)
	}
	return nil
}

// Delete removes the object with the given public id.
func (m *Minio) Delete(ctx context.Context, publicID string) error {
	if err := m.client.RemoveObject(ctx, m.cfg.Bucket, publicID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", publicID, err)
	}
	return nil
}

func objectKey(folder, name string) string {
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

func publicURL(base *url.URL, bucket, key string) string {
	u := *base
	u.Path = path.Join("/", u.Path, bucket, key)
	u.RawQuery = ""
	return u.String()
}

// keyFromURL extracts the object key from a path-style URL "/<bucket>/<key>".
func keyFromURL(bucket, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse media url: %w", err)
	}

	p := strings.TrimPrefix(u.Path, "/")
	idx := strings.Index(p, bucket+"/")
	if idx < 0 || (idx > 0 && p[idx-1] != '/') {
		return "", fmt.Errorf("media url %q is not in bucket %s", rawURL, bucket)
	}
	key := p[idx+len(bucket)+1:]
	if key == "" {
		return "", errors.New("media url has no object key")
	}
	return key, nil
}

func mimeTypeForContainer(container string) string {
	switch strings.ToLower(container) {
	case "mp4":
		return "video/mp4"
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	case "webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
