// Package imagestore archives uploaded leaf images in object storage so a
// prediction can link back to the photo it was made from.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	BackendNone = "none"
	BackendGCS  = "gcs"
	BackendS3   = "s3"
)

type Config struct {
	Backend string
	Bucket  string
	// PublicBaseURL replaces the provider URL when set (CDN, custom domain).
	PublicBaseURL string

	// GCS
	CredentialsFile string
	CredentialsJSON string

	// S3
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Uploader writes one object and knows its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	URL(key string) string
	Close() error
}

type Archiver struct {
	uploader Uploader
	newID    func() string
}

func NewArchiver(u Uploader) *Archiver {
	return &Archiver{uploader: u, newID: uuid.NewString}
}

// New returns the archiver for cfg.Backend, or nil for "none".
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendNone:
		return nil, nil
	case BackendGCS:
		u, err := NewGCSUploader(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewArchiver(u), nil
	case BackendS3:
		u, err := NewS3Uploader(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewArchiver(u), nil
	default:
		return nil, fmt.Errorf("unknown image store backend %q", cfg.Backend)
	}
}

// Archive stores data under users/{userID}/ and returns its URL.
func (a *Archiver) Archive(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	key := fmt.Sprintf("users/%s/%s%s", userID, a.newID(), extension(contentType))
	if err := a.uploader.Upload(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return a.uploader.URL(key), nil
}

func (a *Archiver) Close() error {
	return a.uploader.Close()
}

func extension(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ""
	}
}

func publicURL(base, fallback, key string) string {
	if base != "" {
		return strings.TrimRight(base, "/") + "/" + key
	}
	return fallback
}
