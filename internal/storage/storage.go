// Package storage keeps fitting artifacts and hands out direct-upload URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"bogofit/internal/infra"
)

// ErrNotConfigured is returned when no presigning backend is available.
var ErrNotConfigured = errors.New("storage: object storage is not configured")

// PresignedUpload is a signed PUT target plus the URL the object will be
// served from once uploaded.
type PresignedUpload struct {
	Key         string    `json:"key"`
	UploadURL   string    `json:"uploadUrl"`
	PublicURL   string    `json:"publicUrl"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Presigner issues direct-upload URLs.
type Presigner interface {
	PresignUpload(ctx context.Context, key, contentType string) (PresignedUpload, error)
}

// ObjectStore persists bytes and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// ExtensionFor returns the file extension used for contentType, or "" when
// the type is not one the service stores.
func ExtensionFor(contentType string) string {
	return extensions[strings.ToLower(strings.TrimSpace(contentType))]
}

// NewKey builds a dated, collision-free object key such as
// uploads/2026/10/19/<uuid>.png.
func NewKey(prefix, contentType string, now time.Time) (string, error) {
	ext := ExtensionFor(contentType)
	if ext == "" {
		return "", fmt.Errorf("storage: unsupported content type %q", contentType)
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return fmt.Sprintf("%s/%s/%s%s", prefix, now.UTC().Format("2006/01/02"), uuid.NewString(), ext), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

// FromConfig selects the artifact backend: the S3 bucket when credentials
// are configured, otherwise the local FileStore. The presigner is nil for the
// local backend.
func FromConfig(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (ObjectStore, Presigner, error) {
	if cfg.S3Enabled() {
		s3Store, err := NewS3Store(ctx, S3ConfigFrom(cfg), logger)
		if err != nil {
			return nil, nil, err
		}
		return s3Store, s3Store, nil
	}
	fileStore, err := NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return fileStore, nil, nil
}
