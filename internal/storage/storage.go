// Package storage uploads post attachments to object storage and returns
// their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"thoth/internal/config"
)

// Uploader writes bytes under objectPath and returns a publicly fetchable URL.
type Uploader interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error)
}

// New builds the uploader selected by cfg.Provider.
func New(ctx context.Context, cfg *config.StorageConfig) (Uploader, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalUploader(cfg.LocalPath, cfg.PublicBaseURL)
	case "gcs":
		return NewGCSUploader(ctx, cfg.GCSProjectID, cfg.GCSBucket, cfg.GCSCredentialsFile)
	case "s3":
		return NewS3Uploader(cfg.S3Region, cfg.S3Bucket)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ObjectPath builds the key an attachment is stored under:
// posts/<userID>/<uploadID>/<name>. The name is reduced to its base.
func ObjectPath(userID, uploadID, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return path.Join("posts", userID, uploadID, base)
}

// publicURL joins base and objectPath, escaping each path segment so names
// like "100%.png" or "a#b.png" stay part of the path.
func publicURL(base, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
