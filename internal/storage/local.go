package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"thoth/internal/utils"

	"go.uber.org/zap"
)

// LocalUploader stores files on disk; the engine serves basePath under baseURL.
type LocalUploader struct {
	basePath string
	baseURL  string
}

func NewLocalUploader(basePath, baseURL string) (*LocalUploader, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalUploader{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalUploader) Root() string {
	return s.basePath
}

func (s *LocalUploader) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(objectPath))
	rel, err := filepath.Rel(s.basePath, fullPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", utils.NewAppError(utils.ErrInvalidInput, "invalid object path: "+objectPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, contextReader{ctx: ctx, r: r}); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	utils.Logger.Debug("file stored", zap.String("path", fullPath), zap.Int64("size", size))
	return publicURL(s.baseURL, filepath.ToSlash(rel)), nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
