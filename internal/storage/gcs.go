package storage

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSUploader struct {
	client     *storage.Client
	bucketName string
}

func NewGCSUploader(ctx context.Context, projectID, bucketName, credentialsFile string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if projectID != "" {
		opts = append(opts, option.WithQuotaProject(projectID))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSUploader{
		client:     client,
		bucketName: bucketName,
	}, nil
}

func (c *GCSUploader) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string) (string, error) {
	writer := c.client.Bucket(c.bucketName).Object(objectPath).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	// The object only exists once Close succeeds.
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", objectPath, err)
	}

	return publicURL("https://storage.googleapis.com/"+c.bucketName, objectPath), nil
}

func (c *GCSUploader) Close() error {
	return c.client.Close()
}
