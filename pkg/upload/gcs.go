package upload

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSUploader writes blobs to a Google Cloud Storage bucket and hands
// back the public object URL.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader creates an uploader for the named bucket.
func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

func (u *GCSUploader) Upload(ctx context.Context, data []byte, path, contentType string) (string, error) {
	w := u.client.Bucket(u.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("writing object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finishing object %s: %w", path, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, path), nil
}
