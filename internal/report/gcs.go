package report

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// GCSUploader writes report objects to a Cloud Storage bucket. It assumes
// Application Default Credentials are configured.
type GCSUploader struct {
	bucket string
}

// NewGCSUploader creates an uploader targeting the given bucket.
func NewGCSUploader(bucket string) *GCSUploader {
	return &GCSUploader{bucket: bucket}
}

// Upload implements the Uploader interface.
func (u *GCSUploader) Upload(ctx context.Context, objectName string, data []byte) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Upload: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Upload: writing object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize upload of %s: %w", objectName, err)
	}
	return nil
}

var _ Uploader = (*GCSUploader)(nil)
