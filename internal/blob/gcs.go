package blob

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/storage"
)

// GCS writes through the Firebase app's default storage bucket credentials.
type GCS struct {
	Client *storage.Client
	Bucket string
}

func (w *GCS) Put(ctx context.Context, key string, body []byte, contentType string) error {
	bucket, err := w.Client.Bucket(w.Bucket)
	if err != nil {
		return fmt.Errorf("open bucket %s: %w", w.Bucket, err)
	}
	obj := bucket.Object(key).NewWriter(ctx)
	obj.ContentType = contentType
	if _, err := obj.Write(body); err != nil {
		_ = obj.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", w.Bucket, key, err)
	}
	if err := obj.Close(); err != nil {
		return fmt.Errorf("upload gs://%s/%s: %w", w.Bucket, key, err)
	}
	return nil
}

func (w *GCS) Location(key string) string {
	return "gs://" + w.Bucket + "/" + key
}
