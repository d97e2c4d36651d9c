package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"

	gcs "cloud.google.com/go/storage"
)

// GCSStorage implements BlobStorage on a Google Cloud Storage bucket.
type GCSStorage struct {
	bucket *gcs.BucketHandle
}

func NewGCSStorage(ctx context.Context, bucketName string) (*GCSStorage, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSStorage{bucket: client.Bucket(bucketName)}, nil
}

func (g *GCSStorage) Save(ctx context.Context, receiptID int64, contentType string, data []byte) (string, error) {
	ref := blobName(receiptID, contentType)
	w := g.bucket.Object(ref).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing blob: %w", err)
	}
	return ref, nil
}

func (g *GCSStorage) Get(ctx context.Context, ref string) ([]byte, error) {
	r, err := g.bucket.Object(ref).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}

func (g *GCSStorage) Delete(ctx context.Context, ref string) error {
	err := g.bucket.Object(ref).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}

// blobName derives the stored object name from the receipt id and content
// type, so re-uploads for the same receipt overwrite rather than accumulate.
func blobName(receiptID int64, contentType string) string {
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return fmt.Sprintf("receipt-%d%s", receiptID, ext)
}
