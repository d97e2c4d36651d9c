package storage

import "context"

// BlobStorage holds original receipt media, keyed by receipt id. It is a
// separate store from the metadata database; a blob write failing after a
// successful metadata write is reported, not rolled back.
type BlobStorage interface {
	// Save stores data under the receipt's key and returns the stored
	// object's reference.
	Save(ctx context.Context, receiptID int64, contentType string, data []byte) (string, error)

	// Get retrieves a stored blob by reference.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes a stored blob. Missing blobs are not an error.
	Delete(ctx context.Context, ref string) error
}
