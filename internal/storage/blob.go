package storage

import "context"

// StoredObject identifies a stored document.
type StoredObject struct {
	Key string
	URL string
}

// BlobStore is the persistence boundary for uploaded document bytes.
// The pipeline only ever sees keys; whether bytes live on local disk or
// in object storage is a deployment decision.
type BlobStore interface {
	Put(ctx context.Context, data []byte, originalName, mimeType, folder string) (*StoredObject, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
