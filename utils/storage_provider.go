package utils

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
)

// ObjectStorage stores uploaded blobs and returns a URL clients can fetch.
type ObjectStorage interface {
	Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, objectKey string) error
}

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderLocal
	}
	return provider
}

// NewObjectStorage builds the storage selected by STORAGE_PROVIDER.
func NewObjectStorage(ctx context.Context) (ObjectStorage, error) {
	switch p := GetStorageProvider(); p {
	case StorageProviderGCS:
		return NewGCSStorage(ctx)
	case StorageProviderLocal:
		dir := os.Getenv("UPLOAD_DIR")
		if dir == "" {
			dir = "uploads"
		}
		return NewLocalStorage(dir, "/uploads"), nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_PROVIDER %q", p)
	}
}
