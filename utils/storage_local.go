package utils

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage writes objects below a directory served at urlPrefix.
type LocalStorage struct {
	dir       string
	urlPrefix string
}

var _ ObjectStorage = (*LocalStorage)(nil)

func NewLocalStorage(dir string, urlPrefix string) *LocalStorage {
	return &LocalStorage{dir: dir, urlPrefix: urlPrefix}
}

func (s *LocalStorage) Dir() string {
	return s.dir
}

func (s *LocalStorage) Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	if !ValidObjectKey(objectKey) {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	path := filepath.Join(s.dir, filepath.FromSlash(objectKey))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return s.urlPrefix + "/" + objectKey, nil
}

func (s *LocalStorage) Delete(ctx context.Context, objectKey string) error {
	if !ValidObjectKey(objectKey) {
		return fmt.Errorf("invalid object key %q", objectKey)
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(objectKey)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
