package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalStore implements BlobStore on the local filesystem, for
// development and tests.
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalStore creates a filesystem-backed blob store rooted at baseDir.
func NewLocalStore(baseDir string, logger *zap.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{baseDir: abs, logger: logger}, nil
}

// Put writes document bytes under a fresh key inside the base directory.
func (s *LocalStore) Put(ctx context.Context, data []byte, originalName, mimeType, folder string) (*StoredObject, error) {
	key := ObjectKey(originalName, folder)
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("write file: %w", err)
	}

	return &StoredObject{
		Key: key,
		URL: "file://" + fullPath,
	}, nil
}

// Get reads the stored bytes for a key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a key has been stored.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat file %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a stored file. Deleting a missing key is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file %s: %w", key, err)
	}
	return nil
}

// resolve maps a key to an absolute path and rejects traversal outside
// the base directory.
func (s *LocalStore) resolve(key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key: %s", key)
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes storage root: %s", key)
	}
	return fullPath, nil
}
