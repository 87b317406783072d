// Package storage persists the raw bytes of uploaded documents.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/hrplatform/docingest/internal/domain"
)

// FileStore is implemented by LocalStore and S3Store.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ValidateKey rejects keys that are empty, absolute or escape the store root.
func ValidateKey(key string) error {
	if key == "" || strings.ContainsRune(key, '\\') || strings.HasPrefix(key, "/") {
		return domain.WithDetail(domain.ErrInvalidStorageKey, key)
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return domain.WithDetail(domain.ErrInvalidStorageKey, key)
	}
	return nil
}
