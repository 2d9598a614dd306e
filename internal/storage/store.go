// Package storage persists generated images behind a small key/value contract.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Store keeps objects addressed by slash-separated keys.
type Store interface {
	// Put writes data under key and returns the canonical key.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Open streams a stored object. Missing keys return ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Name identifies the backend for logging.
	Name() string
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// Open builds the backend named by backend: "file" (rooted at dir), "s3" or
// "memory".
func Open(ctx context.Context, backend, dir string, s3cfg S3Config, log *slog.Logger) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dir)
	case "s3":
		return NewS3Store(ctx, s3cfg, log)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
