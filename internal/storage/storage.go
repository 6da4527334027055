// README: Photo evidence storage boundary. The tow module only ever sees the
// returned URL; bytes stay out of the database.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PhotoStore persists an uploaded evidence photo and returns the reference
// URL recorded against the tow point.
type PhotoStore interface {
	Put(ctx context.Context, key string, r io.Reader) (url string, err error)
}

// Local writes photos under a base directory and serves them by file URL.
// The default wiring until an object store is configured.
type Local struct {
	basePath string
	baseURL  string
}

func NewLocal(basePath, baseURL string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &Local{basePath: basePath, baseURL: baseURL}, nil
}

func (l *Local) Put(_ context.Context, key string, r io.Reader) (string, error) {
	key = filepath.ToSlash(filepath.Clean(key))
	if key == "" || key == "." || strings.HasPrefix(key, "..") {
		return "", fmt.Errorf("invalid photo key %q", key)
	}
	path := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create photo file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}

	if l.baseURL != "" {
		return strings.TrimRight(l.baseURL, "/") + "/" + key, nil
	}
	return "file://" + path, nil
}
