// Package storage defines the FileStore interface used to persist
// arrangement outputs. A run writes its files under its run identifier, so
// the same code can target a local directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidPath is returned for empty, absolute or escaping paths.
var ErrInvalidPath = errors.New("storage: invalid path")

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating it.
	// The caller must close the returned WriteCloser to flush data.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Locator is implemented by stores that can name a stored file for humans,
// e.g. "file:///out/run/tune.mid" or "s3://bucket/run/tune.mid".
type Locator interface {
	URI(path string) string
}

// URI returns the location of p in fs, or p itself when fs is not a
// Locator.
func URI(fs FileStore, p string) string {
	if l, ok := fs.(Locator); ok {
		return l.URI(p)
	}
	return p
}

// CleanPath normalizes a storage path and rejects paths that are empty,
// absolute or climb above the store root.
func CleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}

// Save writes one file with fill. The file is removed again when fill or
// the final close fails, so readers never see a partial file.
func Save(ctx context.Context, fs FileStore, p string, fill func(io.Writer) error) error {
	w, err := fs.Write(ctx, p)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", p, err)
	}
	if err := fill(w); err != nil {
		w.Close()
		fs.Delete(ctx, p)
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		fs.Delete(ctx, p)
		return fmt.Errorf("storage: close %s: %w", p, err)
	}
	return nil
}
