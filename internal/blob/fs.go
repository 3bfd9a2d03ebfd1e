package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FSBackend stores objects as files in a two-level sharded directory tree.
type FSBackend struct {
	root string
}

// NewFSBackend creates the root directory if needed.
func NewFSBackend(root string) (*FSBackend, error) {
	if root == "" {
		return nil, errors.New("blob root path is required")
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob root %s: %w", root, err)
	}

	return &FSBackend{root: root}, nil
}

func (b *FSBackend) path(key string) string {
	return filepath.Join(b.root, key[:2], key[2:4], key)
}

// Write writes to a temp file in the target directory, syncs it and renames it into place.
func (b *FSBackend) Write(ctx context.Context, key string, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	final := b.path(key)
	dir := filepath.Dir(final)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename.

	n, err := tmp.Write(data)
	if err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence.
		return int64(n), fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // sync error takes precedence.
		return int64(n), fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return int64(n), fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		return int64(n), fmt.Errorf("renaming blob into place: %w", err)
	}

	return int64(n), nil
}

// Read returns the file contents for key.
func (b *FSBackend) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNotExist
	}

	return data, err
}

// Size returns the stored size for key.
func (b *FSBackend) Size(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, errNotExist
	}

	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// Delete removes the file for key.
func (b *FSBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// Walk visits every regular file under the root. Temp files are reported too;
// Store filters out names that are not hashes.
func (b *FSBackend) Walk(ctx context.Context, fn func(key string, size int64) error) error {
	return filepath.WalkDir(b.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		return fn(d.Name(), info.Size())
	})
}

// Close is a no-op.
func (b *FSBackend) Close() error { return nil }
