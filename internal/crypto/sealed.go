package crypto

import (
	"context"
	"errors"
	"fmt"

	"github.com/labweave/labweave/internal/blob"
)

// Compile-time check: *SealedBackend must satisfy blob.Backend.
var _ blob.Backend = (*SealedBackend)(nil)

// SealedBackend encrypts objects before they reach an inner blob.Backend.
// Sizes it reports are plaintext sizes.
type SealedBackend struct {
	inner  blob.Backend
	sealer *Sealer
}

// NewSealedBackend wraps inner so every object is sealed with sealer.
func NewSealedBackend(inner blob.Backend, sealer *Sealer) *SealedBackend {
	return &SealedBackend{inner: inner, sealer: sealer}
}

func plainSize(n int64) int64 {
	if n < Overhead {
		return 0
	}

	return n - Overhead
}

// Write seals data with key as additional data and stores it.
func (b *SealedBackend) Write(ctx context.Context, key string, data []byte) (int64, error) {
	sealed, err := b.sealer.Seal(ctx, key, data)
	if err != nil {
		return 0, err
	}

	n, err := b.inner.Write(ctx, key, sealed)
	if err != nil {
		return 0, err
	}

	return plainSize(n), nil
}

// Read opens the stored object. An object that fails authentication is
// reported as blob.ErrCorrupt.
func (b *SealedBackend) Read(ctx context.Context, key string) ([]byte, error) {
	sealed, err := b.inner.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	data, err := b.sealer.Open(ctx, key, sealed)
	if err != nil {
		if errors.Is(err, ErrOpen) {
			return nil, fmt.Errorf("opening %s: %w: %w", key, blob.ErrCorrupt, err)
		}

		return nil, err
	}

	return data, nil
}

func (b *SealedBackend) Size(ctx context.Context, key string) (int64, error) {
	n, err := b.inner.Size(ctx, key)
	if err != nil {
		return 0, err
	}

	return plainSize(n), nil
}

func (b *SealedBackend) Delete(ctx context.Context, key string) error {
	return b.inner.Delete(ctx, key)
}

func (b *SealedBackend) Walk(ctx context.Context, fn func(key string, size int64) error) error {
	return b.inner.Walk(ctx, func(key string, size int64) error {
		return fn(key, plainSize(size))
	})
}

func (b *SealedBackend) Close() error {
	return b.inner.Close()
}
