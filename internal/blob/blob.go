// Package blob provides content-addressable storage for document bytes.
//
// Objects are keyed by the hex SHA-256 of their content. Every read recomputes
// the digest before returning bytes, so silent corruption in a backend surfaces
// as models.ErrHashMismatch instead of wrong data.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
)

// sharedReadTimeout bounds a coalesced backend read.
const sharedReadTimeout = 2 * time.Minute

// errNotExist is returned by backends for a missing key.
var errNotExist = errors.New("object does not exist")

// ErrCorrupt is returned by a Backend whose stored object cannot be decoded.
var ErrCorrupt = errors.New("stored object is corrupt")

// Backend stores opaque objects by key. Keys passed in are always valid hashes.
type Backend interface {
	// Write stores data under key and returns the number of bytes persisted.
	Write(ctx context.Context, key string, data []byte) (int64, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Size(ctx context.Context, key string) (int64, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Walk(ctx context.Context, fn func(key string, size int64) error) error
	Close() error
}

// Ref identifies stored content.
type Ref struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Store verifies content on the way in and on the way out of a Backend.
type Store struct {
	backend Backend
	log     *logrus.Logger
	reads   singleflight.Group
}

// New creates a Store over backend.
func New(backend Backend, log *logrus.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether s looks like a hex SHA-256 digest.
func ValidHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}

	for i := range len(s) {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageUnavailable, err)
}

// Put stores data and returns its reference. Storing content that is already
// present does not write it again.
func (s *Store) Put(ctx context.Context, data []byte) (Ref, error) {
	ref := Ref{Hash: Hash(data), Size: int64(len(data))}

	existing, err := s.backend.Size(ctx, ref.Hash)

	switch {
	case err == nil:
		if existing != ref.Size {
			s.integrityFailure(ref.Hash, "stored size differs from content size", logrus.Fields{
				"stored_size":   existing,
				"expected_size": ref.Size,
			})

			return Ref{}, fmt.Errorf("content %s: stored size %d, expected %d: %w", ref.Hash, existing, ref.Size, models.ErrHashMismatch)
		}

		metrics.ContentDedupHits.Inc()

		return ref, nil
	case !errors.Is(err, errNotExist):
		return Ref{}, unavailable("checking content", err)
	}

	n, err := s.backend.Write(ctx, ref.Hash, data)
	if err != nil {
		return Ref{}, unavailable("writing content", err)
	}

	if n != ref.Size {
		if delErr := s.backend.Delete(ctx, ref.Hash); delErr != nil {
			s.log.WithError(delErr).WithField("hash", ref.Hash).Warn("removing truncated content")
		}

		return Ref{}, fmt.Errorf("writing content %s: truncated write (%d of %d bytes): %w", ref.Hash, n, ref.Size, models.ErrStorageUnavailable)
	}

	metrics.ContentBytesWritten.Add(float64(n))

	s.log.WithFields(logrus.Fields{
		"hash": ref.Hash,
		"size": ref.Size,
	}).Debug("blob.put")

	return ref, nil
}

// Get returns the content stored under hash after verifying its digest.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	if !ValidHash(hash) {
		return nil, models.Invalid("content_hash", "must be a hex SHA-256 digest")
	}

	// The shared read outlives any one caller; each caller stops waiting on
	// its own context.
	ch := s.reads.DoChan(hash, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()

		return s.read(readCtx, hash)
	})

	var res singleflight.Result

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		return nil, res.Err
	}

	data, _ := res.Val.([]byte) //nolint:errcheck // read always returns []byte.
	if res.Shared {
		return bytes.Clone(data), nil
	}

	return data, nil
}

// GetRef returns the content for ref, verifying both its length and digest.
func (s *Store) GetRef(ctx context.Context, ref Ref) ([]byte, error) {
	data, err := s.Get(ctx, ref.Hash)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) != ref.Size {
		s.integrityFailure(ref.Hash, "content length differs from recorded size", logrus.Fields{
			"stored_size":   len(data),
			"expected_size": ref.Size,
		})

		return nil, fmt.Errorf("content %s: length %d, expected %d: %w", ref.Hash, len(data), ref.Size, models.ErrHashMismatch)
	}

	return data, nil
}

func (s *Store) read(ctx context.Context, hash string) ([]byte, error) {
	data, err := s.backend.Read(ctx, hash)
	if err != nil {
		if errors.Is(err, errNotExist) {
			return nil, fmt.Errorf("content %s: %w", hash, models.ErrContentNotFound)
		}

		if errors.Is(err, ErrCorrupt) {
			s.integrityFailure(hash, "stored object failed to decode", logrus.Fields{"error": err.Error()})

			return nil, fmt.Errorf("content %s: %w", hash, models.ErrHashMismatch)
		}

		return nil, unavailable("reading content", err)
	}

	if actual := Hash(data); actual != hash {
		s.integrityFailure(hash, "content digest mismatch", logrus.Fields{
			"actual_hash": actual,
			"size":        len(data),
		})

		return nil, fmt.Errorf("content %s: %w", hash, models.ErrHashMismatch)
	}

	return data, nil
}

func (s *Store) integrityFailure(hash, msg string, fields logrus.Fields) {
	metrics.ContentIntegrityFailures.Inc()
	s.log.WithFields(fields).WithField("hash", hash).Error(msg)
}

// Exists reports whether content with hash is stored.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := s.backend.Size(ctx, hash)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, errNotExist) {
		return false, nil
	}

	return false, unavailable("checking content", err)
}

// Ping checks that the backend answers by probing the digest of empty content.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Exists(ctx, Hash(nil))
	return err
}

// Delete removes content. Callers must ensure nothing references it.
func (s *Store) Delete(ctx context.Context, hash string) error {
	if err := s.backend.Delete(ctx, hash); err != nil {
		return unavailable("deleting content", err)
	}

	return nil
}

// Walk calls fn for every stored object.
func (s *Store) Walk(ctx context.Context, fn func(Ref) error) error {
	err := s.backend.Walk(ctx, func(key string, size int64) error {
		if !ValidHash(key) {
			return nil
		}

		return fn(Ref{Hash: key, Size: size})
	})
	if err != nil {
		return fmt.Errorf("walking content: %w", err)
	}

	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
