package blob

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
}

// GCSBackend stores objects in a GCS bucket under an optional prefix.
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSBackend creates a storage client. Without a credentials file the
// client falls back to application default credentials.
func NewGCSBackend(ctx context.Context, cfg GCSConfig) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	return &GCSBackend{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		prefix: cfg.Prefix,
	}, nil
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	return b.bucket.Object(b.prefix + key)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Write uploads data only if the object does not exist yet. The upload carries
// a CRC32C so GCS rejects bytes corrupted in transit.
func (b *GCSBackend) Write(ctx context.Context, key string, data []byte) (int64, error) {
	w := b.object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CRC32C = crc32.Checksum(data, castagnoli)
	w.SendCRC32C = true

	if _, err := w.Write(data); err != nil {
		w.Close() //nolint:errcheck // write error takes precedence.
		return 0, fmt.Errorf("gcs write: %w", err)
	}

	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return b.Size(ctx, key)
		}

		return 0, fmt.Errorf("gcs close: %w", err)
	}

	return w.Attrs().Size, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// Read downloads the object for key.
func (b *GCSBackend) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errNotExist
	}

	if err != nil {
		return nil, fmt.Errorf("gcs open: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read: %w", err)
	}

	return data, nil
}

// Size returns the object size for key.
func (b *GCSBackend) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := b.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, errNotExist
	}

	if err != nil {
		return 0, fmt.Errorf("gcs attrs: %w", err)
	}

	return attrs.Size, nil
}

// Delete removes the object for key.
func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	err := b.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete: %w", err)
	}

	return nil
}

// Walk lists objects under the prefix.
func (b *GCSBackend) Walk(ctx context.Context, fn func(key string, size int64) error) error {
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: b.prefix})

	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("gcs list: %w", err)
		}

		if err := fn(strings.TrimPrefix(attrs.Name, b.prefix), attrs.Size); err != nil {
			return err
		}
	}
}

// Close closes the storage client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
