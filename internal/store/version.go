package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/labweave/labweave/internal/models"
)

// documentExists distinguishes a missing document from a missing version.
func documentExists(ctx context.Context, tx pgx.Tx, documentID string) (bool, error) {
	var exists bool

	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, documentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking document existence: %w", err)
	}

	return exists, nil
}

// GetVersion returns one version of a document.
func (s *DocumentStore) GetVersion(ctx context.Context, documentID string, number int) (*models.Version, error) {
	if !isDocumentID(documentID) {
		return nil, models.ErrDocumentNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginReadTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting version: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	row := tx.QueryRow(ctx, `SELECT `+versionColumns+` FROM document_versions
		WHERE document_id = $1 AND version_number = $2`, documentID, number)

	v, err := scanVersion(row.Scan)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("scanning version: %w", err)
		}

		exists, existsErr := documentExists(ctx, tx, documentID)
		if existsErr != nil {
			return nil, existsErr
		}

		if !exists {
			return nil, models.ErrDocumentNotFound
		}

		return nil, models.ErrVersionNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing get version: %w", err)
	}

	return v, nil
}

// ListVersions returns the version chain in ascending order.
func (s *DocumentStore) ListVersions(ctx context.Context, documentID string) ([]models.Version, error) {
	if !isDocumentID(documentID) {
		return nil, models.ErrDocumentNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `SELECT `+versionColumns+` FROM document_versions
		WHERE document_id = $1
		ORDER BY version_number ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	versions, err := collectVersions(rows)
	if err != nil {
		return nil, err
	}

	// A document always has at least one version.
	if len(versions) == 0 {
		return nil, models.ErrDocumentNotFound
	}

	return versions, nil
}

// HashReferenced reports whether any version points at hash.
func (s *DocumentStore) HashReferenced(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var referenced bool

	err := s.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM document_versions WHERE content_hash = $1)`, hash).Scan(&referenced)
	if err != nil {
		return false, fmt.Errorf("checking content references: %w", err)
	}

	return referenced, nil
}
