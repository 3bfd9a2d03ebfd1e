package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *DocumentStore must satisfy domain.LedgerStore.
var _ domain.LedgerStore = (*DocumentStore)(nil)

// DocumentStore persists documents and version chains.
type DocumentStore struct {
	Base
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(base Base) *DocumentStore {
	return &DocumentStore{Base: base}
}

// isDocumentID reports whether id can name a row. Other strings are simply
// unknown documents, not query errors.
func isDocumentID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}

	return tags
}

// CreateDocument inserts the document and its first version in one transaction.
func (s *DocumentStore) CreateDocument(
	ctx context.Context,
	doc models.Document,
	first models.VersionDraft,
) (*models.Document, *models.Version, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metaJSON, err := marshalBag(doc.Metadata)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("creating document: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	row := tx.QueryRow(ctx, `INSERT INTO documents
		(id, title, description, document_type, project_id, experiment_id, tags, metadata, current_version, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9)
		RETURNING `+documentColumns,
		doc.ID, doc.Title, doc.Description, doc.DocumentType, doc.ProjectID,
		doc.ExperimentID, nonNilTags(doc.Tags), metaJSON, doc.CreatedBy,
	)

	created, err := scanDocument(row.Scan)
	if err != nil {
		if pgErrCode(err) == codeUniqueViolation {
			return nil, nil, models.ErrDuplicateKey
		}

		return nil, nil, fmt.Errorf("scanning created document: %w", err)
	}

	v, err := insertVersion(ctx, tx, created.ID, 1, first)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing create document: %w", err)
	}

	return created, v, nil
}

func insertVersion(ctx context.Context, tx pgx.Tx, documentID string, number int, d models.VersionDraft) (*models.Version, error) {
	row := tx.QueryRow(ctx, `INSERT INTO document_versions
		(document_id, version_number, content_hash, filename, size, mime_type, comment, restored_from, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+versionColumns,
		documentID, number, d.ContentHash, d.Filename, d.Size, d.MimeType, d.Comment, d.RestoredFrom, d.CreatedBy,
	)

	v, err := scanVersion(row.Scan)
	if err != nil {
		if pgErrCode(err) == codeUniqueViolation {
			return nil, fmt.Errorf("version %d of %s: %w", number, documentID, models.ErrDuplicateKey)
		}

		return nil, fmt.Errorf("inserting version: %w", err)
	}

	return v, nil
}

// AppendVersion locks the document row, assigns the next version number and
// advances the current-version pointer.
func (s *DocumentStore) AppendVersion(
	ctx context.Context,
	documentID string,
	draft models.VersionDraft,
) (*models.Document, *models.Version, error) {
	if !isDocumentID(documentID) {
		return nil, nil, models.ErrDocumentNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("appending version: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var current int

	err = tx.QueryRow(ctx, `SELECT current_version FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, models.ErrDocumentNotFound
		}

		return nil, nil, fmt.Errorf("locking document: %w", err)
	}

	next := current + 1

	v, err := insertVersion(ctx, tx, documentID, next, draft)
	if err != nil {
		return nil, nil, err
	}

	row := tx.QueryRow(ctx, `UPDATE documents SET current_version = $2, revision = revision + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+documentColumns, documentID, next)

	doc, err := scanDocument(row.Scan)
	if err != nil {
		return nil, nil, fmt.Errorf("advancing current version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("committing append version: %w", err)
	}

	return doc, v, nil
}

// GetDocument returns a single document by ID.
func (s *DocumentStore) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	if !isDocumentID(documentID) {
		return nil, models.ErrDocumentNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID)

	doc, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDocumentNotFound
		}

		return nil, fmt.Errorf("getting document: %w", err)
	}

	return doc, nil
}

// buildDocumentListQuery constructs the filtered SELECT query and arguments for ListDocuments.
func buildDocumentListQuery(filter models.DocumentFilter, limit, offset int) (query string, args []any) {
	conds := make([]string, 0, 4)
	args = make([]any, 0, 6)

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ProjectID != "" {
		add("project_id = $%d", filter.ProjectID)
	}

	if filter.ExperimentID != "" {
		add("experiment_id = $%d", filter.ExperimentID)
	}

	if filter.DocumentType != "" {
		add("document_type = $%d", filter.DocumentType)
	}

	if filter.Tag != "" {
		add("$%d = ANY(tags)", filter.Tag)
	}

	query = "SELECT " + documentColumns + " FROM documents"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY created_at DESC, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit+1, offset)

	return query, args
}

// ListDocuments returns documents newest first with optional filters.
func (s *DocumentStore) ListDocuments(
	ctx context.Context,
	filter models.DocumentFilter,
	limit, offset int,
) ([]models.Document, bool, error) {
	limit = clampLimit(limit, 50)
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args := buildDocumentListQuery(filter, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	return docs, hasMore, nil
}

// UpdateDocument patches document metadata. Versions are untouched.
func (s *DocumentStore) UpdateDocument(
	ctx context.Context,
	documentID string,
	req models.UpdateDocumentRequest,
) (*models.Document, error) {
	if !isDocumentID(documentID) {
		return nil, models.ErrDocumentNotFound
	}

	if req.Empty() {
		return s.GetDocument(ctx, documentID)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	setClauses := make([]string, 0, 6)
	args := make([]any, 0, 6)

	set := func(col string, v any) {
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if req.Title != nil {
		set("title", *req.Title)
	}

	if req.Description != nil {
		set("description", *req.Description)
	}

	if req.DocumentType != nil {
		set("document_type", *req.DocumentType)
	}

	if req.Tags != nil {
		set("tags", req.Tags)
	}

	if req.Metadata != nil {
		metaJSON, err := marshalBag(req.Metadata)
		if err != nil {
			return nil, err
		}

		set("metadata", metaJSON)
	}

	args = append(args, documentID)
	query := "UPDATE documents SET " + strings.Join(setClauses, ", ") +
		fmt.Sprintf(", revision = revision + 1, updated_at = now() WHERE id = $%d RETURNING ", len(args)) + documentColumns

	doc, err := scanDocument(s.Pool.QueryRow(ctx, query, args...).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDocumentNotFound
		}

		return nil, fmt.Errorf("updating document: %w", err)
	}

	return doc, nil
}

// DeleteDocument removes a document and, by cascade, its version chain.
// Content bytes are left for garbage collection.
func (s *DocumentStore) DeleteDocument(ctx context.Context, documentID string) error {
	if !isDocumentID(documentID) {
		return models.ErrDocumentNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrDocumentNotFound
	}

	return nil
}
