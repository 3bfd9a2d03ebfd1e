package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labweave/labweave/internal/models"
)

// documentColumns lists the columns selected for document queries.
const documentColumns = `id, title, description, document_type, project_id,
	experiment_id, tags, metadata, current_version, revision, created_by,
	created_at, updated_at`

// versionColumns lists the columns selected for version queries.
const versionColumns = `document_id, version_number, content_hash, filename,
	size, mime_type, comment, restored_from, created_by, created_at`

// nodeColumns lists the columns selected for node queries.
const nodeColumns = `id, type, label, properties, created_at, updated_at`

// edgeColumns lists the columns selected for edge queries.
const edgeColumns = `source, target, relation, properties, created_at, updated_at`

// scanDocument scans a single row into a models.Document.
func scanDocument(scan func(dest ...any) error) (*models.Document, error) {
	var d models.Document
	var id uuid.UUID
	var meta []byte

	err := scan(
		&id,
		&d.Title,
		&d.Description,
		&d.DocumentType,
		&d.ProjectID,
		&d.ExperimentID,
		&d.Tags,
		&meta,
		&d.CurrentVersion,
		&d.Revision,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.ID = id.String()

	if err := json.Unmarshal(meta, &d.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling document metadata: %w", err)
	}

	return &d, nil
}

// scanVersion scans a single row into a models.Version.
func scanVersion(scan func(dest ...any) error) (*models.Version, error) {
	var v models.Version
	var docID uuid.UUID

	err := scan(
		&docID,
		&v.Number,
		&v.ContentHash,
		&v.Filename,
		&v.Size,
		&v.MimeType,
		&v.Comment,
		&v.RestoredFrom,
		&v.CreatedBy,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.DocumentID = docID.String()

	return &v, nil
}

// scanNode scans a single row into a models.Node.
func scanNode(scan func(dest ...any) error) (*models.Node, error) {
	var n models.Node
	var props []byte

	if err := scan(&n.ID, &n.Type, &n.Label, &props, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(props, &n.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling node properties: %w", err)
	}

	return &n, nil
}

// scanEdge scans a single row into a models.Edge.
func scanEdge(scan func(dest ...any) error) (*models.Edge, error) {
	var e models.Edge
	var props []byte

	if err := scan(&e.Source, &e.Target, &e.Relation, &props, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(props, &e.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling edge properties: %w", err)
	}

	return &e, nil
}

// collectDocuments scans all rows into a document slice.
func collectDocuments(rows pgx.Rows) ([]models.Document, error) {
	docs := make([]models.Document, 0, 16)

	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}

		docs = append(docs, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}

	return docs, nil
}

// collectVersions scans all rows into a version slice.
func collectVersions(rows pgx.Rows) ([]models.Version, error) {
	versions := make([]models.Version, 0, 8)

	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}

		versions = append(versions, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version rows: %w", err)
	}

	return versions, nil
}

// collectEdges scans all rows into an edge slice.
func collectEdges(rows pgx.Rows) ([]models.Edge, error) {
	edges := make([]models.Edge, 0, 16)

	for rows.Next() {
		e, err := scanEdge(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning edge row: %w", err)
		}

		edges = append(edges, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edge rows: %w", err)
	}

	return edges, nil
}

// collectNodes scans all rows into a node slice.
func collectNodes(rows pgx.Rows) ([]models.Node, error) {
	nodes := make([]models.Node, 0, 16)

	for rows.Next() {
		n, err := scanNode(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}

		nodes = append(nodes, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating node rows: %w", err)
	}

	return nodes, nil
}
