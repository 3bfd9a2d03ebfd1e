package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

// Graph query limits.
const (
	maxGraphNodeFetch = 1000 // caps nodes fetched in a single graph query
	edgePageSize      = 5000 // rows per EdgesOf page
)

// Compile-time check: *GraphStore must satisfy domain.GraphStore.
var _ domain.GraphStore = (*GraphStore)(nil)

// GraphStore persists graph nodes and edges.
type GraphStore struct {
	Base
}

// NewGraphStore creates a GraphStore with the given shared base.
func NewGraphStore(base Base) *GraphStore {
	return &GraphStore{Base: base}
}

// UpsertNode inserts a node or merges into the existing one. New properties
// win over stored ones; a placeholder upsert only fills in missing keys and
// never changes the label.
func (s *GraphStore) UpsertNode(ctx context.Context, n models.NodeUpsert) (*models.Node, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	propsJSON, err := marshalBag(n.Properties)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO kg_nodes (id, type, label, properties)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			label = CASE WHEN $5 THEN kg_nodes.label ELSE EXCLUDED.label END,
			properties = CASE WHEN $5
				THEN EXCLUDED.properties || kg_nodes.properties
				ELSE kg_nodes.properties || EXCLUDED.properties END,
			updated_at = now()
		RETURNING ` + nodeColumns

	node, err := scanNode(s.Pool.QueryRow(ctx, query, n.ID, n.Type, n.Label, propsJSON, n.Placeholder).Scan)
	if err != nil {
		return nil, fmt.Errorf("upserting node %s: %w", n.ID, err)
	}

	return node, nil
}

// UpsertEdge inserts an edge or merges properties into the existing one.
// Both endpoints must already exist.
func (s *GraphStore) UpsertEdge(ctx context.Context, e models.EdgeUpsert) (*models.Edge, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	propsJSON, err := marshalBag(e.Properties)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO kg_edges (source, target, relation, properties)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, target, relation) DO UPDATE SET
			properties = kg_edges.properties || EXCLUDED.properties,
			updated_at = now()
		RETURNING ` + edgeColumns

	edge, err := scanEdge(s.Pool.QueryRow(ctx, query, e.Source, e.Target, e.Relation, propsJSON).Scan)
	if err != nil {
		if pgErrCode(err) == codeForeignKeyViolation {
			return nil, fmt.Errorf("edge %s -[%s]-> %s: %w", e.Source, e.Relation, e.Target, models.ErrNodeNotFound)
		}

		return nil, fmt.Errorf("upserting edge: %w", err)
	}

	return edge, nil
}

// GetNode returns a single node by ID.
func (s *GraphStore) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	node, err := scanNode(s.Pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM kg_nodes WHERE id = $1`, nodeID).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNodeNotFound
		}

		return nil, fmt.Errorf("getting node: %w", err)
	}

	return node, nil
}

// GetNodes returns the existing nodes among nodeIDs, ordered by id.
func (s *GraphStore) GetNodes(ctx context.Context, nodeIDs []string) ([]models.Node, error) {
	if len(nodeIDs) == 0 {
		return []models.Node{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `SELECT `+nodeColumns+` FROM kg_nodes
		WHERE id = ANY($1)
		ORDER BY id
		LIMIT `+fmt.Sprintf("%d", maxGraphNodeFetch), nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// EdgesOf returns edges touching nodeIDs, ordered by (source, target, relation).
func (s *GraphStore) EdgesOf(
	ctx context.Context,
	nodeIDs []string,
	dir models.Direction,
	relation string,
) ([]models.Edge, error) {
	if len(nodeIDs) == 0 {
		return []models.Edge{}, nil
	}

	var where string

	switch dir {
	case models.DirectionOut:
		where = "source = ANY($1)"
	case models.DirectionIn:
		where = "target = ANY($1)"
	default:
		where = "(source = ANY($1) OR target = ANY($1))"
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// Keyset pages on the primary key, so every edge is read exactly once.
	query := `SELECT ` + edgeColumns + ` FROM kg_edges
		WHERE ` + where + ` AND ($2 = '' OR relation = $2)
		AND (source, target, relation) > ($3, $4, $5)
		ORDER BY source, target, relation
		LIMIT ` + strconv.Itoa(edgePageSize)

	edges := make([]models.Edge, 0, 16)
	var after models.Edge

	for {
		rows, err := s.Pool.Query(ctx, query, nodeIDs, relation, after.Source, after.Target, after.Relation)
		if err != nil {
			return nil, fmt.Errorf("querying edges: %w", err)
		}

		page, err := collectEdges(rows)
		rows.Close()

		if err != nil {
			return nil, err
		}

		edges = append(edges, page...)

		if len(edges) > models.MaxEdgesPerQuery {
			return nil, fmt.Errorf("more than %d edges: %w", models.MaxEdgesPerQuery, models.ErrTraversalLimit)
		}

		if len(page) < edgePageSize {
			return edges, nil
		}

		after = page[len(page)-1]
	}
}

// DeleteNode removes a node and, by cascade, its incident edges.
func (s *GraphStore) DeleteNode(ctx context.Context, nodeID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, `DELETE FROM kg_nodes WHERE id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNodeNotFound
	}

	return nil
}
