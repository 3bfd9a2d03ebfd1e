package store

import (
	"context"
	"fmt"

	"github.com/labweave/labweave/internal/models"
)

// SearchNodes runs a full-text query over labels and string properties.
// Results are ordered by ts_rank descending, then id ascending, so equal
// inputs always produce the same order. An empty query matches every node
// with score 0. Property filters use JSONB containment.
func (s *GraphStore) SearchNodes(ctx context.Context, q models.SearchQuery) ([]models.ScoredNode, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filterJSON, err := marshalBag(q.PropertyFilters)
	if err != nil {
		return nil, err
	}

	types := q.NodeTypes
	if types == nil {
		types = []string{}
	}

	limit := q.Limit
	if limit <= 0 || limit > models.MaxSearchLimit {
		limit = models.DefaultSearchLimit
	}

	query := `SELECT ` + nodeColumns + `,
			CASE WHEN $1 = '' THEN 0::real
				ELSE ts_rank(search_vector, plainto_tsquery('simple', $1)) END AS score
		FROM kg_nodes
		WHERE ($1 = '' OR search_vector @@ plainto_tsquery('simple', $1))
			AND (cardinality($2::text[]) = 0 OR type = ANY($2))
			AND properties @> $3::jsonb
		ORDER BY score DESC, id ASC
		LIMIT $4`

	rows, err := s.Pool.Query(ctx, query, q.Query, types, filterJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("searching nodes: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredNode, 0, limit)

	for rows.Next() {
		var score float32

		n, err := scanNode(func(dest ...any) error {
			return rows.Scan(append(dest, &score)...)
		})
		if err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}

		results = append(results, models.ScoredNode{Node: *n, Score: float64(score)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	return results, nil
}
