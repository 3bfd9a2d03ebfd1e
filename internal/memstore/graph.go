package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *GraphStore must satisfy domain.GraphStore.
var _ domain.GraphStore = (*GraphStore)(nil)

type edgeKey struct {
	source, target, relation string
}

// GraphStore keeps the graph projection in memory.
type GraphStore struct {
	mu    sync.RWMutex
	nodes map[string]*models.Node
	edges map[edgeKey]*models.Edge
	out   map[string]map[edgeKey]struct{}
	in    map[string]map[edgeKey]struct{}
	now   func() time.Time
}

// NewGraphStore creates an empty GraphStore.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		nodes: make(map[string]*models.Node),
		edges: make(map[edgeKey]*models.Edge),
		out:   make(map[string]map[edgeKey]struct{}),
		in:    make(map[string]map[edgeKey]struct{}),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// normalize round-trips a bag through JSON so stored values have the same
// shapes the Postgres store returns (numbers become float64).
func normalize(bag map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if bag == nil {
		return out, nil
	}

	data, err := json.Marshal(bag)
	if err != nil {
		return nil, fmt.Errorf("encoding properties: %w", err)
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}

	return out, nil
}

func copyNode(n *models.Node) models.Node {
	c := *n
	c.Properties = maps.Clone(n.Properties)

	return c
}

func copyEdge(e *models.Edge) models.Edge {
	c := *e
	c.Properties = maps.Clone(e.Properties)

	return c
}

// UpsertNode inserts a node or merges into the existing one.
func (s *GraphStore) UpsertNode(_ context.Context, n models.NodeUpsert) (*models.Node, error) {
	props, err := normalize(n.Properties)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()

	existing, ok := s.nodes[n.ID]
	if !ok {
		node := &models.Node{ID: n.ID, Type: n.Type, Label: n.Label, Properties: props, CreatedAt: at, UpdatedAt: at}
		s.nodes[n.ID] = node
		c := copyNode(node)

		return &c, nil
	}

	for k, v := range props {
		if _, has := existing.Properties[k]; n.Placeholder && has {
			continue
		}

		existing.Properties[k] = v
	}

	if !n.Placeholder {
		existing.Label = n.Label
	}

	existing.UpdatedAt = at
	c := copyNode(existing)

	return &c, nil
}

// UpsertEdge inserts an edge or merges properties into the existing one.
func (s *GraphStore) UpsertEdge(_ context.Context, e models.EdgeUpsert) (*models.Edge, error) {
	props, err := normalize(e.Properties)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodes[e.Source] == nil || s.nodes[e.Target] == nil {
		return nil, fmt.Errorf("edge %s -[%s]-> %s: %w", e.Source, e.Relation, e.Target, models.ErrNodeNotFound)
	}

	at := s.now()
	key := edgeKey{e.Source, e.Target, e.Relation}

	if existing, ok := s.edges[key]; ok {
		maps.Copy(existing.Properties, props)
		existing.UpdatedAt = at
		c := copyEdge(existing)

		return &c, nil
	}

	edge := &models.Edge{Source: e.Source, Target: e.Target, Relation: e.Relation, Properties: props, CreatedAt: at, UpdatedAt: at}
	s.edges[key] = edge
	index(s.out, e.Source, key)
	index(s.in, e.Target, key)
	c := copyEdge(edge)

	return &c, nil
}

func index(m map[string]map[edgeKey]struct{}, nodeID string, key edgeKey) {
	set, ok := m[nodeID]
	if !ok {
		set = make(map[edgeKey]struct{})
		m[nodeID] = set
	}

	set[key] = struct{}{}
}

// GetNode returns a single node by ID.
func (s *GraphStore) GetNode(_ context.Context, nodeID string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return nil, models.ErrNodeNotFound
	}

	c := copyNode(n)

	return &c, nil
}

// GetNodes returns the existing nodes among nodeIDs, ordered by id.
func (s *GraphStore) GetNodes(_ context.Context, nodeIDs []string) ([]models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(nodeIDs))
	nodes := make([]models.Node, 0, len(nodeIDs))

	for _, id := range nodeIDs {
		if n, ok := s.nodes[id]; ok && !seen[id] {
			seen[id] = true
			nodes = append(nodes, copyNode(n))
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return nodes, nil
}

// EdgesOf returns every edge touching nodeIDs, ordered by (source, target,
// relation). More than models.MaxEdgesPerQuery edges is ErrTraversalLimit.
func (s *GraphStore) EdgesOf(
	_ context.Context,
	nodeIDs []string,
	dir models.Direction,
	relation string,
) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[edgeKey]struct{})

	for _, id := range nodeIDs {
		if dir != models.DirectionIn {
			for k := range s.out[id] {
				keys[k] = struct{}{}
			}
		}

		if dir != models.DirectionOut {
			for k := range s.in[id] {
				keys[k] = struct{}{}
			}
		}
	}

	edges := make([]models.Edge, 0, len(keys))

	for k := range keys {
		if relation != "" && k.relation != relation {
			continue
		}

		edges = append(edges, copyEdge(s.edges[k]))
	}

	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}

		if a.Target != b.Target {
			return a.Target < b.Target
		}

		return a.Relation < b.Relation
	})

	if len(edges) > models.MaxEdgesPerQuery {
		return nil, fmt.Errorf("%d edges: %w", len(edges), models.ErrTraversalLimit)
	}

	return edges, nil
}

// DeleteNode removes a node and its incident edges.
func (s *GraphStore) DeleteNode(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return models.ErrNodeNotFound
	}

	for k := range s.out[nodeID] {
		s.removeEdge(k)
	}

	for k := range s.in[nodeID] {
		s.removeEdge(k)
	}

	delete(s.nodes, nodeID)
	delete(s.out, nodeID)
	delete(s.in, nodeID)

	return nil
}

func (s *GraphStore) removeEdge(k edgeKey) {
	delete(s.edges, k)
	delete(s.out[k.source], k)
	delete(s.in[k.target], k)
}

// SearchNodes scores nodes by query-term occurrences in their label and
// string properties. Every term must occur. Results are ordered by score
// descending, then id ascending.
func (s *GraphStore) SearchNodes(_ context.Context, q models.SearchQuery) ([]models.ScoredNode, error) {
	filters, err := normalize(q.PropertyFilters)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 || limit > models.MaxSearchLimit {
		limit = models.DefaultSearchLimit
	}

	types := make(map[string]bool, len(q.NodeTypes))
	for _, t := range q.NodeTypes {
		types[t] = true
	}

	terms := q.Terms()

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.ScoredNode, 0, limit)

	for _, n := range s.nodes {
		if len(types) > 0 && !types[n.Type] {
			continue
		}

		if !contains(n.Properties, filters) {
			continue
		}

		score, ok := scoreNode(n, terms)
		if !ok {
			continue
		}

		results = append(results, models.ScoredNode{Node: copyNode(n), Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}

		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func scoreNode(n *models.Node, terms []string) (float64, bool) {
	if len(terms) == 0 {
		return 0, true
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(n.Label))
	appendStrings(&b, n.Properties)

	text := b.String()
	total := 0

	for _, term := range terms {
		c := strings.Count(text, term)
		if c == 0 {
			return 0, false
		}

		total += c
	}

	return float64(total), true
}

func appendStrings(b *strings.Builder, v any) {
	switch val := v.(type) {
	case string:
		b.WriteByte('\n')
		b.WriteString(strings.ToLower(val))
	case []any:
		for _, item := range val {
			appendStrings(b, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			appendStrings(b, val[k])
		}
	}
}

// contains mirrors JSONB @> for decoded JSON values.
func contains(have, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}

		for k, wv := range w {
			hv, ok := h[k]
			if !ok || !contains(hv, wv) {
				return false
			}
		}

		return true
	case []any:
		h, ok := have.([]any)
		if !ok {
			return false
		}

		for _, wv := range w {
			found := false

			for _, hv := range h {
				if contains(hv, wv) {
					found = true
					break
				}
			}

			if !found {
				return false
			}
		}

		return true
	default:
		return have == want
	}
}

// Ping always succeeds.
func (s *GraphStore) Ping(context.Context) error { return nil }
