package service

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *GraphService must satisfy domain.GraphService.
var _ domain.GraphService = (*GraphService)(nil)

// Traversal bounds.
const (
	DefaultPathDepth     = 5
	MaxPathDepth         = 10
	DefaultRelatedDepth  = 2
	MaxRelatedDepth      = 5
	maxRelatedNodes      = 500
	defaultNeighborLimit = 100
	maxNeighborLimit     = 1000
)

// GraphService answers read queries over the graph projection.
type GraphService struct {
	store domain.GraphStore
	log   *logrus.Logger
}

// NewGraphService creates a GraphService.
func NewGraphService(store domain.GraphStore, log *logrus.Logger) *GraphService {
	return &GraphService{store: store, log: log}
}

// GetNode returns a single node (pass-through).
func (s *GraphService) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	return s.store.GetNode(ctx, nodeID)
}

// DeleteNode removes a node and its edges.
func (s *GraphService) DeleteNode(ctx context.Context, nodeID string) error {
	if err := s.store.DeleteNode(ctx, nodeID); err != nil {
		return err
	}

	s.log.WithField("node_id", nodeID).Info("graph node deleted")

	return nil
}

// hop is one step from a node to a neighbor.
type hop struct {
	to   string
	edge models.Edge
}

// hops groups edges by the endpoint in from, pointing at the other endpoint.
// Each group is sorted by neighbor id; EdgesOf ordering breaks ties.
func hops(edges []models.Edge, from map[string]bool) map[string][]hop {
	out := make(map[string][]hop)

	for _, e := range edges {
		if from[e.Source] && e.Target != e.Source {
			out[e.Source] = append(out[e.Source], hop{to: e.Target, edge: e})
		}

		if from[e.Target] && e.Target != e.Source {
			out[e.Target] = append(out[e.Target], hop{to: e.Source, edge: e})
		}
	}

	for id := range out {
		sort.SliceStable(out[id], func(i, j int) bool { return out[id][i].to < out[id][j].to })
	}

	return out
}

func setOf(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}

	return m
}

// Neighbors returns nodes directly connected to nodeID, ordered by id.
func (s *GraphService) Neighbors(
	ctx context.Context, nodeID string, q models.NeighborQuery,
) (res *models.NeighborResult, err error) {
	ctx, span := startSpan(ctx, "graph.Neighbors", attribute.String("node_id", nodeID))
	defer func() { endSpan(span, err) }()

	s.log.WithFields(logrus.Fields{
		"node_id":   nodeID,
		"direction": q.Direction,
		"relation":  q.Relation,
		"limit":     q.Limit,
	}).Debug("graph.neighbors")

	if q.Direction == "" {
		q.Direction = models.DirectionBoth
	}

	if q.Relation != "" && !models.IsRelationType(q.Relation) {
		return nil, models.Invalid("relation", "unknown relation type")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultNeighborLimit
	}

	if limit > maxNeighborLimit {
		limit = maxNeighborLimit
	}

	if _, err := s.store.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	edges, err := s.store.EdgesOf(ctx, []string{nodeID}, q.Direction, q.Relation)
	if err != nil {
		return nil, err
	}

	byNeighbor := hops(edges, setOf([]string{nodeID}))[nodeID]

	ids := make([]string, 0, len(byNeighbor))
	kept := make(map[string]bool)

	for _, h := range byNeighbor {
		if kept[h.to] {
			continue
		}

		if len(ids) == limit {
			break
		}

		kept[h.to] = true
		ids = append(ids, h.to)
	}

	res = &models.NeighborResult{Nodes: []models.Node{}, Edges: []models.Edge{}}

	for _, e := range edges {
		if kept[e.Source] || kept[e.Target] {
			res.Edges = append(res.Edges, e)
		}
	}

	if len(ids) > 0 {
		res.Nodes, err = s.store.GetNodes(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// FindPath returns the shortest undirected path of at most maxDepth edges.
// Among equally short paths it returns the one whose node-id sequence sorts
// first: the frontier is expanded in discovery order and each node's
// neighbors in ascending id order, with the first discovery winning.
func (s *GraphService) FindPath(
	ctx context.Context, startID, endID string, maxDepth int,
) (path *models.Path, err error) {
	ctx, span := startSpan(ctx, "graph.FindPath",
		attribute.String("start_id", startID), attribute.String("end_id", endID), attribute.Int("max_depth", maxDepth))
	defer func() { endSpan(span, err) }()

	s.log.WithFields(logrus.Fields{
		"start_id":  startID,
		"end_id":    endID,
		"max_depth": maxDepth,
	}).Debug("graph.find_path")

	if maxDepth == 0 {
		maxDepth = DefaultPathDepth
	}

	if maxDepth < 1 || maxDepth > MaxPathDepth {
		return nil, models.Invalid("max_depth", "must be between 1 and 10")
	}

	start, err := s.store.GetNode(ctx, startID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetNode(ctx, endID); err != nil {
		return nil, err
	}

	if startID == endID {
		return &models.Path{Nodes: []models.Node{*start}, Edges: []models.Edge{}, Length: 0}, nil
	}

	visited := map[string]bool{startID: true}
	parent := make(map[string]hop)
	frontier := []string{startID}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		edges, err := s.store.EdgesOf(ctx, frontier, models.DirectionBoth, "")
		if err != nil {
			return nil, err
		}

		adjacent := hops(edges, setOf(frontier))
		next := make([]string, 0)

		for _, u := range frontier {
			for _, h := range adjacent[u] {
				if visited[h.to] {
					continue
				}

				visited[h.to] = true
				parent[h.to] = hop{to: u, edge: h.edge}

				if h.to == endID {
					return s.buildPath(ctx, startID, endID, parent)
				}

				next = append(next, h.to)
			}
		}

		frontier = next
	}

	return nil, models.ErrPathNotFound
}

// buildPath walks parent links back from endID.
func (s *GraphService) buildPath(
	ctx context.Context, startID, endID string, parent map[string]hop,
) (*models.Path, error) {
	ids := []string{endID}
	edges := []models.Edge{}

	for cur := endID; cur != startID; {
		p := parent[cur]
		edges = append(edges, p.edge)
		ids = append(ids, p.to)
		cur = p.to
	}

	// Reverse into start-to-end order.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}

	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}

	nodes, err := s.store.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	ordered := make([]models.Node, 0, len(ids))

	for _, id := range ids {
		n, ok := byID[id]
		if !ok {
			// A node vanished between traversal and lookup.
			return nil, models.ErrPathNotFound
		}

		ordered = append(ordered, n)
	}

	return &models.Path{Nodes: ordered, Edges: edges, Length: len(edges)}, nil
}

// Related returns every node reachable from nodeID within depth hops in
// either direction, with the edges among them.
func (s *GraphService) Related(
	ctx context.Context, nodeID string, depth int,
) (res *models.TraverseResult, err error) {
	ctx, span := startSpan(ctx, "graph.Related", attribute.String("node_id", nodeID), attribute.Int("depth", depth))
	defer func() { endSpan(span, err) }()

	s.log.WithFields(logrus.Fields{
		"node_id": nodeID,
		"depth":   depth,
	}).Debug("graph.related")

	if depth == 0 {
		depth = DefaultRelatedDepth
	}

	if depth < 1 || depth > MaxRelatedDepth {
		return nil, models.Invalid("depth", "must be between 1 and 5")
	}

	if _, err := s.store.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	seen := map[string]bool{nodeID: true}
	ids := []string{nodeID}
	frontier := []string{nodeID}

	for level := 0; level < depth && len(frontier) > 0 && len(ids) < maxRelatedNodes; level++ {
		edges, err := s.store.EdgesOf(ctx, frontier, models.DirectionBoth, "")
		if err != nil {
			return nil, err
		}

		adjacent := hops(edges, setOf(frontier))
		next := make([]string, 0)

	expand:
		for _, u := range frontier {
			for _, h := range adjacent[u] {
				if seen[h.to] {
					continue
				}

				if len(ids) == maxRelatedNodes {
					break expand
				}

				seen[h.to] = true
				ids = append(ids, h.to)
				next = append(next, h.to)
			}
		}

		frontier = next
	}

	nodes, err := s.store.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	edges, err := s.store.EdgesOf(ctx, ids, models.DirectionOut, "")
	if err != nil {
		return nil, err
	}

	res = &models.TraverseResult{Nodes: nodes, Edges: make([]models.Edge, 0, len(edges))}

	for _, e := range edges {
		if seen[e.Target] {
			res.Edges = append(res.Edges, e)
		}
	}

	return res, nil
}

// Search validates q and runs it against the graph store.
func (s *GraphService) Search(ctx context.Context, q models.SearchQuery) (res []models.ScoredNode, err error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "graph.Search", attribute.String("query", q.Query))
	defer func() { endSpan(span, err) }()

	s.log.WithFields(logrus.Fields{
		"query":      q.Query,
		"node_types": q.NodeTypes,
		"limit":      q.Limit,
	}).Debug("graph.search")

	return s.store.SearchNodes(ctx, q)
}
