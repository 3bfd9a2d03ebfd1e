package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/labweave/labweave/internal/memstore"
	"github.com/labweave/labweave/internal/models"
)

// buildGraph creates nodes for every id mentioned and a RELATED_TO edge per pair.
func buildGraph(t *testing.T, pairs ...[2]string) *memstore.GraphStore {
	t.Helper()

	g := memstore.NewGraphStore()
	ctx := context.Background()

	for _, p := range pairs {
		for _, id := range p {
			if _, err := g.UpsertNode(ctx, models.NodeUpsert{ID: id, Type: models.NodeSample, Label: id}); err != nil {
				t.Fatalf("UpsertNode: %v", err)
			}
		}

		if _, err := g.UpsertEdge(ctx, models.EdgeUpsert{Source: p[0], Target: p[1], Relation: models.RelRelatedTo}); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}

	return g
}

func pathIDs(p *models.Path) []string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}

	return ids
}

func chain(n int) [][2]string {
	pairs := make([][2]string, 0, n)
	for i := range n {
		pairs = append(pairs, [2]string{fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", i+1)})
	}

	return pairs
}

func TestFindPath_RespectsMaxDepth(t *testing.T) {
	svc := NewGraphService(buildGraph(t, chain(6)...), testLogger())
	ctx := context.Background()

	_, err := svc.FindPath(ctx, "n0", "n6", 5)
	if !errors.Is(err, models.ErrPathNotFound) {
		t.Fatalf("depth 5 err = %v, want ErrPathNotFound", err)
	}

	for depth := 6; depth <= MaxPathDepth; depth++ {
		p, err := svc.FindPath(ctx, "n0", "n6", depth)
		if err != nil {
			t.Fatalf("depth %d: %v", depth, err)
		}

		if p.Length != 6 || len(p.Edges) != 6 || len(p.Nodes) != 7 {
			t.Errorf("depth %d path = %d edges / %d nodes", depth, len(p.Edges), len(p.Nodes))
		}

		if p.Length > depth {
			t.Errorf("path of %d edges exceeds max depth %d", p.Length, depth)
		}
	}
}

func TestFindPath_FollowsEdgesInBothDirections(t *testing.T) {
	// a -> b <- c : reachable only when edges are treated as undirected.
	svc := NewGraphService(buildGraph(t, [2]string{"a", "b"}, [2]string{"c", "b"}), testLogger())

	p, err := svc.FindPath(context.Background(), "a", "c", 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	if got := pathIDs(p); len(got) != 3 || got[1] != "b" {
		t.Errorf("path = %v, want [a b c]", got)
	}
}

func TestFindPath_DeterministicTieBreak(t *testing.T) {
	// Two shortest paths s-a-z-e and s-b-y-e; the one whose id sequence sorts first wins.
	svc := NewGraphService(buildGraph(t,
		[2]string{"s", "b"}, [2]string{"s", "a"},
		[2]string{"b", "y"}, [2]string{"a", "z"},
		[2]string{"y", "e"}, [2]string{"z", "e"},
	), testLogger())

	for range 5 {
		p, err := svc.FindPath(context.Background(), "s", "e", 5)
		if err != nil {
			t.Fatalf("FindPath: %v", err)
		}

		got := pathIDs(p)
		want := []string{"s", "a", "z", "e"}

		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("path = %v, want %v", got, want)
			}
		}

		for i, e := range p.Edges {
			a, b := got[i], got[i+1]
			if (e.Source != a || e.Target != b) && (e.Source != b || e.Target != a) {
				t.Errorf("edge %d = %s->%s does not join %s and %s", i, e.Source, e.Target, a, b)
			}
		}
	}
}

func TestFindPath_EdgeCases(t *testing.T) {
	svc := NewGraphService(buildGraph(t, [2]string{"a", "b"}, [2]string{"x", "y"}), testLogger())
	ctx := context.Background()

	p, err := svc.FindPath(ctx, "a", "a", 3)
	if err != nil {
		t.Fatalf("same node: %v", err)
	}

	if p.Length != 0 || len(p.Nodes) != 1 || len(p.Edges) != 0 {
		t.Errorf("same node path = %+v", p)
	}

	if _, err := svc.FindPath(ctx, "a", "y", 10); !errors.Is(err, models.ErrPathNotFound) {
		t.Errorf("disconnected err = %v, want ErrPathNotFound", err)
	}

	if _, err := svc.FindPath(ctx, "a", "missing", 3); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("missing end err = %v, want ErrNodeNotFound", err)
	}

	for _, depth := range []int{-1, 11} {
		if _, err := svc.FindPath(ctx, "a", "b", depth); !errors.Is(err, models.ErrValidation) {
			t.Errorf("depth %d err = %v, want ErrValidation", depth, err)
		}
	}
}

func TestNeighbors(t *testing.T) {
	g := buildGraph(t, [2]string{"hub", "c"}, [2]string{"hub", "a"}, [2]string{"b", "hub"})
	svc := NewGraphService(g, testLogger())
	ctx := context.Background()

	res, err := svc.Neighbors(ctx, "hub", models.NeighborQuery{})
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}

	if len(res.Nodes) != 3 || res.Nodes[0].ID != "a" || res.Nodes[1].ID != "b" || res.Nodes[2].ID != "c" {
		t.Errorf("neighbors = %+v", res.Nodes)
	}

	if len(res.Edges) != 3 || res.Edges[0].Source != "b" {
		t.Errorf("edges = %+v", res.Edges)
	}

	res, err = svc.Neighbors(ctx, "hub", models.NeighborQuery{Direction: models.DirectionIn})
	if err != nil {
		t.Fatalf("Neighbors in: %v", err)
	}

	if len(res.Nodes) != 1 || res.Nodes[0].ID != "b" {
		t.Errorf("in neighbors = %+v", res.Nodes)
	}

	res, err = svc.Neighbors(ctx, "hub", models.NeighborQuery{Limit: 2})
	if err != nil {
		t.Fatalf("Neighbors limit: %v", err)
	}

	if len(res.Nodes) != 2 || len(res.Edges) != 2 {
		t.Errorf("limited result = %d nodes, %d edges", len(res.Nodes), len(res.Edges))
	}

	if _, err := svc.Neighbors(ctx, "hub", models.NeighborQuery{Relation: "LIKES"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("unknown relation err = %v", err)
	}

	if _, err := svc.Neighbors(ctx, "nope", models.NeighborQuery{}); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("missing node err = %v", err)
	}
}

func TestRelated(t *testing.T) {
	svc := NewGraphService(buildGraph(t, chain(4)...), testLogger())
	ctx := context.Background()

	res, err := svc.Related(ctx, "n0", 2)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}

	if len(res.Nodes) != 3 || res.Nodes[2].ID != "n2" {
		t.Errorf("related nodes = %+v", res.Nodes)
	}

	if len(res.Edges) != 2 {
		t.Errorf("related edges = %+v", res.Edges)
	}

	if _, err := svc.Related(ctx, "n0", 6); !errors.Is(err, models.ErrValidation) {
		t.Errorf("depth 6 err = %v", err)
	}
}

func TestSearch_ValidatesAndIsRepeatable(t *testing.T) {
	g := memstore.NewGraphStore()
	ctx := context.Background()

	for i, label := range []string{"Plant taxonomy notes", "Taxonomy of taxonomy", "Unrelated", "Bacterial taxonomy"} {
		if _, err := g.UpsertNode(ctx, models.NodeUpsert{
			ID: fmt.Sprintf("document:%d", i), Type: models.NodeDocument, Label: label,
		}); err != nil {
			t.Fatalf("UpsertNode: %v", err)
		}
	}

	svc := NewGraphService(g, testLogger())
	q := models.SearchQuery{Query: "taxonomy", NodeTypes: []string{models.NodeDocument}, Limit: 5}

	first, err := svc.Search(ctx, q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	second, err := svc.Search(ctx, q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(first) != 3 || first[0].ID != "document:1" || first[1].ID != "document:0" || first[2].ID != "document:3" {
		t.Fatalf("results = %+v", first)
	}

	for i := range first {
		if first[i].ID != second[i].ID || first[i].Score != second[i].Score {
			t.Errorf("result %d differs between runs", i)
		}
	}

	if _, err := svc.Search(ctx, models.SearchQuery{Query: "x", NodeTypes: []string{"Spaceship"}}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("unknown type err = %v", err)
	}

	if _, err := svc.Search(ctx, models.SearchQuery{Query: "x", Limit: 101}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("limit 101 err = %v", err)
	}
}

func TestGraphQueries_HubAboveOnePage(t *testing.T) {
	g := memstore.NewGraphStore()
	ctx := context.Background()
	hub := "project:hub"

	if _, err := g.UpsertNode(ctx, models.NodeUpsert{ID: hub, Type: models.NodeProject, Label: "hub"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	const docs = 5001

	for i := range docs {
		id := fmt.Sprintf("document:%05d", i)
		if _, err := g.UpsertNode(ctx, models.NodeUpsert{ID: id, Type: models.NodeDocument, Label: id}); err != nil {
			t.Fatalf("UpsertNode: %v", err)
		}

		if _, err := g.UpsertEdge(ctx, models.EdgeUpsert{Source: id, Target: hub, Relation: models.RelBelongsTo}); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}

	svc := NewGraphService(g, testLogger())

	p, err := svc.FindPath(ctx, hub, "document:05000", 1)
	if err != nil {
		t.Fatalf("FindPath to last member: %v", err)
	}

	if p.Length != 1 {
		t.Errorf("path length = %d, want 1", p.Length)
	}

	if _, err := svc.FindPath(ctx, "document:00000", "document:05000", 2); err != nil {
		t.Errorf("FindPath between members: %v", err)
	}
}

// limitedGraphStore reports every edge query as over the traversal limit.
type limitedGraphStore struct {
	*memstore.GraphStore
}

func (limitedGraphStore) EdgesOf(context.Context, []string, models.Direction, string) ([]models.Edge, error) {
	return nil, fmt.Errorf("edges: %w", models.ErrTraversalLimit)
}

func TestGraphQueries_TraversalLimitIsNotAnEmptyAnswer(t *testing.T) {
	svc := NewGraphService(limitedGraphStore{buildGraph(t, [2]string{"a", "b"})}, testLogger())
	ctx := context.Background()

	if _, err := svc.FindPath(ctx, "a", "b", 3); !errors.Is(err, models.ErrTraversalLimit) {
		t.Errorf("FindPath err = %v, want ErrTraversalLimit", err)
	}

	if _, err := svc.Neighbors(ctx, "a", models.NeighborQuery{}); !errors.Is(err, models.ErrTraversalLimit) {
		t.Errorf("Neighbors err = %v, want ErrTraversalLimit", err)
	}

	if _, err := svc.Related(ctx, "a", 2); !errors.Is(err, models.ErrTraversalLimit) {
		t.Errorf("Related err = %v, want ErrTraversalLimit", err)
	}
}
