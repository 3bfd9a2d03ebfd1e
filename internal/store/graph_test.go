package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/labweave/labweave/internal/models"
	"github.com/labweave/labweave/internal/store"
)

func upsertTestNode(t *testing.T, gs *store.GraphStore, id, typ, label string, props map[string]any) {
	t.Helper()

	if _, err := gs.UpsertNode(context.Background(), models.NodeUpsert{ID: id, Type: typ, Label: label, Properties: props}); err != nil {
		t.Fatalf("UpsertNode %s: %v", id, err)
	}
}

func TestUpsertNode_Merges(t *testing.T) {
	gs := store.NewGraphStore(setupTestBase(t))
	ctx := context.Background()

	upsertTestNode(t, gs, "document:d1", models.NodeDocument, "Protocol A", map[string]any{"title": "Protocol A", "current_version": 1})
	upsertTestNode(t, gs, "document:d1", models.NodeDocument, "Protocol A", map[string]any{"current_version": 2})

	n, err := gs.GetNode(ctx, "document:d1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}

	if n.Properties["title"] != "Protocol A" || n.Properties["current_version"] != float64(2) {
		t.Errorf("properties = %v", n.Properties)
	}

	// Placeholders never overwrite.
	_, err = gs.UpsertNode(ctx, models.NodeUpsert{
		ID: "document:d1", Type: models.NodeDocument, Label: "Document d1",
		Properties: map[string]any{"title": "x", "extra": true}, Placeholder: true,
	})
	if err != nil {
		t.Fatalf("UpsertNode placeholder: %v", err)
	}

	n, err = gs.GetNode(ctx, "document:d1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}

	if n.Label != "Protocol A" || n.Properties["title"] != "Protocol A" || n.Properties["extra"] != true {
		t.Errorf("placeholder changed node: %+v", n)
	}
}

func TestEdgesOf_Directions(t *testing.T) {
	gs := store.NewGraphStore(setupTestBase(t))
	ctx := context.Background()

	upsertTestNode(t, gs, "document:d1", models.NodeDocument, "Doc", nil)
	upsertTestNode(t, gs, "project:p1", models.NodeProject, "Project", nil)
	upsertTestNode(t, gs, "user:u1", models.NodeUser, "User", nil)

	for _, e := range []models.EdgeUpsert{
		{Source: "document:d1", Target: "project:p1", Relation: models.RelBelongsTo},
		{Source: "document:d1", Target: "user:u1", Relation: models.RelCreatedBy},
		{Source: "document:d1", Target: "user:u1", Relation: models.RelCreatedBy},
	} {
		if _, err := gs.UpsertEdge(ctx, e); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}

	out, err := gs.EdgesOf(ctx, []string{"document:d1"}, models.DirectionOut, "")
	if err != nil {
		t.Fatalf("EdgesOf: %v", err)
	}

	if len(out) != 2 {
		t.Errorf("out edges = %d, want 2 (upsert must not duplicate)", len(out))
	}

	in, err := gs.EdgesOf(ctx, []string{"document:d1"}, models.DirectionIn, "")
	if err != nil {
		t.Fatalf("EdgesOf: %v", err)
	}

	if len(in) != 0 {
		t.Errorf("in edges = %d, want 0", len(in))
	}

	byRel, err := gs.EdgesOf(ctx, []string{"user:u1"}, models.DirectionBoth, models.RelCreatedBy)
	if err != nil {
		t.Fatalf("EdgesOf: %v", err)
	}

	if len(byRel) != 1 {
		t.Errorf("relation-filtered edges = %d, want 1", len(byRel))
	}

	_, err = gs.UpsertEdge(ctx, models.EdgeUpsert{Source: "document:d1", Target: "missing:x", Relation: models.RelUses})
	if !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("edge to missing node err = %v, want ErrNodeNotFound", err)
	}

	if err := gs.DeleteNode(ctx, "user:u1"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	out, err = gs.EdgesOf(ctx, []string{"document:d1"}, models.DirectionOut, "")
	if err != nil {
		t.Fatalf("EdgesOf: %v", err)
	}

	if len(out) != 1 {
		t.Errorf("edges after node delete = %d, want 1", len(out))
	}
}

func TestSearchNodes_Deterministic(t *testing.T) {
	gs := store.NewGraphStore(setupTestBase(t))
	ctx := context.Background()

	upsertTestNode(t, gs, "document:b", models.NodeDocument, "RNA extraction protocol", map[string]any{"project_id": "p1"})
	upsertTestNode(t, gs, "document:a", models.NodeDocument, "RNA extraction protocol", map[string]any{"project_id": "p1"})
	upsertTestNode(t, gs, "project:p1", models.NodeProject, "RNA project", nil)

	q := models.SearchQuery{Query: "protocol", NodeTypes: []string{models.NodeDocument}, PropertyFilters: map[string]any{"project_id": "p1"}, Limit: 10}

	first, err := gs.SearchNodes(ctx, q)
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}

	second, err := gs.SearchNodes(ctx, q)
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}

	if len(first) != 2 || first[0].ID != "document:a" || first[1].ID != "document:b" {
		t.Fatalf("unexpected results: %+v", first)
	}

	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("result %d differs between runs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestEdgesOf_ReadsEveryPage(t *testing.T) {
	gs := store.NewGraphStore(setupTestBase(t))
	ctx := context.Background()
	hub := "project:hub"

	upsertTestNode(t, gs, hub, models.NodeProject, "hub", nil)

	const members = 5001

	for i := range members {
		id := fmt.Sprintf("document:%05d", i)
		upsertTestNode(t, gs, id, models.NodeDocument, id, nil)

		if _, err := gs.UpsertEdge(ctx, models.EdgeUpsert{Source: id, Target: hub, Relation: models.RelBelongsTo}); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}

	edges, err := gs.EdgesOf(ctx, []string{hub}, models.DirectionIn, models.RelBelongsTo)
	if err != nil {
		t.Fatalf("EdgesOf: %v", err)
	}

	if len(edges) != members || edges[members-1].Source != "document:05000" {
		t.Errorf("edges = %d, want %d ending at document:05000", len(edges), members)
	}
}
