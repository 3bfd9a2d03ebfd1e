package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/labweave/labweave/internal/memstore"
	"github.com/labweave/labweave/internal/models"
)

func testDocument() *models.Document {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	return &models.Document{
		ID:             "d1",
		Title:          "Protocol A",
		ProjectID:      "p1",
		Tags:           []string{"rna"},
		Metadata:       map[string]any{"instrument": "miseq"},
		CurrentVersion: 1,
		CreatedBy:      "alice",
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func testVersion(number int, hash string) *models.Version {
	return &models.Version{
		DocumentID:  "d1",
		Number:      number,
		ContentHash: hash,
		Filename:    "protocol.txt",
		Size:        3,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func createdEvent() models.Event {
	ev := models.NewEvent(models.EventDocumentCreated, testDocument())
	ev.Version = testVersion(1, abcHash)

	return ev
}

func versionEvent(number int, hash string) models.Event {
	doc := testDocument()
	doc.CurrentVersion = number
	ev := models.NewEvent(models.EventVersionAdded, doc)
	ev.Version = testVersion(number, hash)

	return ev
}

func mustApply(t *testing.T, p *Projector, ev models.Event) {
	t.Helper()

	if err := p.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply %s: %v", ev.Type, err)
	}
}

func mustNode(t *testing.T, g *memstore.GraphStore, id string) *models.Node {
	t.Helper()

	n, err := g.GetNode(context.Background(), id)
	if err != nil {
		t.Fatalf("GetNode %s: %v", id, err)
	}

	return n
}

func outEdges(t *testing.T, g *memstore.GraphStore, id string) []models.Edge {
	t.Helper()

	edges, err := g.EdgesOf(context.Background(), []string{id}, models.DirectionOut, "")
	if err != nil {
		t.Fatalf("EdgesOf %s: %v", id, err)
	}

	return edges
}

func TestProjector_DocumentCreated(t *testing.T) {
	g := memstore.NewGraphStore()
	p := NewProjector(g, testLogger())

	mustApply(t, p, createdEvent())

	doc := mustNode(t, g, "document:d1")
	if doc.Label != "Protocol A" || doc.Type != models.NodeDocument {
		t.Errorf("document node = %+v", doc)
	}

	if doc.Properties["status"] != StatusActive || doc.Properties["current_version"] != float64(1) {
		t.Errorf("document properties = %v", doc.Properties)
	}

	if doc.Properties["meta.instrument"] != "miseq" || doc.Properties["content_hash"] != abcHash {
		t.Errorf("document properties = %v", doc.Properties)
	}

	mustNode(t, g, "version:d1:1")
	mustNode(t, g, "user:alice")
	mustNode(t, g, "project:p1")

	edges := outEdges(t, g, "document:d1")
	if len(edges) != 2 {
		t.Fatalf("document out edges = %+v, want BELONGS_TO and CREATED_BY", edges)
	}

	if edges[0].Target != "project:p1" || edges[0].Relation != models.RelBelongsTo {
		t.Errorf("edge 0 = %+v", edges[0])
	}

	if edges[1].Target != "user:alice" || edges[1].Relation != models.RelCreatedBy {
		t.Errorf("edge 1 = %+v", edges[1])
	}

	vEdges := outEdges(t, g, "version:d1:1")
	if len(vEdges) != 1 || vEdges[0].Relation != models.RelVersionOf || vEdges[0].Target != "document:d1" {
		t.Errorf("version edges = %+v", vEdges)
	}
}

func TestProjector_RedeliveryIsIdempotent(t *testing.T) {
	g := memstore.NewGraphStore()
	p := NewProjector(g, testLogger())
	ctx := context.Background()

	ev := createdEvent()
	mustApply(t, p, ev)

	before, err := g.SearchNodes(ctx, models.SearchQuery{Limit: 100})
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}

	beforeEdges := outEdges(t, g, "document:d1")

	mustApply(t, p, ev)

	after, err := g.SearchNodes(ctx, models.SearchQuery{Limit: 100})
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}

	if len(before) != len(after) {
		t.Errorf("node count changed on redelivery: %d -> %d", len(before), len(after))
	}

	if len(beforeEdges) != len(outEdges(t, g, "document:d1")) {
		t.Error("edge count changed on redelivery")
	}
}

func TestProjector_VersionPointerNeverRegresses(t *testing.T) {
	g := memstore.NewGraphStore()
	p := NewProjector(g, testLogger())

	mustApply(t, p, createdEvent())
	mustApply(t, p, versionEvent(3, "c3"))
	mustApply(t, p, versionEvent(2, "c2"))

	doc := mustNode(t, g, "document:d1")
	if doc.Properties["current_version"] != float64(3) || doc.Properties["content_hash"] != "c3" {
		t.Errorf("document pointer regressed: %v", doc.Properties)
	}

	mustNode(t, g, "version:d1:2")
}

func TestProjector_RestoreAddsDerivedFrom(t *testing.T) {
	g := memstore.NewGraphStore()
	p := NewProjector(g, testLogger())

	mustApply(t, p, createdEvent())
	mustApply(t, p, versionEvent(2, "c2"))

	restored := versionEvent(3, abcHash)
	from := 1
	restored.Version.RestoredFrom = &from
	mustApply(t, p, restored)

	edges := outEdges(t, g, "version:d1:3")

	var derived bool

	for _, e := range edges {
		if e.Relation == models.RelDerivedFrom && e.Target == "version:d1:1" {
			derived = true
		}
	}

	if !derived {
		t.Errorf("missing DERIVED_FROM edge: %+v", edges)
	}

	// The placeholder upsert of the origin must not clobber it.
	origin := mustNode(t, g, "version:d1:1")
	if origin.Properties["content_hash"] != abcHash {
		t.Errorf("origin version properties = %v", origin.Properties)
	}
}

func TestProjector_LinkKeepsExistingTarget(t *testing.T) {
	g := memstore.NewGraphStore()
	p := NewProjector(g, testLogger())
	ctx := context.Background()

	if _, err := g.UpsertNode(ctx, models.NodeUpsert{ID: "gene:BRCA1", Type: models.NodeGene, Label: "BRCA1 DNA repair"}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	mustApply(t, p, createdEvent())

	ev := models.NewEvent(models.EventDocumentLinked, testDocument())
	ev.Link = &models.LinkRequest{TargetType: models.NodeGene, TargetID: "BRCA1", Relation: models.RelDescribes}
	mustApply(t, p, ev)

	if n := mustNode(t, g, "gene:BRCA1"); n.Label != "BRCA1 DNA repair" {
		t.Errorf("link clobbered target label: %q", n.Label)
	}

	ev.Link = &models.LinkRequest{TargetType: models.NodeOrganism, TargetID: "9606", Relation: models.RelRelatedTo}
	mustApply(t, p, ev)

	if n := mustNode(t, g, "organism:9606"); n.Label != "Organism 9606" {
		t.Errorf("placeholder label = %q", n.Label)
	}
}

func TestProjector_DeletedStaysDeleted(t *testing.T) {
	g := memstore.NewGraphStore()
	p := NewProjector(g, testLogger())

	mustApply(t, p, createdEvent())

	del := models.NewEvent(models.EventDocumentDeleted, nil)
	del.DocumentID = "d1"
	mustApply(t, p, del)

	doc := mustNode(t, g, "document:d1")
	if doc.Properties["status"] != StatusDeleted || doc.Label != "Protocol A" {
		t.Fatalf("deleted node = %+v", doc)
	}

	mustApply(t, p, models.NewEvent(models.EventDocumentUpdated, testDocument()))

	if doc := mustNode(t, g, "document:d1"); doc.Properties["status"] != StatusDeleted {
		t.Errorf("update revived a deleted document: %v", doc.Properties)
	}
}

func TestProjector_Errors(t *testing.T) {
	g := &flakyGraphStore{GraphStore: memstore.NewGraphStore()}
	p := NewProjector(g, testLogger())

	err := p.Apply(context.Background(), models.Event{Type: models.EventVersionAdded, DocumentID: "d1"})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("malformed event err = %v, want ErrValidation", err)
	}

	g.failWrites.Store(1)

	err = p.Apply(context.Background(), createdEvent())
	if !errors.Is(err, models.ErrGraphSync) || !errors.Is(err, errGraphDown) {
		t.Errorf("graph failure err = %v, want ErrGraphSync wrapping the cause", err)
	}

	// A retry after the failure converges.
	mustApply(t, p, createdEvent())
	mustNode(t, g.GraphStore.(*memstore.GraphStore), "version:d1:1")
}
