package models_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/labweave/labweave/internal/models"
)

func ptr[T any](v T) *T { return &v }

func assertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func assertErrorContains(t *testing.T, err error, want string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}

	if !strings.Contains(err.Error(), want) {
		t.Errorf("expected error containing %q, got %q", want, err.Error())
	}

	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected errors.Is(err, ErrValidation), got %T", err)
	}
}

func TestCreateDocumentRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.CreateDocumentRequest
		wantErr string
	}{
		{name: "valid", req: models.CreateDocumentRequest{Title: "Protocol A"}},
		{name: "valid with metadata", req: models.CreateDocumentRequest{Title: "t", Metadata: map[string]any{"instrument": "miseq", "run.id": 7}}},
		{name: "missing title", req: models.CreateDocumentRequest{}, wantErr: "title: is required"},
		{name: "blank title", req: models.CreateDocumentRequest{Title: "   "}, wantErr: "title: is required"},
		{name: "title too long", req: models.CreateDocumentRequest{Title: strings.Repeat("x", 256)}, wantErr: "exceeds maximum length of 255"},
		{name: "tag too long", req: models.CreateDocumentRequest{Title: "t", Tags: []string{strings.Repeat("x", 65)}}, wantErr: "exceeds maximum length of 64"},
		{name: "reserved metadata key", req: models.CreateDocumentRequest{Title: "t", Metadata: map[string]any{"lw.status": "x"}}, wantErr: "reserved prefix"},
		{name: "bad metadata key", req: models.CreateDocumentRequest{Title: "t", Metadata: map[string]any{"Bad Key": 1}}, wantErr: "must match"},
		{name: "metadata too large", req: models.CreateDocumentRequest{Title: "t", Metadata: map[string]any{"blob": strings.Repeat("x", 70000)}}, wantErr: "exceeds maximum length"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr != "" {
				assertErrorContains(t, err, tc.wantErr)
				return
			}
			assertNoError(t, err)
		})
	}
}

func TestCreateDocumentRequest_NormalizesTags(t *testing.T) {
	req := models.CreateDocumentRequest{Title: "t", Tags: []string{" rna ", "rna", "", "dna"}}
	assertNoError(t, req.Validate())

	if got := strings.Join(req.Tags, ","); got != "rna,dna" {
		t.Errorf("tags = %q, want %q", got, "rna,dna")
	}
}

func TestUpdateDocumentRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.UpdateDocumentRequest
		wantErr string
	}{
		{name: "empty", req: models.UpdateDocumentRequest{}},
		{name: "title", req: models.UpdateDocumentRequest{Title: ptr("New")}},
		{name: "blank title", req: models.UpdateDocumentRequest{Title: ptr(" ")}, wantErr: "title"},
		{name: "reserved metadata", req: models.UpdateDocumentRequest{Metadata: map[string]any{"lw.x": 1}}, wantErr: "reserved prefix"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr != "" {
				assertErrorContains(t, err, tc.wantErr)
				return
			}
			assertNoError(t, err)
		})
	}
}

func TestUpdateDocumentRequest_Apply(t *testing.T) {
	doc := models.Document{Title: "old", Description: "keep", Tags: []string{"a"}}
	req := models.UpdateDocumentRequest{Title: ptr("new"), Tags: []string{"b"}}
	req.Apply(&doc)

	if doc.Title != "new" || doc.Description != "keep" || doc.Tags[0] != "b" {
		t.Errorf("unexpected document after apply: %+v", doc)
	}
}

func TestLinkRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.LinkRequest
		wantErr string
	}{
		{name: "valid", req: models.LinkRequest{TargetType: models.NodeSample, TargetID: "s1", Relation: models.RelDescribes}},
		{name: "missing target id", req: models.LinkRequest{TargetType: models.NodeSample, Relation: models.RelDescribes}, wantErr: "target_id: is required"},
		{name: "unknown type", req: models.LinkRequest{TargetType: "Spaceship", TargetID: "x", Relation: models.RelUses}, wantErr: "unknown node type"},
		{name: "unknown relation", req: models.LinkRequest{TargetType: models.NodeGene, TargetID: "x", Relation: "LIKES"}, wantErr: "unknown relation type"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr != "" {
				assertErrorContains(t, err, tc.wantErr)
				return
			}
			assertNoError(t, err)
		})
	}
}

func TestValidateFilename(t *testing.T) {
	allowed := []string{".fastq.gz", ".csv", ".pdf"}

	tests := []struct {
		name     string
		filename string
		wantErr  string
	}{
		{name: "plain", filename: "plate.csv"},
		{name: "double extension", filename: "reads_R1.FASTQ.GZ"},
		{name: "empty", filename: "", wantErr: "filename: is required"},
		{name: "path separator", filename: "../etc/passwd", wantErr: "path separators"},
		{name: "disallowed", filename: "run.exe", wantErr: "extension not allowed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := models.ValidateFilename(tc.filename, allowed)
			if tc.wantErr != "" {
				assertErrorContains(t, err, tc.wantErr)
				return
			}
			assertNoError(t, err)
		})
	}

	assertNoError(t, models.ValidateFilename("anything.bin", nil))
}

func TestSearchQuery_Validate(t *testing.T) {
	q := models.SearchQuery{Query: "  protocol  "}
	assertNoError(t, q.Validate())

	if q.Limit != models.DefaultSearchLimit {
		t.Errorf("limit = %d, want %d", q.Limit, models.DefaultSearchLimit)
	}

	if q.Query != "protocol" {
		t.Errorf("query = %q, want trimmed", q.Query)
	}

	tooMany := models.SearchQuery{Limit: 101}
	assertErrorContains(t, tooMany.Validate(), "limit")

	badType := models.SearchQuery{NodeTypes: []string{"Spaceship"}}
	assertErrorContains(t, badType.Validate(), "unknown node type")
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]models.Direction{
		"":     models.DirectionBoth,
		"OUT":  models.DirectionOut,
		"in":   models.DirectionIn,
		"both": models.DirectionBoth,
	} {
		got, err := models.ParseDirection(in)
		assertNoError(t, err)

		if got != want {
			t.Errorf("ParseDirection(%q) = %q, want %q", in, got, want)
		}
	}

	_, err := models.ParseDirection("sideways")
	assertErrorContains(t, err, "direction")
}

func TestStableNodeIDs(t *testing.T) {
	if got := models.DocumentNodeID("d1"); got != "document:d1" {
		t.Errorf("DocumentNodeID = %q", got)
	}

	if got := models.VersionNodeID("d1", 3); got != "version:d1:3" {
		t.Errorf("VersionNodeID = %q", got)
	}

	if got := models.StableNodeID(models.NodeProject, "42"); got != "project:42" {
		t.Errorf("StableNodeID = %q", got)
	}
}

func TestEvent_Validate(t *testing.T) {
	doc := &models.Document{ID: "d1"}

	created := models.NewEvent(models.EventDocumentCreated, doc)
	assertErrorContains(t, created.Validate(), "requires document and version")

	created.Version = &models.Version{DocumentID: "d1", Number: 1}
	assertNoError(t, created.Validate())

	unknown := models.NewEvent("document.exploded", doc)
	assertErrorContains(t, unknown.Validate(), "unknown event type")
}
