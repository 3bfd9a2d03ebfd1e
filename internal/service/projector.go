package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
)

// Document node status values.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// metaPrefix namespaces caller metadata copied onto document nodes.
const metaPrefix = "meta."

// Projector turns ledger events into graph upserts. Every write is keyed by a
// stable id, so applying the same event twice leaves the graph unchanged.
type Projector struct {
	graph domain.GraphStore
	log   *logrus.Logger
}

// NewProjector creates a Projector.
func NewProjector(graph domain.GraphStore, log *logrus.Logger) *Projector {
	return &Projector{graph: graph, log: log}
}

// Apply projects one event. Malformed events return a validation error; graph
// failures are wrapped in models.ErrGraphSync.
func (p *Projector) Apply(ctx context.Context, ev models.Event) (err error) {
	if err := ev.Validate(); err != nil {
		return err
	}

	ctx, span := startSpan(ctx, "projector.Apply",
		attribute.String("event_type", string(ev.Type)), attribute.String("document_id", ev.DocumentID))
	defer func() { endSpan(span, err) }()

	switch ev.Type {
	case models.EventDocumentCreated:
		err = p.documentCreated(ctx, ev)
	case models.EventVersionAdded:
		err = p.versionAdded(ctx, ev)
	case models.EventDocumentUpdated:
		err = p.documentUpdated(ctx, ev)
	case models.EventDocumentLinked:
		err = p.documentLinked(ctx, ev)
	case models.EventDocumentDeleted:
		err = p.documentDeleted(ctx, ev)
	}

	if err != nil {
		return fmt.Errorf("%w: %s for document %s: %w", models.ErrGraphSync, ev.Type, ev.DocumentID, err)
	}

	metrics.ProjectionApplied.WithLabelValues(string(ev.Type)).Inc()
	p.log.WithFields(logrus.Fields{
		"event_id":    ev.ID,
		"event_type":  ev.Type,
		"document_id": ev.DocumentID,
	}).Debug("event projected")

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func documentProperties(doc *models.Document) map[string]any {
	props := map[string]any{
		"title":         doc.Title,
		"description":   doc.Description,
		"document_type": doc.DocumentType,
		"tags":          doc.Tags,
		"project_id":    doc.ProjectID,
		"experiment_id": doc.ExperimentID,
		"created_at":    formatTime(doc.CreatedAt),
		"updated_at":    formatTime(doc.UpdatedAt),
	}

	for k, v := range doc.Metadata {
		props[metaPrefix+k] = v
	}

	return props
}

func versionProperties(v *models.Version) map[string]any {
	props := map[string]any{
		"document_id":    v.DocumentID,
		"version_number": v.Number,
		"content_hash":   v.ContentHash,
		"filename":       v.Filename,
		"size":           v.Size,
		"mime_type":      v.MimeType,
		"comment":        v.Comment,
		"created_by":     v.CreatedBy,
		"created_at":     formatTime(v.CreatedAt),
	}

	if v.RestoredFrom != nil {
		props["restored_from"] = *v.RestoredFrom
	}

	return props
}

// intProperty reads a numeric property regardless of how the store decoded it.
func intProperty(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// existingDocument returns the current document node, or nil if it has not
// been projected yet.
func (p *Projector) existingDocument(ctx context.Context, documentID string) (*models.Node, error) {
	n, err := p.graph.GetNode(ctx, models.DocumentNodeID(documentID))
	if errors.Is(err, models.ErrNodeNotFound) {
		return nil, nil
	}

	return n, err
}

// upsertDocument writes the document snapshot and reports whether it was
// current. A snapshot older than the revision already on the node only moves
// the version pointer. The pointer only moves forward, and a deleted node
// stays deleted.
func (p *Projector) upsertDocument(ctx context.Context, doc *models.Document, v *models.Version) (bool, error) {
	existing, err := p.existingDocument(ctx, doc.ID)
	if err != nil {
		return false, err
	}

	if existing != nil && existing.Properties["status"] == StatusDeleted {
		return false, nil
	}

	stale := existing != nil && int64(intProperty(existing.Properties, "revision")) > doc.Revision

	props := map[string]any{}
	if !stale {
		props = documentProperties(doc)
		props["revision"] = doc.Revision
	}

	if existing == nil {
		props["status"] = StatusActive
	}

	if v != nil && (existing == nil || v.Number >= intProperty(existing.Properties, "current_version")) {
		props["current_version"] = v.Number
		props["content_hash"] = v.ContentHash
		props["filename"] = v.Filename
	}

	if stale {
		if len(props) == 0 {
			return false, nil
		}

		_, err = p.graph.UpsertNode(ctx, models.NodeUpsert{
			ID:         models.DocumentNodeID(doc.ID),
			Type:       models.NodeDocument,
			Label:      existing.Label,
			Properties: props,
		})

		return false, err
	}

	_, err = p.graph.UpsertNode(ctx, models.NodeUpsert{
		ID:         models.DocumentNodeID(doc.ID),
		Type:       models.NodeDocument,
		Label:      doc.Title,
		Properties: props,
	})

	return err == nil, err
}

// ensureDocumentNode makes sure a document node exists without overwriting it.
func (p *Projector) ensureDocumentNode(ctx context.Context, documentID string) error {
	_, err := p.graph.UpsertNode(ctx, models.NodeUpsert{
		ID:          models.DocumentNodeID(documentID),
		Type:        models.NodeDocument,
		Label:       "Document " + documentID,
		Properties:  map[string]any{"status": StatusActive},
		Placeholder: true,
	})

	return err
}

// link upserts a placeholder target node and the edge from source to it.
func (p *Projector) link(
	ctx context.Context, source, targetType, targetID, relation string, props map[string]any,
) error {
	target := models.StableNodeID(targetType, targetID)

	if _, err := p.graph.UpsertNode(ctx, models.NodeUpsert{
		ID:          target,
		Type:        targetType,
		Label:       targetType + " " + targetID,
		Properties:  map[string]any{"source_id": targetID},
		Placeholder: true,
	}); err != nil {
		return err
	}

	_, err := p.graph.UpsertEdge(ctx, models.EdgeUpsert{
		Source:     source,
		Target:     target,
		Relation:   relation,
		Properties: props,
	})

	return err
}

// documentLinks adds the edges implied by the document's own fields.
func (p *Projector) documentLinks(ctx context.Context, doc *models.Document) error {
	docNode := models.DocumentNodeID(doc.ID)

	if doc.CreatedBy != "" {
		if err := p.link(ctx, docNode, models.NodeUser, doc.CreatedBy, models.RelCreatedBy, nil); err != nil {
			return err
		}
	}

	if doc.ProjectID != "" {
		if err := p.link(ctx, docNode, models.NodeProject, doc.ProjectID, models.RelBelongsTo, nil); err != nil {
			return err
		}
	}

	if doc.ExperimentID != "" {
		if err := p.link(ctx, docNode, models.NodeExperiment, doc.ExperimentID, models.RelBelongsTo, nil); err != nil {
			return err
		}
	}

	return nil
}

func (p *Projector) upsertVersion(ctx context.Context, title string, v *models.Version) error {
	label := fmt.Sprintf("Version %d", v.Number)
	if title != "" {
		label = title + " v" + strconv.Itoa(v.Number)
	}

	versionNode := models.VersionNodeID(v.DocumentID, v.Number)

	if _, err := p.graph.UpsertNode(ctx, models.NodeUpsert{
		ID:         versionNode,
		Type:       models.NodeDocumentVersion,
		Label:      label,
		Properties: versionProperties(v),
	}); err != nil {
		return err
	}

	if _, err := p.graph.UpsertEdge(ctx, models.EdgeUpsert{
		Source:   versionNode,
		Target:   models.DocumentNodeID(v.DocumentID),
		Relation: models.RelVersionOf,
	}); err != nil {
		return err
	}

	if v.RestoredFrom == nil {
		return nil
	}

	origin := models.VersionNodeID(v.DocumentID, *v.RestoredFrom)

	if _, err := p.graph.UpsertNode(ctx, models.NodeUpsert{
		ID:          origin,
		Type:        models.NodeDocumentVersion,
		Label:       fmt.Sprintf("Version %d", *v.RestoredFrom),
		Properties:  map[string]any{"document_id": v.DocumentID, "version_number": *v.RestoredFrom},
		Placeholder: true,
	}); err != nil {
		return err
	}

	_, err := p.graph.UpsertEdge(ctx, models.EdgeUpsert{
		Source:     versionNode,
		Target:     origin,
		Relation:   models.RelDerivedFrom,
		Properties: map[string]any{"kind": "restore"},
	})

	return err
}

func (p *Projector) documentCreated(ctx context.Context, ev models.Event) error {
	current, err := p.upsertDocument(ctx, ev.Document, ev.Version)
	if err != nil {
		return err
	}

	if err := p.upsertVersion(ctx, ev.Document.Title, ev.Version); err != nil {
		return err
	}

	if !current {
		return nil
	}

	return p.documentLinks(ctx, ev.Document)
}

func (p *Projector) versionAdded(ctx context.Context, ev models.Event) error {
	title := ""

	if ev.Document != nil {
		title = ev.Document.Title
		if _, err := p.upsertDocument(ctx, ev.Document, ev.Version); err != nil {
			return err
		}
	} else if err := p.ensureDocumentNode(ctx, ev.DocumentID); err != nil {
		return err
	}

	return p.upsertVersion(ctx, title, ev.Version)
}

func (p *Projector) documentUpdated(ctx context.Context, ev models.Event) error {
	current, err := p.upsertDocument(ctx, ev.Document, nil)
	if err != nil || !current {
		return err
	}

	return p.documentLinks(ctx, ev.Document)
}

func (p *Projector) documentLinked(ctx context.Context, ev models.Event) error {
	if err := p.ensureDocumentNode(ctx, ev.DocumentID); err != nil {
		return err
	}

	l := ev.Link

	return p.link(ctx, models.DocumentNodeID(ev.DocumentID), l.TargetType, l.TargetID, l.Relation, l.Properties)
}

func (p *Projector) documentDeleted(ctx context.Context, ev models.Event) error {
	existing, err := p.existingDocument(ctx, ev.DocumentID)
	if err != nil {
		return err
	}

	label := "Document " + ev.DocumentID
	if existing != nil {
		label = existing.Label
	}

	_, err = p.graph.UpsertNode(ctx, models.NodeUpsert{
		ID:    models.DocumentNodeID(ev.DocumentID),
		Type:  models.NodeDocument,
		Label: label,
		Properties: map[string]any{
			"status":     StatusDeleted,
			"deleted_at": formatTime(ev.OccurredAt),
		},
	})

	return err
}
