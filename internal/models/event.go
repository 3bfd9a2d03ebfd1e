package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a ledger change.
type EventType string

// Ledger event types.
const (
	EventDocumentCreated EventType = "document.created"
	EventVersionAdded    EventType = "version.added"
	EventDocumentUpdated EventType = "document.updated"
	EventDocumentLinked  EventType = "document.linked"
	EventDocumentDeleted EventType = "document.deleted"
)

// Event is emitted by the ledger after a successful commit.
// Document is a snapshot taken at commit time; Version is set for created and
// version events; Link is set for linked events.
type Event struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	DocumentID string       `json:"document_id"`
	Document   *Document    `json:"document,omitempty"`
	Version    *Version     `json:"version,omitempty"`
	Link       *LinkRequest `json:"link,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewEvent stamps a new event with an id and time.
func NewEvent(t EventType, doc *Document) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}

	if doc != nil {
		ev.DocumentID = doc.ID
		ev.Document = doc
	}

	return ev
}

// Validate checks that the event carries the fields its type requires.
func (e *Event) Validate() error {
	if e.DocumentID == "" {
		return ErrFieldRequired("document_id")
	}

	switch e.Type {
	case EventDocumentCreated:
		if e.Document == nil || e.Version == nil {
			return Invalid("event", "document.created requires document and version")
		}
	case EventVersionAdded:
		if e.Version == nil {
			return Invalid("event", "version.added requires version")
		}
	case EventDocumentUpdated:
		if e.Document == nil {
			return Invalid("event", "document.updated requires document")
		}
	case EventDocumentLinked:
		if e.Link == nil {
			return Invalid("event", "document.linked requires link")
		}
	case EventDocumentDeleted:
	default:
		return Invalid("type", "unknown event type "+string(e.Type))
	}

	return nil
}
