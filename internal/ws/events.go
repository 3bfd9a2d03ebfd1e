package ws

import (
	"encoding/json"
	"time"

	"github.com/labweave/labweave/internal/models"
)

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type       string          `json:"type"`
	ID         uint64          `json:"id"`
	DocumentID string          `json:"document_id"`
	ProjectID  string          `json:"project_id,omitempty"`
	Data       json.RawMessage `json:"data"`
	Time       time.Time       `json:"time"`
}

// Summary is the payload of a ledger event as sent to clients. It carries
// identifiers only; clients fetch the full document over HTTP.
type Summary struct {
	EventID      string `json:"event_id"`
	Title        string `json:"title,omitempty"`
	Version      int    `json:"version,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"`
	RestoredFrom *int   `json:"restored_from,omitempty"`
	LinkTarget   string `json:"link_target,omitempty"`
}

// Filter restricts which events a client receives. Empty fields match all.
type Filter struct {
	DocumentID string `json:"document_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
}

// Matches reports whether evt passes the filter.
func (f Filter) Matches(evt *Event) bool {
	if f.DocumentID != "" && f.DocumentID != evt.DocumentID {
		return false
	}

	return f.ProjectID == "" || f.ProjectID == evt.ProjectID
}

// SubscribeMsg is sent by the client to set its filter and request replay.
type SubscribeMsg struct {
	Type        string `json:"type"`
	LastEventID uint64 `json:"last_event_id"`
	Filter
}

// ResetMsg tells the client to do a full refresh (requested events too old).
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func summarize(ev models.Event) Summary {
	s := Summary{EventID: ev.ID}

	if ev.Document != nil {
		s.Title = ev.Document.Title
	}

	if ev.Version != nil {
		s.Version = ev.Version.Number
		s.ContentHash = ev.Version.ContentHash
		s.RestoredFrom = ev.Version.RestoredFrom
	}

	if ev.Link != nil {
		s.LinkTarget = models.StableNodeID(ev.Link.TargetType, ev.Link.TargetID)
	}

	return s
}
