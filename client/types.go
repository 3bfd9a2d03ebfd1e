package client

import (
	"io"
	"time"
)

// Document is the mutable head record of a versioned document.
type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	DocumentType   string         `json:"document_type,omitempty"`
	ProjectID      string         `json:"project_id,omitempty"`
	ExperimentID   string         `json:"experiment_id,omitempty"`
	Tags           []string       `json:"tags"`
	Metadata       map[string]any `json:"metadata"`
	CurrentVersion int            `json:"current_version"`
	Revision       int64          `json:"revision"`
	CreatedBy      string         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Version is an immutable snapshot of a document's content.
type Version struct {
	DocumentID   string    `json:"document_id"`
	Number       int       `json:"version_number"`
	ContentHash  string    `json:"content_hash"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	RestoredFrom *int      `json:"restored_from,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// File is an upload: a filename and its bytes.
type File struct {
	Name    string
	Content io.Reader
}

// CreateDocumentRequest carries the metadata sent with the first upload.
type CreateDocumentRequest struct {
	Title        string
	Description  string
	DocumentType string
	ProjectID    string
	ExperimentID string
	Tags         []string
	// Metadata is sent as a JSON object string.
	Metadata map[string]any
}

// UpdateDocumentRequest is the payload for patching document metadata.
type UpdateDocumentRequest struct {
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	DocumentType *string        `json:"document_type,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// LinkRequest connects a document to another graph entity.
type LinkRequest struct {
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Relation   string         `json:"relation"`
	Properties map[string]any `json:"properties,omitempty"`
}

// CreateResult is returned when a document is created with its first version.
type CreateResult struct {
	Document Document `json:"document"`
	Version  Version  `json:"version"`
}

// ContentInfo describes downloaded content.
type ContentInfo struct {
	ContentHash string
	Version     string
	ContentType string
	Disposition string
	Size        int64
}

// DocumentListOptions holds filters and pagination for listing documents.
type DocumentListOptions struct {
	ProjectID    string
	ExperimentID string
	DocumentType string
	Tag          string
	Limit        int
	Offset       int
}

// Node represents a vertex in the knowledge graph.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ScoredNode pairs a Node with its search relevance.
type ScoredNode struct {
	Node
	Score float64 `json:"score"`
}

// Edge represents a directed relationship between two nodes.
type Edge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Relation   string         `json:"relation"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Subgraph holds nodes and edges returned by neighbor and related queries.
type Subgraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Path is an ordered walk between two nodes.
type Path struct {
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
	Length int    `json:"length"`
}

// NeighborOptions filters a neighbor query. Direction is "in", "out" or "both".
type NeighborOptions struct {
	Direction string
	Relation  string
	Limit     int
}

// SearchOptions holds parameters for graph search.
type SearchOptions struct {
	Types      []string
	Properties map[string]string
	Limit      int
}

// GCResult reports an orphaned-content sweep.
type GCResult struct {
	Scanned  int   `json:"scanned"`
	Orphaned int   `json:"orphaned"`
	Deleted  int   `json:"deleted"`
	Bytes    int64 `json:"bytes"`
	DryRun   bool  `json:"dry_run"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	WSClients     int     `json:"ws_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadyResponse is returned by the readiness endpoint.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
