// Package domain defines the canonical interfaces shared between the service
// layer, its storage backends, and the API layer. Consumers should depend on
// these interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/labweave/labweave/internal/models"
)

// LedgerStore persists documents and their version chains.
// Implementations serialize AppendVersion per document so version numbers are
// contiguous, and commit CreateDocument together with version 1.
type LedgerStore interface {
	CreateDocument(ctx context.Context, doc models.Document, first models.VersionDraft) (*models.Document, *models.Version, error)
	AppendVersion(ctx context.Context, documentID string, draft models.VersionDraft) (*models.Document, *models.Version, error)
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.DocumentFilter, limit, offset int) ([]models.Document, bool, error)
	UpdateDocument(ctx context.Context, documentID string, req models.UpdateDocumentRequest) (*models.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error
	GetVersion(ctx context.Context, documentID string, number int) (*models.Version, error)
	ListVersions(ctx context.Context, documentID string) ([]models.Version, error)
	HashReferenced(ctx context.Context, hash string) (bool, error)
	Ping(ctx context.Context) error
}

// GraphStore persists the graph projection.
type GraphStore interface {
	UpsertNode(ctx context.Context, n models.NodeUpsert) (*models.Node, error)
	UpsertEdge(ctx context.Context, e models.EdgeUpsert) (*models.Edge, error)
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	GetNodes(ctx context.Context, nodeIDs []string) ([]models.Node, error)
	// EdgesOf returns edges touching any of nodeIDs in the given direction,
	// optionally restricted to one relation.
	EdgesOf(ctx context.Context, nodeIDs []string, dir models.Direction, relation string) ([]models.Edge, error)
	SearchNodes(ctx context.Context, q models.SearchQuery) ([]models.ScoredNode, error)
	DeleteNode(ctx context.Context, nodeID string) error
	Ping(ctx context.Context) error
}

// EventPublisher receives ledger events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// LedgerService defines the document ledger operations exposed to callers.
type LedgerService interface {
	CreateDocument(ctx context.Context, req models.CreateDocumentRequest, file models.FileUpload) (*models.Document, *models.Version, error)
	AddVersion(ctx context.Context, documentID string, file models.FileUpload, comment, createdBy string) (*models.Version, error)
	RestoreVersion(ctx context.Context, documentID string, number int, req models.RestoreRequest, createdBy string) (*models.Version, error)
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.DocumentFilter, limit, offset int) ([]models.Document, bool, error)
	UpdateDocument(ctx context.Context, documentID string, req models.UpdateDocumentRequest) (*models.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error
	LinkDocument(ctx context.Context, documentID string, req models.LinkRequest) error
	GetVersion(ctx context.Context, documentID string, number int) (*models.Version, error)
	ListVersions(ctx context.Context, documentID string) ([]models.Version, error)
	OpenVersion(ctx context.Context, documentID string, number int) (*models.Version, []byte, error)
	OpenCurrent(ctx context.Context, documentID string) (*models.Version, []byte, error)
	CollectGarbage(ctx context.Context, dryRun bool) (*models.GCResult, error)
}

// GraphService defines graph read and cleanup operations.
type GraphService interface {
	GetNode(ctx context.Context, nodeID string) (*models.Node, error)
	Neighbors(ctx context.Context, nodeID string, q models.NeighborQuery) (*models.NeighborResult, error)
	FindPath(ctx context.Context, startID, endID string, maxDepth int) (*models.Path, error)
	Related(ctx context.Context, nodeID string, depth int) (*models.TraverseResult, error)
	Search(ctx context.Context, q models.SearchQuery) ([]models.ScoredNode, error)
	DeleteNode(ctx context.Context, nodeID string) error
}

// Resyncer replays ledger state into the graph.
type Resyncer interface {
	Resync(ctx context.Context, documentID string) error
	ResyncAll(ctx context.Context) (int, error)
}
