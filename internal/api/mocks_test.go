package api_test

import (
	"context"

	"github.com/labweave/labweave/internal/models"
)

// mockLedger implements api.DocumentService for testing. Unset functions panic.
type mockLedger struct {
	createFn      func(ctx context.Context, req models.CreateDocumentRequest, file models.FileUpload) (*models.Document, *models.Version, error)
	addVersionFn  func(ctx context.Context, id string, file models.FileUpload, comment, createdBy string) (*models.Version, error)
	restoreFn     func(ctx context.Context, id string, n int, req models.RestoreRequest, createdBy string) (*models.Version, error)
	getFn         func(ctx context.Context, id string) (*models.Document, error)
	listFn        func(ctx context.Context, f models.DocumentFilter, limit, offset int) ([]models.Document, bool, error)
	updateFn      func(ctx context.Context, id string, req models.UpdateDocumentRequest) (*models.Document, error)
	deleteFn      func(ctx context.Context, id string) error
	linkFn        func(ctx context.Context, id string, req models.LinkRequest) error
	getVersionFn  func(ctx context.Context, id string, n int) (*models.Version, error)
	listVersionFn func(ctx context.Context, id string) ([]models.Version, error)
	openFn        func(ctx context.Context, id string, n int) (*models.Version, []byte, error)
	openCurrentFn func(ctx context.Context, id string) (*models.Version, []byte, error)
	gcFn          func(ctx context.Context, dryRun bool) (*models.GCResult, error)
}

func (m *mockLedger) CreateDocument(ctx context.Context, req models.CreateDocumentRequest, file models.FileUpload) (*models.Document, *models.Version, error) {
	return m.createFn(ctx, req, file)
}

func (m *mockLedger) AddVersion(ctx context.Context, id string, file models.FileUpload, comment, createdBy string) (*models.Version, error) {
	return m.addVersionFn(ctx, id, file, comment, createdBy)
}

func (m *mockLedger) RestoreVersion(ctx context.Context, id string, n int, req models.RestoreRequest, createdBy string) (*models.Version, error) {
	return m.restoreFn(ctx, id, n, req, createdBy)
}

func (m *mockLedger) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return m.getFn(ctx, id)
}

func (m *mockLedger) ListDocuments(ctx context.Context, f models.DocumentFilter, limit, offset int) ([]models.Document, bool, error) {
	return m.listFn(ctx, f, limit, offset)
}

func (m *mockLedger) UpdateDocument(ctx context.Context, id string, req models.UpdateDocumentRequest) (*models.Document, error) {
	return m.updateFn(ctx, id, req)
}

func (m *mockLedger) DeleteDocument(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockLedger) LinkDocument(ctx context.Context, id string, req models.LinkRequest) error {
	return m.linkFn(ctx, id, req)
}

func (m *mockLedger) GetVersion(ctx context.Context, id string, n int) (*models.Version, error) {
	return m.getVersionFn(ctx, id, n)
}

func (m *mockLedger) ListVersions(ctx context.Context, id string) ([]models.Version, error) {
	return m.listVersionFn(ctx, id)
}

func (m *mockLedger) OpenVersion(ctx context.Context, id string, n int) (*models.Version, []byte, error) {
	return m.openFn(ctx, id, n)
}

func (m *mockLedger) OpenCurrent(ctx context.Context, id string) (*models.Version, []byte, error) {
	return m.openCurrentFn(ctx, id)
}

func (m *mockLedger) CollectGarbage(ctx context.Context, dryRun bool) (*models.GCResult, error) {
	return m.gcFn(ctx, dryRun)
}

// mockGraph implements api.GraphQueryService for testing.
type mockGraph struct {
	getNodeFn   func(ctx context.Context, id string) (*models.Node, error)
	neighborsFn func(ctx context.Context, id string, q models.NeighborQuery) (*models.NeighborResult, error)
	pathFn      func(ctx context.Context, from, to string, maxDepth int) (*models.Path, error)
	relatedFn   func(ctx context.Context, id string, depth int) (*models.TraverseResult, error)
	searchFn    func(ctx context.Context, q models.SearchQuery) ([]models.ScoredNode, error)
	deleteFn    func(ctx context.Context, id string) error
}

func (m *mockGraph) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return m.getNodeFn(ctx, id)
}

func (m *mockGraph) Neighbors(ctx context.Context, id string, q models.NeighborQuery) (*models.NeighborResult, error) {
	return m.neighborsFn(ctx, id, q)
}

func (m *mockGraph) FindPath(ctx context.Context, from, to string, maxDepth int) (*models.Path, error) {
	return m.pathFn(ctx, from, to, maxDepth)
}

func (m *mockGraph) Related(ctx context.Context, id string, depth int) (*models.TraverseResult, error) {
	return m.relatedFn(ctx, id, depth)
}

func (m *mockGraph) Search(ctx context.Context, q models.SearchQuery) ([]models.ScoredNode, error) {
	return m.searchFn(ctx, q)
}

func (m *mockGraph) DeleteNode(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

// mockResync implements api.ResyncService for testing.
type mockResync struct {
	resyncFn    func(ctx context.Context, id string) error
	resyncAllFn func(ctx context.Context) (int, error)
}

func (m *mockResync) Resync(ctx context.Context, id string) error {
	return m.resyncFn(ctx, id)
}

func (m *mockResync) ResyncAll(ctx context.Context) (int, error) {
	return m.resyncAllFn(ctx)
}

// pingFunc adapts a function to api.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
