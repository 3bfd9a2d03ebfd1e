// Package memstore provides in-memory implementations of the ledger and graph
// stores for single-process deployments and tests.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *LedgerStore must satisfy domain.LedgerStore.
var _ domain.LedgerStore = (*LedgerStore)(nil)

// docEntry holds one document and its version chain. Its mutex is the
// per-document serialization point for appends.
type docEntry struct {
	mu       sync.Mutex
	doc      models.Document
	versions []models.Version
	gone     bool
}

// LedgerStore keeps documents in memory.
type LedgerStore struct {
	mu      sync.RWMutex
	docs    map[string]*docEntry
	deleted map[string]bool
	now     func() time.Time
}

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		docs:    make(map[string]*docEntry),
		deleted: make(map[string]bool),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func copyDocument(d *models.Document) *models.Document {
	c := *d
	c.Tags = slices.Clone(d.Tags)
	c.Metadata = maps.Clone(d.Metadata)

	return &c
}

func (s *LedgerStore) entry(documentID string) *docEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.docs[documentID]
}

// CreateDocument stores the document together with version 1.
func (s *LedgerStore) CreateDocument(
	ctx context.Context,
	doc models.Document,
	first models.VersionDraft,
) (*models.Document, *models.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists || s.deleted[doc.ID] {
		return nil, nil, models.ErrDuplicateKey
	}

	at := s.now()
	doc.CurrentVersion = 1
	doc.Revision = 1
	doc.CreatedAt = at
	doc.UpdatedAt = at

	if doc.Tags == nil {
		doc.Tags = []string{}
	}

	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	v := first.Build(doc.ID, 1, at)
	e := &docEntry{doc: *copyDocument(&doc), versions: []models.Version{v}}
	s.docs[doc.ID] = e

	return copyDocument(&e.doc), &v, nil
}

// AppendVersion assigns the next version number under the document's lock.
func (s *LedgerStore) AppendVersion(
	ctx context.Context,
	documentID string,
	draft models.VersionDraft,
) (*models.Document, *models.Version, error) {
	e := s.entry(documentID)
	if e == nil {
		return nil, nil, models.ErrDocumentNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return nil, nil, models.ErrDocumentNotFound
	}

	// Nothing is committed if the caller gave up while waiting for the lock.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	at := s.now()
	v := draft.Build(documentID, e.doc.CurrentVersion+1, at)
	e.versions = append(e.versions, v)
	e.doc.CurrentVersion = v.Number
	e.doc.Revision++
	e.doc.UpdatedAt = at

	return copyDocument(&e.doc), &v, nil
}

// GetDocument returns a copy of the document.
func (s *LedgerStore) GetDocument(_ context.Context, documentID string) (*models.Document, error) {
	e := s.entry(documentID)
	if e == nil {
		return nil, models.ErrDocumentNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return nil, models.ErrDocumentNotFound
	}

	return copyDocument(&e.doc), nil
}

// ListDocuments returns documents newest first, then by id.
func (s *LedgerStore) ListDocuments(
	_ context.Context,
	filter models.DocumentFilter,
	limit, offset int,
) ([]models.Document, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	entries := make([]*docEntry, 0, len(s.docs))
	for _, e := range s.docs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	docs := make([]models.Document, 0, len(entries))

	for _, e := range entries {
		e.mu.Lock()
		if !e.gone && filter.Matches(&e.doc) {
			docs = append(docs, *copyDocument(&e.doc))
		}
		e.mu.Unlock()
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}

		return docs[i].ID < docs[j].ID
	})

	if offset >= len(docs) {
		return []models.Document{}, false, nil
	}

	docs = docs[offset:]
	hasMore := len(docs) > limit

	if hasMore {
		docs = docs[:limit]
	}

	return docs, hasMore, nil
}

// UpdateDocument patches document metadata.
func (s *LedgerStore) UpdateDocument(
	_ context.Context,
	documentID string,
	req models.UpdateDocumentRequest,
) (*models.Document, error) {
	e := s.entry(documentID)
	if e == nil {
		return nil, models.ErrDocumentNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return nil, models.ErrDocumentNotFound
	}

	if !req.Empty() {
		req.Apply(&e.doc)
		e.doc.Tags = slices.Clone(e.doc.Tags)
		e.doc.Metadata = maps.Clone(e.doc.Metadata)
		e.doc.Revision++
		e.doc.UpdatedAt = s.now()
	}

	return copyDocument(&e.doc), nil
}

// DeleteDocument removes the document and its versions. The id stays reserved.
func (s *LedgerStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	e, ok := s.docs[documentID]
	if ok {
		delete(s.docs, documentID)
		s.deleted[documentID] = true
	}
	s.mu.Unlock()

	if !ok {
		return models.ErrDocumentNotFound
	}

	e.mu.Lock()
	e.gone = true
	e.mu.Unlock()

	return nil
}

// GetVersion returns one version.
func (s *LedgerStore) GetVersion(_ context.Context, documentID string, number int) (*models.Version, error) {
	e := s.entry(documentID)
	if e == nil {
		return nil, models.ErrDocumentNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return nil, models.ErrDocumentNotFound
	}

	// Versions are contiguous from 1, so number n lives at index n-1.
	if number < 1 || number > len(e.versions) {
		return nil, models.ErrVersionNotFound
	}

	v := e.versions[number-1]

	return &v, nil
}

// ListVersions returns the chain in ascending order.
func (s *LedgerStore) ListVersions(_ context.Context, documentID string) ([]models.Version, error) {
	e := s.entry(documentID)
	if e == nil {
		return nil, models.ErrDocumentNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return nil, models.ErrDocumentNotFound
	}

	return slices.Clone(e.versions), nil
}

// HashReferenced reports whether any live version points at hash.
func (s *LedgerStore) HashReferenced(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	entries := make([]*docEntry, 0, len(s.docs))
	for _, e := range s.docs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		for _, v := range e.versions {
			if v.ContentHash == hash && !e.gone {
				e.mu.Unlock()
				return true, nil
			}
		}
		e.mu.Unlock()
	}

	return false, nil
}

// Ping always succeeds.
func (s *LedgerStore) Ping(context.Context) error { return nil }
