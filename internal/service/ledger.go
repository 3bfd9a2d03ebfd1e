// Package service provides business logic between API handlers and data stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/labweave/labweave/internal/blob"
	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *Ledger must satisfy domain.LedgerService.
var _ domain.LedgerService = (*Ledger)(nil)

// Upload and listing limits.
const (
	DefaultMaxUploadBytes = 100 << 20
	maxCommentLength      = 1000
	defaultListLimit      = 50
	maxListLimit          = 1000
)

// DefaultAllowedExtensions are the file types accepted when none are configured.
var DefaultAllowedExtensions = []string{
	".fastq", ".fq", ".fastq.gz", ".fq.gz",
	".fasta", ".fa", ".fna", ".fasta.gz",
	".sam", ".bam", ".vcf", ".vcf.gz",
	".bed", ".gff", ".gtf",
	".nwk", ".tree", ".nxs",
	".tsv", ".csv", ".txt", ".pdf", ".md", ".json",
}

// LedgerConfig holds upload limits for a Ledger.
type LedgerConfig struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// Ledger owns document version chains. Content goes to the blob store, records
// to the LedgerStore, and events are published once a change is committed.
type Ledger struct {
	store LedgerStore
	blobs *blob.Store
	pub   domain.EventPublisher
	log   *logrus.Logger
	cfg   LedgerConfig

	// Uploads hold the read side from content put until commit. Garbage
	// collection takes the write side. The lock is per process, so GC
	// assumes no other replica is uploading while it runs.
	gcMu sync.RWMutex
}

// LedgerStore is the data-access interface Ledger depends on.
type LedgerStore = domain.LedgerStore

// NewLedger creates a Ledger. pub may be nil.
func NewLedger(
	store LedgerStore,
	blobs *blob.Store,
	pub domain.EventPublisher,
	log *logrus.Logger,
	cfg LedgerConfig,
) *Ledger {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = DefaultAllowedExtensions
	}

	return &Ledger{store: store, blobs: blobs, pub: pub, log: log, cfg: cfg}
}

func (s *Ledger) checkFile(file models.FileUpload) error {
	if err := models.ValidateFilename(file.Filename, s.cfg.AllowedExtensions); err != nil {
		return err
	}

	if len(file.Data) == 0 {
		return models.Invalid("file", "must not be empty")
	}

	if int64(len(file.Data)) > s.cfg.MaxUploadBytes {
		return fmt.Errorf("file of %d bytes exceeds limit of %d: %w", len(file.Data), s.cfg.MaxUploadBytes, models.ErrTooLarge)
	}

	return nil
}

func detectMimeType(file models.FileUpload) string {
	if file.MimeType != "" && file.MimeType != "application/octet-stream" {
		return file.MimeType
	}

	if t := mime.TypeByExtension(filepath.Ext(file.Filename)); t != "" {
		return t
	}

	return http.DetectContentType(file.Data)
}

// withContent stores data and runs commit while garbage collection is held off.
func (s *Ledger) withContent(ctx context.Context, data []byte, commit func(blob.Ref) error) error {
	s.gcMu.RLock()
	defer s.gcMu.RUnlock()

	ref, err := s.blobs.Put(ctx, data)
	if err != nil {
		return fmt.Errorf("storing content: %w", err)
	}

	return commit(ref)
}

// publish hands ev to the publisher. Failures never reach the caller: the
// change is already committed and Resync repairs the graph.
func (s *Ledger) publish(ctx context.Context, ev models.Event) {
	if s.pub == nil {
		return
	}

	if err := s.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		metrics.EventPublishFailures.Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"event_id":    ev.ID,
			"event_type":  ev.Type,
			"document_id": ev.DocumentID,
		}).Error("publishing ledger event")
	}
}

// CreateDocument stores the file and creates the document with version 1.
func (s *Ledger) CreateDocument(
	ctx context.Context, req models.CreateDocumentRequest, file models.FileUpload,
) (doc *models.Document, v *models.Version, err error) {
	ctx, span := startSpan(ctx, "ledger.CreateDocument", attribute.String("filename", file.Filename))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	if err := s.checkFile(file); err != nil {
		return nil, nil, err
	}

	draftDoc := models.Document{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Description:  req.Description,
		DocumentType: req.DocumentType,
		ProjectID:    req.ProjectID,
		ExperimentID: req.ExperimentID,
		Tags:         req.Tags,
		Metadata:     req.Metadata,
		CreatedBy:    req.CreatedBy,
	}

	err = s.withContent(ctx, file.Data, func(ref blob.Ref) error {
		var cerr error
		doc, v, cerr = s.store.CreateDocument(ctx, draftDoc, models.VersionDraft{
			ContentHash: ref.Hash,
			Filename:    file.Filename,
			Size:        ref.Size,
			MimeType:    detectMimeType(file),
			CreatedBy:   req.CreatedBy,
		})

		return cerr
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.LedgerOperations.WithLabelValues("create").Inc()
	s.log.WithFields(logrus.Fields{
		"document_id":  doc.ID,
		"content_hash": v.ContentHash,
		"size":         v.Size,
	}).Info("document created")

	ev := models.NewEvent(models.EventDocumentCreated, doc)
	ev.Version = v
	s.publish(ctx, ev)

	return doc, v, nil
}

// AddVersion appends a new version with fresh content.
func (s *Ledger) AddVersion(
	ctx context.Context, documentID string, file models.FileUpload, comment, createdBy string,
) (v *models.Version, err error) {
	ctx, span := startSpan(ctx, "ledger.AddVersion", attribute.String("document_id", documentID))
	defer func() { endSpan(span, err) }()

	if len(comment) > maxCommentLength {
		return nil, models.ErrFieldTooLong("comment", maxCommentLength)
	}

	if err := s.checkFile(file); err != nil {
		return nil, err
	}

	// Unknown documents are rejected before any bytes are written.
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	var doc *models.Document

	err = s.withContent(ctx, file.Data, func(ref blob.Ref) error {
		var cerr error
		doc, v, cerr = s.store.AppendVersion(ctx, documentID, models.VersionDraft{
			ContentHash: ref.Hash,
			Filename:    file.Filename,
			Size:        ref.Size,
			MimeType:    detectMimeType(file),
			Comment:     comment,
			CreatedBy:   createdBy,
		})

		return cerr
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerOperations.WithLabelValues("add_version").Inc()
	s.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"version":     v.Number,
	}).Info("version added")

	ev := models.NewEvent(models.EventVersionAdded, doc)
	ev.Version = v
	s.publish(ctx, ev)

	return v, nil
}

// RestoreVersion appends a version that reuses an earlier version's content.
func (s *Ledger) RestoreVersion(
	ctx context.Context, documentID string, number int, req models.RestoreRequest, createdBy string,
) (v *models.Version, err error) {
	ctx, span := startSpan(ctx, "ledger.RestoreVersion",
		attribute.String("document_id", documentID), attribute.Int("version", number))
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	old, err := s.store.GetVersion(ctx, documentID, number)
	if err != nil {
		return nil, err
	}

	comment := req.Comment
	if comment == "" {
		comment = fmt.Sprintf("Restored from version %d", number)
	}

	restoredFrom := number

	var doc *models.Document

	err = func() error {
		s.gcMu.RLock()
		defer s.gcMu.RUnlock()

		exists, xerr := s.blobs.Exists(ctx, old.ContentHash)
		if xerr != nil {
			return xerr
		}

		if !exists {
			return fmt.Errorf("content %s of version %d: %w", old.ContentHash, number, models.ErrContentNotFound)
		}

		var cerr error
		doc, v, cerr = s.store.AppendVersion(ctx, documentID, models.VersionDraft{
			ContentHash:  old.ContentHash,
			Filename:     old.Filename,
			Size:         old.Size,
			MimeType:     old.MimeType,
			Comment:      comment,
			RestoredFrom: &restoredFrom,
			CreatedBy:    createdBy,
		})

		return cerr
	}()
	if err != nil {
		return nil, err
	}

	metrics.LedgerOperations.WithLabelValues("restore").Inc()
	s.log.WithFields(logrus.Fields{
		"document_id":   documentID,
		"version":       v.Number,
		"restored_from": number,
	}).Info("version restored")

	ev := models.NewEvent(models.EventVersionAdded, doc)
	ev.Version = v
	s.publish(ctx, ev)

	return v, nil
}

// GetDocument returns a document (pass-through).
func (s *Ledger) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return s.store.GetDocument(ctx, documentID)
}

// ListDocuments returns a filtered page of documents.
func (s *Ledger) ListDocuments(
	ctx context.Context, filter models.DocumentFilter, limit, offset int,
) ([]models.Document, bool, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	if offset < 0 {
		return nil, false, models.Invalid("offset", "must not be negative")
	}

	return s.store.ListDocuments(ctx, filter, limit, offset)
}

// UpdateDocument patches document metadata. Versions are untouched.
func (s *Ledger) UpdateDocument(
	ctx context.Context, documentID string, req models.UpdateDocumentRequest,
) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc, err := s.store.UpdateDocument(ctx, documentID, req)
	if err != nil {
		return nil, err
	}

	if !req.Empty() {
		metrics.LedgerOperations.WithLabelValues("update").Inc()
		s.publish(ctx, models.NewEvent(models.EventDocumentUpdated, doc))
	}

	return doc, nil
}

// DeleteDocument removes a document and its version chain. Content is left
// for CollectGarbage.
func (s *Ledger) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	metrics.LedgerOperations.WithLabelValues("delete").Inc()
	s.log.WithField("document_id", documentID).Info("document deleted")

	ev := models.NewEvent(models.EventDocumentDeleted, nil)
	ev.DocumentID = documentID
	s.publish(ctx, ev)

	return nil
}

// LinkDocument asks the projector to relate a document to another entity.
func (s *Ledger) LinkDocument(ctx context.Context, documentID string, req models.LinkRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	metrics.LedgerOperations.WithLabelValues("link").Inc()

	ev := models.NewEvent(models.EventDocumentLinked, doc)
	ev.Link = &req
	s.publish(ctx, ev)

	return nil
}

// GetVersion returns one version descriptor (pass-through).
func (s *Ledger) GetVersion(ctx context.Context, documentID string, number int) (*models.Version, error) {
	return s.store.GetVersion(ctx, documentID, number)
}

// ListVersions returns the version chain in ascending order (pass-through).
func (s *Ledger) ListVersions(ctx context.Context, documentID string) ([]models.Version, error) {
	return s.store.ListVersions(ctx, documentID)
}

// OpenVersion returns a version and its verified content.
func (s *Ledger) OpenVersion(
	ctx context.Context, documentID string, number int,
) (v *models.Version, data []byte, err error) {
	ctx, span := startSpan(ctx, "ledger.OpenVersion",
		attribute.String("document_id", documentID), attribute.Int("version", number))
	defer func() { endSpan(span, err) }()

	v, err = s.store.GetVersion(ctx, documentID, number)
	if err != nil {
		return nil, nil, err
	}

	data, err = s.blobs.GetRef(ctx, blob.Ref{Hash: v.ContentHash, Size: v.Size})
	if err != nil {
		if errors.Is(err, models.ErrHashMismatch) {
			s.log.WithError(err).WithFields(logrus.Fields{
				"document_id":  documentID,
				"version":      number,
				"content_hash": v.ContentHash,
			}).Error("version content failed integrity check")
		}

		return nil, nil, err
	}

	return v, data, nil
}

// OpenCurrent returns the current version and its verified content.
func (s *Ledger) OpenCurrent(ctx context.Context, documentID string) (*models.Version, []byte, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}

	return s.OpenVersion(ctx, documentID, doc.CurrentVersion)
}

// CollectGarbage deletes stored content no version references. With dryRun
// set it only reports what would be deleted.
func (s *Ledger) CollectGarbage(ctx context.Context, dryRun bool) (res *models.GCResult, err error) {
	ctx, span := startSpan(ctx, "ledger.CollectGarbage", attribute.Bool("dry_run", dryRun))
	defer func() { endSpan(span, err) }()

	s.gcMu.Lock()
	defer s.gcMu.Unlock()

	var refs []blob.Ref

	if err := s.blobs.Walk(ctx, func(ref blob.Ref) error {
		refs = append(refs, ref)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}

	res = &models.GCResult{DryRun: dryRun}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res.Scanned++

		referenced, err := s.store.HashReferenced(ctx, ref.Hash)
		if err != nil {
			return nil, fmt.Errorf("checking references to %s: %w", ref.Hash, err)
		}

		if referenced {
			continue
		}

		res.Orphaned++
		res.Bytes += ref.Size

		if dryRun {
			continue
		}

		if err := s.blobs.Delete(ctx, ref.Hash); err != nil {
			return nil, fmt.Errorf("deleting %s: %w", ref.Hash, err)
		}

		res.Deleted++
		metrics.ContentCollected.Inc()
	}

	s.log.WithFields(logrus.Fields{
		"scanned":  res.Scanned,
		"orphaned": res.Orphaned,
		"deleted":  res.Deleted,
		"bytes":    res.Bytes,
		"dry_run":  dryRun,
	}).Info("content garbage collection finished")

	return res, nil
}
