package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *Resyncer must satisfy domain.Resyncer.
var _ domain.Resyncer = (*Resyncer)(nil)

const resyncPageSize = 200

// Resyncer replays ledger state into the graph as synthesized events. The
// events go through the same publisher as live traffic so per-document order
// is preserved.
type Resyncer struct {
	store domain.LedgerStore
	pub   domain.EventPublisher
	log   *logrus.Logger
}

// NewResyncer creates a Resyncer.
func NewResyncer(store domain.LedgerStore, pub domain.EventPublisher, log *logrus.Logger) *Resyncer {
	return &Resyncer{store: store, pub: pub, log: log}
}

// Resync republishes one document's creation and every later version.
func (r *Resyncer) Resync(ctx context.Context, documentID string) error {
	doc, err := r.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	versions, err := r.store.ListVersions(ctx, documentID)
	if err != nil {
		return err
	}

	if len(versions) == 0 {
		return fmt.Errorf("document %s has no versions: %w", documentID, models.ErrVersionNotFound)
	}

	for i := range versions {
		t := models.EventVersionAdded
		if i == 0 {
			t = models.EventDocumentCreated
		}

		ev := models.NewEvent(t, doc)
		ev.Version = &versions[i]

		if err := r.pub.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publishing %s for %s: %w", t, documentID, err)
		}
	}

	r.log.WithFields(logrus.Fields{
		"document_id": documentID,
		"versions":    len(versions),
	}).Debug("document resynced")

	return nil
}

// ResyncAll resyncs every document and returns how many were replayed.
func (r *Resyncer) ResyncAll(ctx context.Context) (int, error) {
	count := 0

	for offset := 0; ; offset += resyncPageSize {
		docs, hasMore, err := r.store.ListDocuments(ctx, models.DocumentFilter{}, resyncPageSize, offset)
		if err != nil {
			return count, fmt.Errorf("listing documents: %w", err)
		}

		for _, doc := range docs {
			if err := r.Resync(ctx, doc.ID); err != nil {
				if errors.Is(err, models.ErrDocumentNotFound) {
					continue
				}

				return count, err
			}

			count++
		}

		if !hasMore {
			break
		}
	}

	r.log.WithField("documents", count).Info("resync finished")

	return count, nil
}
