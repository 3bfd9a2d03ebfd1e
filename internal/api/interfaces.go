package api

import (
	"context"

	"github.com/labweave/labweave/internal/domain"
)

// DocumentService defines the ledger operations used by DocumentHandler.
type DocumentService = domain.LedgerService

// GraphQueryService defines graph operations used by GraphHandler.
type GraphQueryService = domain.GraphService

// ResyncService defines graph repair operations used by AdminHandler.
type ResyncService = domain.Resyncer

// Pinger is implemented by every backing store checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}
