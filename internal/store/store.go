// Package store provides the PostgreSQL implementations of the ledger and
// graph stores.
//
// Each store owns one domain (documents and versions, or graph nodes and
// edges) and embeds shared helpers via the Base struct. The graph store may
// point at a different database than the ledger store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/dbpool"
)

const defaultQueryTimeout = 30 * time.Second

// maxListLimit is a defense-in-depth cap on limit values for list queries.
const maxListLimit = 1000

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// beginTx starts a read-write transaction.
func (b *Base) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return tx, nil
}

// beginReadTx starts a read-only transaction.
func (b *Base) beginReadTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}

	return tx, nil
}

// Ping verifies the store's database is reachable.
func (b *Base) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return b.Pool.HealthCheck(ctx)
}

// pgErrCode returns the SQLSTATE of err, or "" if err is not a PgError.
func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// marshalBag encodes a property bag, mapping nil to an empty object.
func marshalBag(bag map[string]any) ([]byte, error) {
	if bag == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(bag)
	if err != nil {
		return nil, fmt.Errorf("encoding properties: %w", err)
	}

	return data, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}

	if limit > maxListLimit {
		return maxListLimit
	}

	return limit
}
