// Package db applies the embedded schema migrations.
//
// Migrations are goose-annotated SQL files embedded from internal/db/migrations.
// The same set is applied to the ledger database and, when it is a different
// database, to the graph database; each keeps its own goose_db_version table.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/dbpool"
)

// RunMigrations applies all pending migrations from fsys to the database behind pool.
// target names the database in log output.
func RunMigrations(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, fsys fs.FS, target string) error {
	// goose needs a *sql.DB; open one on the pool's connection string.
	sqlDB, err := sql.Open("pgx", pool.ConnString())
	if err != nil {
		return fmt.Errorf("opening sql.DB for %s migrations: %w", target, err)
	}
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying %s migrations: %w", target, err)
	}

	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("%s migration %d (%s) failed: %w", target, r.Source.Version, r.Source.Path, r.Error)
		}

		log.WithFields(logrus.Fields{
			"target":   target,
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		log.WithField("target", target).Debug("all migrations already applied")
	}

	return nil
}
