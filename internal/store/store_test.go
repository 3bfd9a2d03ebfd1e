package store_test

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/db"
	"github.com/labweave/labweave/internal/db/migrations"
	"github.com/labweave/labweave/internal/dbpool"
	"github.com/labweave/labweave/internal/store"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var (
	sharedEnv  *testEnv
	sharedErr  error
	sharedOnce sync.Once
)

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	sharedOnce.Do(func() {
		ctx := context.Background()

		pool, err := dbpool.NewPool(ctx, dbURL, 10)
		if err != nil {
			sharedErr = err
			return
		}

		log := logrus.New()
		log.SetOutput(io.Discard)

		if err := db.RunMigrations(ctx, pool, log, migrations.FS, "test"); err != nil {
			sharedErr = err
			return
		}

		sharedEnv = &testEnv{pool: pool, log: log}
	})

	if sharedErr != nil {
		t.Fatalf("setting up test DB: %v", sharedErr)
	}

	return sharedEnv
}

// setupTestBase returns a Base over a freshly truncated schema.
func setupTestBase(t *testing.T) store.Base {
	t.Helper()

	env := getTestEnv(t)

	_, err := env.pool.Exec(context.Background(), `TRUNCATE documents, document_versions, kg_nodes, kg_edges CASCADE`)
	if err != nil {
		t.Fatalf("truncating tables: %v", err)
	}

	return store.Base{Pool: env.pool, Log: env.log}
}
