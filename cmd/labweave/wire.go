package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/api"
	"github.com/labweave/labweave/internal/blob"
	"github.com/labweave/labweave/internal/config"
	"github.com/labweave/labweave/internal/crypto"
	"github.com/labweave/labweave/internal/db"
	"github.com/labweave/labweave/internal/db/migrations"
	"github.com/labweave/labweave/internal/dbpool"
	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/eventbus"
	"github.com/labweave/labweave/internal/memstore"
	"github.com/labweave/labweave/internal/store"
)

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log, nil
}

// backends holds the storage layer and the functions that release it.
type backends struct {
	ledger  domain.LedgerStore
	graph   domain.GraphStore
	blobs   *blob.Store
	bus     *eventbus.Bus
	checks  []api.NamedCheck
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects every store the configuration selects. On error,
// anything already opened is released.
func openBackends(ctx context.Context, cfg *config.Config, log *logrus.Logger) (b *backends, err error) {
	b = &backends{}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	pools := map[string]*dbpool.Pool{}

	pool := func(url, target string) (*dbpool.Pool, error) {
		if p, ok := pools[url]; ok {
			return p, nil
		}

		p, err := dbpool.NewPool(ctx, url, cfg.DBMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s database: %w", target, err)
		}
		b.closers = append(b.closers, p.Close)

		if err := db.RunMigrations(ctx, p, log, migrations.FS, target); err != nil {
			return nil, err
		}

		pools[url] = p

		return p, nil
	}

	if cfg.LedgerDriver == config.DriverPostgres {
		p, err := pool(cfg.DatabaseURL.Value(), "ledger")
		if err != nil {
			return nil, err
		}

		b.ledger = store.NewDocumentStore(store.Base{Pool: p, Log: log})
	} else {
		b.ledger = memstore.NewLedgerStore()
	}

	if cfg.GraphDriver == config.DriverPostgres {
		p, err := pool(cfg.GraphURL().Value(), "graph")
		if err != nil {
			return nil, err
		}

		b.graph = store.NewGraphStore(store.Base{Pool: p, Log: log})
	} else {
		b.graph = memstore.NewGraphStore()
	}

	backend, err := openBlobBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backend, err = sealBackend(backend, cfg)
	if err != nil {
		backend.Close() //nolint:errcheck // configuration error takes precedence.
		return nil, err
	}

	b.blobs = blob.New(backend, log)
	b.closers = append(b.closers, func() {
		if err := b.blobs.Close(); err != nil {
			log.WithError(err).Warn("closing blob store")
		}
	})

	b.checks = []api.NamedCheck{
		{Name: "ledger", Pinger: b.ledger},
		{Name: "graph", Pinger: b.graph},
		{Name: "content", Pinger: b.blobs},
	}

	if cfg.EventTransport == config.TransportRedis {
		b.bus, err = eventbus.New(eventbus.Config{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword.Value(),
			Consumer: cfg.ProjectorConsumer,
			Shards:   cfg.ProjectorWorkers,
		}, log)
		if err != nil {
			return nil, err
		}

		b.closers = append(b.closers, b.bus.Close)
		b.checks = append(b.checks, api.NamedCheck{Name: "events", Pinger: b.bus})
	}

	log.WithFields(logrus.Fields{
		"ledger":     cfg.LedgerDriver,
		"graph":      cfg.GraphDriver,
		"blob":       cfg.BlobDriver,
		"encryption": cfg.ContentEncryption,
		"transport":  cfg.EventTransport,
	}).Info("storage backends ready")

	return b, nil
}

func openBlobBackend(ctx context.Context, cfg *config.Config) (blob.Backend, error) {
	switch cfg.BlobDriver {
	case config.BlobBadger:
		return blob.OpenBadger(blob.BadgerConfig{Path: cfg.BlobPath, SyncWrites: true})
	case config.BlobGCS:
		return blob.NewGCSBackend(ctx, blob.GCSConfig{
			Bucket:          cfg.GCSBucket,
			Prefix:          cfg.GCSPrefix,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
	default:
		return blob.NewFSBackend(cfg.BlobPath)
	}
}

// sealBackend wraps backend with at-rest encryption when CONTENT_ENCRYPTION is set.
func sealBackend(backend blob.Backend, cfg *config.Config) (blob.Backend, error) {
	var keys crypto.KeyProvider

	switch cfg.ContentEncryption {
	case config.EncryptionStatic:
		p, err := crypto.NewStaticProvider(cfg.ContentKey.Value())
		if err != nil {
			return nil, err
		}
		keys = p
	case config.EncryptionVault:
		keys = crypto.NewVaultProvider(cfg.VaultAddr, cfg.VaultToken)
	default:
		return backend, nil
	}

	return crypto.NewSealedBackend(backend, crypto.NewSealer(keys, cfg.ContentKeyID)), nil
}
