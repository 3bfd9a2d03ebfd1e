// Command labweave serves the document ledger API and projects ledger events
// into the knowledge graph.
//
// Usage:
//
//	labweave            API server (and in-process projector unless PROJECTOR_ENABLED=false)
//	labweave projector  projector only, consuming events from Redis Streams
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/labweave/labweave/internal/api"
	"github.com/labweave/labweave/internal/config"
	"github.com/labweave/labweave/internal/db"
	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/service"
	"github.com/labweave/labweave/internal/telemetry"
	"github.com/labweave/labweave/internal/ws"
)

const (
	serviceName      = "labweave"
	shutdownTimeout  = 15 * time.Second
	flushTimeout     = 10 * time.Second
	readHeaderTimout = 10 * time.Second
)

func main() {
	projectorOnly := len(os.Args) > 1 && os.Args[1] == "projector"

	if err := run(projectorOnly); err != nil {
		fmt.Fprintln(os.Stderr, "labweave:", err)
		os.Exit(1)
	}
}

func run(projectorOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if projectorOnly && cfg.EventTransport != config.TransportRedis {
		return errors.New("projector mode requires EVENT_TRANSPORT=redis")
	}

	gin.SetMode(gin.ReleaseMode)

	log.WithFields(logrus.Fields{
		"version":        config.Version,
		"schema_version": db.SchemaVersion(),
		"projector_only": projectorOnly,
	}).Info("starting labweave")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(sigCtx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: config.Version,
		Exporter:       cfg.TracesExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   isLocalEndpoint(cfg.OTLPEndpoint),
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := shutdownTracing(ctx); err != nil {
			log.WithError(err).Warn("flushing traces")
		}
	}()

	b, err := openBackends(sigCtx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	graph := service.NewBreakerGraphStore(b.graph, log, service.DefaultBreakerConfig())
	worker := service.NewProjectionWorker(service.NewProjector(graph, log), log, service.WorkerConfig{
		Shards: cfg.ProjectorWorkers,
	})

	// Background work stops only after the HTTP servers have drained.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	g, gctx := errgroup.WithContext(bgCtx)

	var events domain.EventPublisher = worker

	switch {
	case b.bus != nil:
		events = b.bus

		if cfg.ProjectorEnabled || projectorOnly {
			g.Go(func() error { return b.bus.Consume(gctx, worker) })
		}
	default:
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}

	var servers []*http.Server

	servers = append(servers, newServer(cfg.MetricsAddr(), metricsHandler()))

	var hub *ws.Hub

	if !projectorOnly {
		hub = ws.NewHub(log)
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})

		ledger := service.NewLedger(b.ledger, b.blobs, service.Publishers{events, hub}, log, service.LedgerConfig{
			MaxUploadBytes:    cfg.MaxUploadBytes,
			AllowedExtensions: cfg.AllowedExtensions,
		})

		router := api.NewRouter(gctx, &api.RouterDeps{
			Log:            log,
			Hub:            hub,
			Documents:      ledger,
			Graph:          service.NewGraphService(graph, log),
			Resync:         service.NewResyncer(b.ledger, events, log),
			Checks:         b.checks,
			CORSOrigins:    cfg.CORSOrigins,
			Version:        config.Version,
			ServiceName:    serviceName,
			MaxUploadBytes: cfg.MaxUploadBytes,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		})

		servers = append(servers, newServer(cfg.Addr(), router))
	}

	for _, srv := range servers {
		g.Go(func() error {
			log.WithField("addr", srv.Addr).Info("listening")

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", srv.Addr, err)
			}

			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			log.Info("shutdown signal received")
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).WithField("addr", srv.Addr).Warn("HTTP shutdown")
			}
		}

		if hub != nil {
			hub.Shutdown()
		}

		if b.bus == nil {
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
			if err := worker.Flush(flushCtx); err != nil {
				log.WithField("pending", worker.Pending()).Warn("projection queue not drained; run an admin resync after restart")
			}
			cancelFlush()
		}

		cancelBg()

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("labweave stopped")

	return nil
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimout,
	}
}

func metricsHandler() http.Handler {
	r := gin.New()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// isLocalEndpoint reports whether an OTLP endpoint is on the loopback interface,
// where plaintext gRPC is acceptable.
func isLocalEndpoint(endpoint string) bool {
	host := endpoint
	if h, _, err := net.SplitHostPort(endpoint); err == nil {
		host = h
	}

	if strings.EqualFold(host, "localhost") {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
