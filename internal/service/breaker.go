package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *BreakerGraphStore must satisfy domain.GraphStore.
var _ domain.GraphStore = (*BreakerGraphStore)(nil)

// BreakerConfig tunes the circuit breaker in front of the graph store.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the settings used by the projection worker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// BreakerGraphStore guards a GraphStore with a circuit breaker. Lookup misses
// and validation failures count as successes; only infrastructure errors trip it.
type BreakerGraphStore struct {
	inner domain.GraphStore
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerGraphStore wraps inner.
func NewBreakerGraphStore(inner domain.GraphStore, log *logrus.Logger, cfg BreakerConfig) *BreakerGraphStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.GraphBreakerState.Set(float64(to))
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, models.ErrNodeNotFound) ||
				errors.Is(err, models.ErrValidation) ||
				errors.Is(err, models.ErrTraversalLimit) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &BreakerGraphStore{inner: inner, cb: cb}
}

func (b *BreakerGraphStore) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("graph store: %w: %w", models.ErrStorageUnavailable, err)
	}

	return res, err
}

// UpsertNode implements domain.GraphStore.
func (b *BreakerGraphStore) UpsertNode(ctx context.Context, n models.NodeUpsert) (*models.Node, error) {
	res, err := b.execute(func() (any, error) { return b.inner.UpsertNode(ctx, n) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Node), nil
}

// UpsertEdge implements domain.GraphStore.
func (b *BreakerGraphStore) UpsertEdge(ctx context.Context, e models.EdgeUpsert) (*models.Edge, error) {
	res, err := b.execute(func() (any, error) { return b.inner.UpsertEdge(ctx, e) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Edge), nil
}

// GetNode implements domain.GraphStore.
func (b *BreakerGraphStore) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	res, err := b.execute(func() (any, error) { return b.inner.GetNode(ctx, nodeID) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Node), nil
}

// GetNodes implements domain.GraphStore.
func (b *BreakerGraphStore) GetNodes(ctx context.Context, nodeIDs []string) ([]models.Node, error) {
	res, err := b.execute(func() (any, error) { return b.inner.GetNodes(ctx, nodeIDs) })
	if err != nil {
		return nil, err
	}

	return res.([]models.Node), nil
}

// EdgesOf implements domain.GraphStore.
func (b *BreakerGraphStore) EdgesOf(
	ctx context.Context, nodeIDs []string, dir models.Direction, relation string,
) ([]models.Edge, error) {
	res, err := b.execute(func() (any, error) { return b.inner.EdgesOf(ctx, nodeIDs, dir, relation) })
	if err != nil {
		return nil, err
	}

	return res.([]models.Edge), nil
}

// SearchNodes implements domain.GraphStore.
func (b *BreakerGraphStore) SearchNodes(ctx context.Context, q models.SearchQuery) ([]models.ScoredNode, error) {
	res, err := b.execute(func() (any, error) { return b.inner.SearchNodes(ctx, q) })
	if err != nil {
		return nil, err
	}

	return res.([]models.ScoredNode), nil
}

// DeleteNode implements domain.GraphStore.
func (b *BreakerGraphStore) DeleteNode(ctx context.Context, nodeID string) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.DeleteNode(ctx, nodeID) })
	return err
}

// Ping bypasses the breaker so health checks see the real store state.
func (b *BreakerGraphStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

// State reports the breaker state.
func (b *BreakerGraphStore) State() gobreaker.State {
	return b.cb.State()
}
