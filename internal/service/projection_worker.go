package service

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *ProjectionWorker must satisfy domain.EventPublisher.
var _ domain.EventPublisher = (*ProjectionWorker)(nil)

// Retry defaults for graph sync failures.
const (
	DefaultProjectorShards = 4
	defaultInitialBackoff  = 500 * time.Millisecond
	defaultMaxBackoff      = 30 * time.Second
	backoffMultiplier      = 2
	flushPollInterval      = 5 * time.Millisecond
)

// Applier projects a single event.
type Applier interface {
	Apply(ctx context.Context, ev models.Event) error
}

// WorkerConfig configures a ProjectionWorker.
type WorkerConfig struct {
	Shards         int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// shard is an unbounded FIFO drained by one goroutine.
type shard struct {
	mu    sync.Mutex
	queue []models.Event
	wake  chan struct{}
}

func (s *shard) push(ev models.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *shard) pop() (models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return models.Event{}, false
	}

	ev := s.queue[0]
	s.queue[0] = models.Event{}
	s.queue = s.queue[1:]

	return ev, true
}

// ProjectionWorker delivers ledger events to an Applier. Events for the same
// document always land on the same shard, so they are applied in publish
// order; different documents proceed in parallel.
type ProjectionWorker struct {
	applier Applier
	log     *logrus.Logger
	cfg     WorkerConfig
	shards  []*shard
	pending atomic.Int64
}

// NewProjectionWorker creates a worker. Zero config fields take defaults.
func NewProjectionWorker(applier Applier, log *logrus.Logger, cfg WorkerConfig) *ProjectionWorker {
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultProjectorShards
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}

	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{wake: make(chan struct{}, 1)}
	}

	return &ProjectionWorker{applier: applier, log: log, cfg: cfg, shards: shards}
}

// ShardFor maps a document id onto one of n shards.
func ShardFor(documentID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(documentID))

	return int(h.Sum32() % uint32(n)) //nolint:gosec // n is a small positive shard count.
}

// Publish enqueues ev. It never blocks.
func (w *ProjectionWorker) Publish(_ context.Context, ev models.Event) error {
	depth := w.pending.Add(1)
	metrics.ProjectionQueueDepth.Set(float64(depth))
	w.shards[ShardFor(ev.DocumentID, len(w.shards))].push(ev)

	return nil
}

// Pending returns the number of events accepted but not yet finished.
func (w *ProjectionWorker) Pending() int64 {
	return w.pending.Load()
}

// Flush waits until every published event has been applied or dropped.
func (w *ProjectionWorker) Flush(ctx context.Context) error {
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for w.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}

// Run drains every shard until ctx is cancelled. Call in a goroutine.
func (w *ProjectionWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	w.log.WithField("shards", len(w.shards)).Info("starting projection workers")

	for i, s := range w.shards {
		wg.Add(1)
		go func(id int, s *shard) {
			defer wg.Done()
			w.runShard(ctx, id, s)
		}(i, s)
	}

	wg.Wait()
	w.log.Info("all projection workers stopped")
}

func (w *ProjectionWorker) runShard(ctx context.Context, id int, s *shard) {
	for {
		for {
			if ctx.Err() != nil {
				w.abandon(id, s)
				return
			}

			ev, ok := s.pop()
			if !ok {
				break
			}

			_ = w.Handle(ctx, ev)
			w.done()
		}

		select {
		case <-ctx.Done():
			w.abandon(id, s)
			return
		case <-s.wake:
		}
	}
}

func (w *ProjectionWorker) done() {
	depth := w.pending.Add(-1)
	metrics.ProjectionQueueDepth.Set(float64(depth))
}

// abandon discards queued events at shutdown. Resync restores them.
func (w *ProjectionWorker) abandon(id int, s *shard) {
	lost := 0

	for {
		if _, ok := s.pop(); !ok {
			break
		}

		lost++
		w.done()
	}

	if lost > 0 {
		w.log.WithFields(logrus.Fields{
			"shard":  id,
			"events": lost,
		}).Warn("projection stopped with queued events; run resync to repair the graph")
	}
}

// Handle applies ev, retrying graph failures with jittered exponential backoff
// until it succeeds or ctx ends. Malformed events are dropped and reported as
// handled. It returns ctx.Err() only when the event was not applied.
func (w *ProjectionWorker) Handle(ctx context.Context, ev models.Event) error {
	delay := w.cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := w.applier.Apply(ctx, ev)
		if err == nil {
			return nil
		}

		fields := logrus.Fields{
			"event_id":    ev.ID,
			"event_type":  ev.Type,
			"document_id": ev.DocumentID,
		}

		if errors.Is(err, models.ErrValidation) {
			metrics.ProjectionDropped.Inc()
			w.log.WithError(err).WithFields(fields).Error("dropping malformed event")

			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.GraphSyncFailures.Inc()
		fields["attempt"] = attempt
		fields["retry_in"] = delay.String()
		w.log.WithError(err).WithFields(fields).Warn("graph sync failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = nextBackoff(delay, w.cfg.MaxBackoff)
	}
}

// nextBackoff doubles current with ±25% jitter, capped at limit.
func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * backoffMultiplier
	if next > limit {
		next = limit
	}

	jittered := time.Duration(float64(next) * (0.75 + rand.Float64()*0.5)) //nolint:gosec // jitter doesn't need crypto rand.
	if jittered > limit {
		jittered = limit
	}

	return jittered
}
