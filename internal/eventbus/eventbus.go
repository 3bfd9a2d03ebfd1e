// Package eventbus carries ledger events over Redis Streams so projection can
// run in a separate process from the API and survive restarts.
//
// Events are sharded by document id across a fixed set of streams. Each shard
// is consumed by one goroutine, and a deployment runs one consumer per group,
// which keeps per-document order. Entries are acknowledged only after the
// handler returns. On start, and periodically after that, a consumer claims
// entries left pending by consumers that stopped, so a crash or a renamed
// consumer never strands events.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
	"github.com/labweave/labweave/internal/service"
)

// Compile-time check: *Bus must satisfy domain.EventPublisher.
var _ domain.EventPublisher = (*Bus)(nil)

// Defaults applied by New when a Config field is zero.
const (
	DefaultStreamPrefix = "labweave:events"
	DefaultGroup        = "projector"
	DefaultShards       = service.DefaultProjectorShards
	DefaultMaxLen       = 100_000
	DefaultBlock        = 5 * time.Second
	DefaultClaimIdle    = time.Minute
	readCount           = 64
	retryDelay          = time.Second
	payloadField        = "event"
)

// Handler applies one event. A non-nil error leaves the entry pending.
type Handler interface {
	Handle(ctx context.Context, ev models.Event) error
}

// Config holds connection and stream parameters.
type Config struct {
	Addrs        []string
	Password     string
	StreamPrefix string
	Group        string
	Consumer     string
	Shards       int
	MaxLen       int64
	Block        time.Duration
	// ClaimIdle is how long an entry must sit unacknowledged in another
	// consumer's pending list before this consumer takes it over.
	ClaimIdle time.Duration
}

// Bus publishes events to Redis Streams and consumes them with a consumer group.
type Bus struct {
	client rueidis.Client
	cfg    Config
	log    *logrus.Logger
}

func (c *Config) applyDefaults() {
	if c.StreamPrefix == "" {
		c.StreamPrefix = DefaultStreamPrefix
	}

	if c.Group == "" {
		c.Group = DefaultGroup
	}

	if c.Consumer == "" {
		c.Consumer = DefaultConsumer()
	}

	if c.Shards <= 0 {
		c.Shards = DefaultShards
	}

	if c.MaxLen <= 0 {
		c.MaxLen = DefaultMaxLen
	}

	if c.Block <= 0 {
		c.Block = DefaultBlock
	}

	if c.ClaimIdle <= 0 {
		c.ClaimIdle = DefaultClaimIdle
	}
}

// DefaultConsumer names the consumer after the host so a restarted process
// resumes its own pending entries.
func DefaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "labweave"
	}

	return host
}

// New connects to Redis.
func New(cfg Config, log *logrus.Logger) (*Bus, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("eventbus: addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: creating client: %w", err)
	}

	return newWithClient(client, cfg, log), nil
}

func newWithClient(client rueidis.Client, cfg Config, log *logrus.Logger) *Bus {
	cfg.applyDefaults()
	return &Bus{client: client, cfg: cfg, log: log}
}

// Close shuts down the client.
func (b *Bus) Close() {
	b.client.Close()
}

// Ping checks connectivity.
func (b *Bus) Ping(ctx context.Context) error {
	if err := b.client.Do(ctx, b.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("eventbus ping: %w", err)
	}

	return nil
}

// StreamKey returns the stream that carries events for shard.
func (b *Bus) StreamKey(shard int) string {
	return b.cfg.StreamPrefix + ":" + strconv.Itoa(shard)
}

// Publish appends ev to its document's shard stream.
func (b *Bus) Publish(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", ev.ID, err)
	}

	key := b.StreamKey(service.ShardFor(ev.DocumentID, b.cfg.Shards))
	cmd := b.client.B().Xadd().Key(key).
		Maxlen().Almost().Threshold(strconv.FormatInt(b.cfg.MaxLen, 10)).
		Id("*").FieldValue().FieldValue(payloadField, string(payload)).Build()

	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("xadd %s: %w: %w", key, models.ErrStorageUnavailable, err)
	}

	return nil
}

// ensureGroup creates the consumer group and its stream if missing.
func (b *Bus) ensureGroup(ctx context.Context, key string) error {
	cmd := b.client.B().XgroupCreate().Key(key).Group(b.cfg.Group).Id("0").Mkstream().Build()

	err := b.client.Do(ctx, cmd).Error()
	if err == nil {
		return nil
	}

	if re, ok := rueidis.IsRedisErr(err); ok && strings.HasPrefix(re.Error(), "BUSYGROUP") {
		return nil
	}

	return fmt.Errorf("creating group %s on %s: %w", b.cfg.Group, key, err)
}

// Consume reads every shard until ctx is cancelled, passing events to h.
// It returns nil on cancellation.
func (b *Bus) Consume(ctx context.Context, h Handler) error {
	for shard := range b.cfg.Shards {
		if err := b.ensureGroup(ctx, b.StreamKey(shard)); err != nil {
			return err
		}
	}

	b.log.WithFields(logrus.Fields{
		"group":    b.cfg.Group,
		"consumer": b.cfg.Consumer,
		"shards":   b.cfg.Shards,
	}).Info("consuming ledger events")

	var wg sync.WaitGroup

	for shard := range b.cfg.Shards {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			b.consumeStream(ctx, key, h)
		}(b.StreamKey(shard))
	}

	wg.Wait()

	return nil
}

// consumeStream claims entries stranded by other consumers, drains its own
// pending list, then blocks for new entries. Stranded entries are claimed
// again every ClaimIdle.
func (b *Bus) consumeStream(ctx context.Context, key string, h Handler) {
	id := "0"
	draining := true
	b.claimStale(ctx, key)
	nextClaim := time.Now().Add(b.cfg.ClaimIdle)

	for ctx.Err() == nil {
		if !draining && time.Now().After(nextClaim) {
			if b.claimStale(ctx, key) > 0 {
				draining = true
				id = "0"
			}

			nextClaim = time.Now().Add(b.cfg.ClaimIdle)
		}

		entries, err := b.read(ctx, key, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			b.log.WithError(err).WithField("stream", key).Warn("reading event stream")

			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}

			continue
		}

		if draining && len(entries) == 0 {
			draining = false
			id = ">"

			continue
		}

		if err := b.process(ctx, key, entries, h); err != nil {
			return
		}

		if draining {
			id = entries[len(entries)-1].ID
		}
	}
}

// claimStale moves entries idle for at least ClaimIdle in any consumer's
// pending list to this consumer and returns how many it took. The next read
// from id "0" delivers them.
func (b *Bus) claimStale(ctx context.Context, key string) int {
	minIdle := strconv.FormatInt(b.cfg.ClaimIdle.Milliseconds(), 10)
	start := "0-0"
	claimed := 0

	for ctx.Err() == nil {
		cmd := b.client.B().Xautoclaim().Key(key).Group(b.cfg.Group).Consumer(b.cfg.Consumer).
			MinIdleTime(minIdle).Start(start).Count(readCount).Justid().Build()

		next, ids, err := parseAutoclaim(b.client.Do(ctx, cmd))
		if err != nil {
			if ctx.Err() == nil {
				b.log.WithError(err).WithField("stream", key).Warn("claiming stale events")
			}

			break
		}

		claimed += ids

		if next == "0-0" || next == start {
			break
		}

		start = next
	}

	if claimed > 0 {
		b.log.WithFields(logrus.Fields{
			"stream":   key,
			"consumer": b.cfg.Consumer,
			"claimed":  claimed,
		}).Info("claimed stale events")
	}

	return claimed
}

// parseAutoclaim reads the next cursor and the number of claimed ids from an
// XAUTOCLAIM ... JUSTID reply.
func parseAutoclaim(res rueidis.RedisResult) (string, int, error) {
	arr, err := res.ToArray()
	if err != nil {
		return "", 0, err
	}

	if len(arr) < 2 {
		return "", 0, fmt.Errorf("xautoclaim: unexpected reply of %d elements", len(arr))
	}

	next, err := arr[0].ToString()
	if err != nil {
		return "", 0, fmt.Errorf("xautoclaim cursor: %w", err)
	}

	ids, err := arr[1].ToArray()
	if err != nil {
		return "", 0, fmt.Errorf("xautoclaim ids: %w", err)
	}

	return next, len(ids), nil
}

func (b *Bus) read(ctx context.Context, key, id string) ([]rueidis.XRangeEntry, error) {
	cmd := b.client.B().Xreadgroup().Group(b.cfg.Group, b.cfg.Consumer).
		Count(readCount).Block(b.cfg.Block.Milliseconds()).
		Streams().Key(key).Id(id).Build()

	res, err := b.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, err
	}

	return res[key], nil
}

// process hands entries to h in order and acknowledges each one it finishes.
// It stops at the first entry h could not finish.
func (b *Bus) process(ctx context.Context, key string, entries []rueidis.XRangeEntry, h Handler) error {
	for _, entry := range entries {
		ev, err := decode(entry)
		if err != nil {
			metrics.ProjectionDropped.Inc()
			b.log.WithError(err).WithFields(logrus.Fields{
				"stream":   key,
				"entry_id": entry.ID,
			}).Error("dropping undecodable event")
		} else if err := h.Handle(ctx, ev); err != nil {
			return err
		}

		b.ack(ctx, key, entry.ID)
	}

	return nil
}

// ack acknowledges an entry. A failed ack leaves it pending, and the next
// start replays it; the projector tolerates redelivery.
func (b *Bus) ack(ctx context.Context, key, id string) {
	cmd := b.client.B().Xack().Key(key).Group(b.cfg.Group).Id(id).Build()

	if err := b.client.Do(context.WithoutCancel(ctx), cmd).Error(); err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"stream":   key,
			"entry_id": id,
		}).Warn("acknowledging event")
	}
}

var errNoPayload = errors.New("entry has no event payload")

func decode(entry rueidis.XRangeEntry) (models.Event, error) {
	var ev models.Event

	raw, ok := entry.FieldValues[payloadField]
	if !ok {
		return ev, errNoPayload
	}

	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("decoding entry %s: %w", entry.ID, err)
	}

	return ev, nil
}
