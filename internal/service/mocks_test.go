package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/models"
)

var errGraphDown = errors.New("graph store down")

// recordingPublisher records published events and returns a configured error.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event

	err error
}

func (m *recordingPublisher) Publish(_ context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *recordingPublisher) getEvents() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]models.Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func (m *recordingPublisher) types() []models.EventType {
	evs := m.getEvents()
	out := make([]models.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// mockApplier records applied events and returns responses from apply.
type mockApplier struct {
	mu      sync.Mutex
	applied []models.Event
	calls   atomic.Int32

	apply func(ctx context.Context, ev models.Event) error
}

func (m *mockApplier) Apply(ctx context.Context, ev models.Event) error {
	m.calls.Add(1)

	if m.apply != nil {
		if err := m.apply(ctx, ev); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, ev)
	return nil
}

func (m *mockApplier) getApplied() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]models.Event, len(m.applied))
	copy(cp, m.applied)
	return cp
}

// flakyGraphStore fails every write while failWrites is positive, decrementing it.
type flakyGraphStore struct {
	domain.GraphStore

	failWrites atomic.Int32
	calls      atomic.Int32
}

func (f *flakyGraphStore) fail() bool {
	f.calls.Add(1)

	for {
		n := f.failWrites.Load()
		if n <= 0 {
			return false
		}

		if f.failWrites.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (f *flakyGraphStore) UpsertNode(ctx context.Context, n models.NodeUpsert) (*models.Node, error) {
	if f.fail() {
		return nil, errGraphDown
	}

	return f.GraphStore.UpsertNode(ctx, n)
}

func (f *flakyGraphStore) UpsertEdge(ctx context.Context, e models.EdgeUpsert) (*models.Edge, error) {
	if f.fail() {
		return nil, errGraphDown
	}

	return f.GraphStore.UpsertEdge(ctx, e)
}
