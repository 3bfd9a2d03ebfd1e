// Package ws streams ledger events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/labweave/labweave/internal/domain"
	"github.com/labweave/labweave/internal/metrics"
	"github.com/labweave/labweave/internal/models"
)

// Compile-time check: *Hub must satisfy domain.EventPublisher.
var _ domain.EventPublisher = (*Hub)(nil)

// Hub channel buffer sizes and connection caps.
const (
	broadcastBuffer = 256
	registerBuffer  = 64
	maxClients      = 1000
	maxClientsPerID = 50
)

// broadcast is sent through the broadcast channel to the Run goroutine.
type broadcast struct {
	evt *Event
	msg []byte
}

// Hub manages active WebSocket clients and broadcasts ledger events.
// All client map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	userCount  map[string]int
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	shutdown   chan struct{}
	done       chan struct{}
	count      atomic.Int64
	log        *logrus.Logger

	// pubMu keeps sequence numbers and buffer order in step.
	pubMu  sync.Mutex
	seq    uint64
	buffer *EventBuffer
}

// NewHub creates a new Hub instance.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		userCount:  make(map[string]int),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan broadcast, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
		buffer:     NewEventBuffer(defaultBufferMaxLen, defaultBufferMaxAge),
	}
}

// drainTimeout is how long the hub waits for clients to flush after shutdown.
const drainTimeout = 3 * time.Second

// Run starts the hub event loop. It should be run as a goroutine.
// It exits when Shutdown is called or the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()

			return
		case <-h.shutdown:
			h.drainClients()

			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
			}
			h.log.WithField("total", len(h.clients)).Debug("client unregistered")

		case b := <-h.broadcast:
			for client := range h.clients {
				if !client.Filter().Matches(b.evt) {
					continue
				}
				select {
				case client.send <- b.msg:
				default:
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) add(client *Client) {
	if len(h.clients) >= maxClients {
		h.log.Warn("global connection limit reached, dropping client")
		client.closeSend()

		return
	}

	if h.userCount[client.UserID] >= maxClientsPerID {
		h.log.WithField("user_id", client.UserID).Warn("per-user connection limit reached, dropping client")
		client.closeSend()

		return
	}

	h.clients[client] = true
	h.userCount[client.UserID]++
	h.setCount()
	h.log.WithField("total", len(h.clients)).Info("client registered")
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	client.closeSend()

	h.userCount[client.UserID]--
	if h.userCount[client.UserID] <= 0 {
		delete(h.userCount, client.UserID)
	}

	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("register channel full, dropping client")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
		// Run loop already exited; client cleanup happened in Run shutdown.
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Publish implements domain.EventPublisher. It never blocks: when the
// broadcast channel is full the live send is dropped and clients catch up
// through replay.
func (h *Hub) Publish(_ context.Context, ev models.Event) error {
	data, err := json.Marshal(summarize(ev))
	if err != nil {
		return err
	}

	projectID := ""
	if ev.Document != nil {
		projectID = ev.Document.ProjectID
	}

	h.pubMu.Lock()
	h.seq++
	evt := &Event{
		Type:       string(ev.Type),
		ID:         h.seq,
		DocumentID: ev.DocumentID,
		ProjectID:  projectID,
		Data:       data,
		Time:       time.Now(),
	}
	h.buffer.Append(evt)
	h.pubMu.Unlock()

	msg, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- broadcast{evt: evt, msg: msg}:
	default:
		h.log.WithField("event_id", ev.ID).Warn("broadcast channel full, dropping live send")
	}

	return nil
}

// Shutdown initiates a graceful WebSocket drain: sends a shutdown frame to
// every connected client, waits for their write pumps to flush, then closes
// all connections. It blocks until drain is complete or the timeout expires.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

// drainClients sends a close frame to every client and waits for buffers to flush.
func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("draining WebSocket clients")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for client := range h.clients {
		select {
		case client.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd // poll interval
	defer ticker.Stop()

drain:
	for {
		allDrained := true

		for client := range h.clients {
			if len(client.send) > 0 {
				allDrained = false

				break
			}
		}

		if allDrained {
			break
		}

		select {
		case <-deadline:
			h.log.Warn("WebSocket drain timeout, closing remaining clients")

			break drain
		case <-ticker.C:
		}
	}

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}

	h.userCount = make(map[string]int)
	h.setCount()
}

// ReplayEvents sends buffered events after lastEventID that match the
// client's filter. Returns false if the requested ID is no longer buffered.
func (h *Hub) ReplayEvents(client *Client, lastEventID uint64) bool {
	oldest := h.buffer.OldestID()
	if oldest > 0 && lastEventID > 0 && lastEventID < oldest-1 {
		return false
	}

	filter := client.Filter()

	for _, evt := range h.buffer.Since(lastEventID) {
		if !filter.Matches(&evt) {
			continue
		}

		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}

		select {
		case client.send <- msg:
		default:
			return true // channel full, stop replay
		}
	}

	return true
}
