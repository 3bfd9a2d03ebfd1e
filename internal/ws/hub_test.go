package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labweave/labweave/internal/models"
)

func testHub(t *testing.T) *Hub {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewHub(log)
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

func fakeClient(h *Hub, userID string) *Client {
	return &Client{hub: h, send: make(chan []byte, 16), log: h.log, UserID: userID}
}

func docEvent(docID, projectID string) models.Event {
	ev := models.NewEvent(models.EventDocumentCreated, &models.Document{ID: docID, ProjectID: projectID, Title: "T " + docID})
	return ev
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")

		var evt Event
		require.NoError(t, json.Unmarshal(msg, &evt))

		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	return Event{}
}

func TestHub_PublishBroadcastsToMatchingClients(t *testing.T) {
	h := testHub(t)
	runHub(t, h)

	all := fakeClient(h, "alice")
	onlyDoc2 := fakeClient(h, "bob")
	onlyDoc2.SetFilter(Filter{DocumentID: "doc-2"})

	h.Register(all)
	h.Register(onlyDoc2)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Publish(context.Background(), docEvent("doc-1", "p1")))
	require.NoError(t, h.Publish(context.Background(), docEvent("doc-2", "p1")))

	first := receive(t, all)
	second := receive(t, all)
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, "doc-1", first.DocumentID)
	assert.Equal(t, uint64(2), second.ID)
	assert.Equal(t, "p1", second.ProjectID)

	got := receive(t, onlyDoc2)
	assert.Equal(t, "doc-2", got.DocumentID)
	assert.Equal(t, string(models.EventDocumentCreated), got.Type)

	var s Summary
	require.NoError(t, json.Unmarshal(got.Data, &s))
	assert.Equal(t, "T doc-2", s.Title)
	assert.Empty(t, onlyDoc2.send)
}

func TestHub_ReplayHonorsFilter(t *testing.T) {
	h := testHub(t)

	for i := range 4 {
		require.NoError(t, h.Publish(context.Background(), docEvent(fmt.Sprintf("doc-%d", i%2), "p")))
	}

	c := fakeClient(h, "alice")
	c.SetFilter(Filter{DocumentID: "doc-1"})

	require.True(t, h.ReplayEvents(c, 0))
	require.Len(t, c.send, 2)
	assert.Equal(t, uint64(2), receive(t, c).ID)
	assert.Equal(t, uint64(4), receive(t, c).ID)

	require.True(t, h.ReplayEvents(c, 2))
	require.Len(t, c.send, 1)
	assert.Equal(t, uint64(4), receive(t, c).ID)
}

func TestHub_ReplayReportsEvictedEvents(t *testing.T) {
	h := testHub(t)
	h.buffer = NewEventBuffer(2, time.Hour)

	for range 5 {
		require.NoError(t, h.Publish(context.Background(), docEvent("doc-1", "")))
	}

	c := fakeClient(h, "alice")
	assert.False(t, h.ReplayEvents(c, 1), "event 2 was evicted")
	assert.Empty(t, c.send)

	assert.True(t, h.ReplayEvents(c, 3))
	assert.Len(t, c.send, 2)
}

func TestHub_SubscribeSetsFilterAndSendsReset(t *testing.T) {
	h := testHub(t)
	h.buffer = NewEventBuffer(1, time.Hour)

	for range 3 {
		require.NoError(t, h.Publish(context.Background(), docEvent("doc-1", "")))
	}

	c := fakeClient(h, "alice")
	c.handleMessage([]byte(`{"type":"subscribe","last_event_id":1,"project_id":"p9"}`))

	assert.Equal(t, Filter{ProjectID: "p9"}, c.Filter())

	var reset ResetMsg
	require.NoError(t, json.Unmarshal(<-c.send, &reset))
	assert.Equal(t, "reset", reset.Type)

	c.handleMessage([]byte(`{"type":"ping"}`))
	c.handleMessage([]byte(`not json`))
	assert.Equal(t, Filter{ProjectID: "p9"}, c.Filter())
	assert.Empty(t, c.send)
}

func TestHub_PerUserConnectionCap(t *testing.T) {
	h := testHub(t)
	runHub(t, h)

	clients := make([]*Client, maxClientsPerID+1)
	for i := range clients {
		clients[i] = fakeClient(h, "alice")
		h.Register(clients[i])
	}

	other := fakeClient(h, "bob")
	h.Register(other)

	require.Eventually(t, func() bool { return h.ClientCount() == maxClientsPerID+1 }, time.Second, 5*time.Millisecond)

	_, open := <-clients[maxClientsPerID].send
	assert.False(t, open, "client over the per-user cap must be closed")

	h.Unregister(clients[0])
	require.Eventually(t, func() bool { return h.ClientCount() == maxClientsPerID }, time.Second, 5*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := testHub(t)
	go h.Run(context.Background())

	c := fakeClient(h, "alice")
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// Drain the shutdown frame so the hub does not wait out its timeout.
	go func() {
		for range c.send { //nolint:revive // drain
		}
	}()

	h.Shutdown()
	assert.Equal(t, 0, h.ClientCount())
}
