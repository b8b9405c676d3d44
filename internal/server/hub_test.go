package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *harness) {
	t.Helper()
	h := newHarness(t)
	return NewHub(h.dispatcher, h.store, time.Minute, discardLogger()), h
}

func TestHubShutdownWithoutRun(t *testing.T) {
	hub, _ := newTestHub(t)

	require.NoError(t, hub.Shutdown(time.Second))
	assert.False(t, hub.Register(NewClient(nil, hub, "test", *NewConfig())), "no registrations after shutdown")

	hub.Run()
}

func TestHubRunAndShutdown(t *testing.T) {
	hub, _ := newTestHub(t)
	go hub.Run()

	client := NewClient(nil, hub, "test", *NewConfig())
	require.True(t, hub.Register(client))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Shutdown(time.Second))
	assert.True(t, client.isClosed())
}

func TestHubRemoveRunsCascadeOnce(t *testing.T) {
	hub, h := newTestHub(t)
	watcher := h.connect(t, "watcher")

	client := NewClient(nil, hub, "test", *NewConfig())
	hub.add(client)
	require.Equal(t, 1, hub.ClientCount())

	h.create(t, client.ID(), "ann", "alpha", "p1")
	h.join(t, client.ID(), "ann", "alpha", "p1")
	h.join(t, "watcher", "bob", "alpha", "p1")
	watcher.reset()

	hub.remove(client)
	hub.remove(client)

	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, StateClosed, h.dispatcher.State(client.ID()))
	assert.Len(t, watcher.envelopes(t), 1, "one leave notice")
	assert.False(t, client.Send([]byte("late")), "closed clients refuse frames")
}

func TestHubRejectsDuplicateConnection(t *testing.T) {
	hub, h := newTestHub(t)
	client := NewClient(nil, hub, "test", *NewConfig())
	h.connect(t, client.ID())

	hub.add(client)
	assert.Equal(t, 0, hub.ClientCount())
	assert.True(t, client.isClosed())
}

func TestClientSendNeverBlocks(t *testing.T) {
	hub, _ := newTestHub(t)
	cfg := *NewConfig()
	cfg.SendBufferSize = 1
	client := NewClient(nil, hub, "test", cfg)

	assert.True(t, client.Send([]byte("a")))
	assert.False(t, client.Send([]byte("b")), "buffer full")
	assert.Equal(t, []byte("a"), <-client.GetSendChan())

	client.Evict()
	client.Evict()
	assert.False(t, client.Send([]byte("c")))
	_, open := <-client.GetSendChan()
	assert.False(t, open)
}
