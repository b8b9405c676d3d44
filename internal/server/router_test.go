package server

import (
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

func TestRouterEvictsSlowConsumers(t *testing.T) {
	h := newHarness(t)
	fast := h.connect(t, "c1")
	slow := h.connect(t, "c2")
	h.create(t, "c1", "ann", "alpha", "p1")
	h.join(t, "c1", "ann", "alpha", "p1")
	h.join(t, "c2", "bob", "alpha", "p1")
	fast.reset()

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	h.send(t, "c1", EventNewMessage, NewMessageRequest{Message: "hi"})

	assert.Len(t, fast.envelopes(t), 1)
	assert.Equal(t, 1, slow.evicted)
	assert.Equal(t, float64(1), promtest.ToFloat64(h.metrics.dropped))
}

func TestRouterBroadcastExcludesAndCounts(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "c1")
	b := h.connect(t, "c2")
	h.create(t, "c1", "ann", "alpha", "p1")
	h.join(t, "c1", "ann", "alpha", "p1")
	h.join(t, "c2", "bob", "alpha", "p1")
	a.reset()
	b.reset()

	room, err := h.store.CurrentRoom("c1")
	require.NoError(t, err)

	router := h.dispatcher.router
	n := router.BroadcastToRoom(room, func(d rooms.Delivery) ([]byte, error) {
		return encodeFrame(EventMessage, ChatEvent{Kind: KindChat, Sequence: d.Sequence})
	}, "c1")

	assert.Equal(t, 1, n)
	assert.Empty(t, a.envelopes(t))
	assert.Len(t, b.envelopes(t), 1)
}

func TestRouterSkipsDestroyedRoom(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "c1")
	h.create(t, "c1", "ann", "alpha", "p1")
	h.join(t, "c1", "ann", "alpha", "p1")
	room, err := h.store.CurrentRoom("c1")
	require.NoError(t, err)
	a.reset()

	h.dispatcher.Disconnect("c1")

	n := h.dispatcher.router.BroadcastToRoom(room, func(rooms.Delivery) ([]byte, error) {
		return []byte(`{}`), nil
	}, "")
	assert.Zero(t, n)
	assert.Empty(t, a.envelopes(t))
}

func TestRouterSendToUnknownConnection(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.dispatcher.router.SendTo("ghost", []byte(`{}`)))
}
