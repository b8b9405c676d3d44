// Package server coordinates client registration, pump lifecycle, and
// connection cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

// Hub owns the set of live WebSocket clients. It registers each client with
// the dispatcher, runs its pumps, and triggers the disconnect cascade when a
// client goes away. Room state itself lives in rooms.Store.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	dispatcher *Dispatcher
	store      *rooms.Store
	log        *slog.Logger
	pendingTTL time.Duration
	sweepEvery time.Duration
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	started    sync.Once
}

// NewHub creates a Hub bound to dispatcher. Rooms that were created but never
// joined are swept after pendingTTL.
func NewHub(dispatcher *Dispatcher, store *rooms.Store, pendingTTL time.Duration, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingRoomTTL
	}
	sweepEvery := pendingTTL / 2
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		dispatcher: dispatcher,
		store:      store,
		log:        logger,
		pendingTTL: pendingTTL,
		sweepEvery: sweepEvery,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a client to the run loop. It reports false once the hub is
// shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// leave is called by a client's read pump on exit.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.remove(client)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration,
// unregistration and the pending-room sweep. It blocks until Shutdown.
func (h *Hub) Run() {
	first := false
	h.started.Do(func() { first = true })
	if !first {
		return
	}
	defer close(h.done)

	sweep := time.NewTicker(h.sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case <-sweep.C:
			if n := h.store.Sweep(h.pendingTTL); n > 0 {
				h.log.Info("swept unjoined rooms", "count", n)
			}
		}
	}
}

func (h *Hub) add(client *Client) {
	if client == nil {
		h.log.Warn("received nil client registration; skipping")
		return
	}

	if err := h.dispatcher.Connect(client.id, client); err != nil {
		h.log.Error("client registration failed", "conn", client.id, "err", err)
		client.closeSend()
		if client.conn != nil {
			_ = client.conn.Close()
		}
		return
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("client registered", "conn", client.id, "remote", client.addr, "clients", clientCount)

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// remove detaches a client and runs the disconnect cascade. Safe to call more
// than once for the same client.
func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.closeSend()
	h.dispatcher.Disconnect(client.id)

	if ok {
		h.log.Info("client unregistered", "conn", client.id, "remote", client.addr, "clients", clientCount)
	}
}

// shutdownClients closes every connection. The read pumps then unwind through
// leave, which falls back to remove because the context is cancelled.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.closeSend()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Error("error closing client connection", "conn", client.id, "err", err)
			}
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")
	h.cancel()

	// A hub that never ran has nothing to drain.
	h.started.Do(func() { close(h.done) })

	deadline := time.After(timeout)
	select {
	case <-h.done:
	case <-deadline:
		h.log.Warn("hub shutdown timeout reached before run loop exited")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-deadline:
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
