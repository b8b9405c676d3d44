// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client represents a WebSocket client connection in the chat system.
// It implements rooms.Sink: the router queues frames through Send and drops
// slow consumers through Evict.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	log            *slog.Logger
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig

	mu        sync.RWMutex
	closed    bool
	evictOnce sync.Once
}

// NewClient creates a new Client with a fresh connection id. The client's send
// channel is buffered to cfg.SendBufferSize frames.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	cfg = SanitizeConfig(cfg)
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	logger := slog.Default()
	if hub != nil {
		logger = hub.log
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		log:            logger.With("conn", id, "remote", addr),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection id used by the room registry.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Send queues a frame without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) Send(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Evict closes the connection so the read pump unwinds and the hub runs the
// normal disconnect cascade.
func (c *Client) Evict() {
	c.evictOnce.Do(func() {
		c.log.Warn("evicting slow client")
		if c.conn == nil {
			c.closeSend()
			return
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("error closing evicted connection", "err", err)
		}
	})
}

// closeSend closes the send channel once, which makes the write pump send a
// close frame and exit.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("error setting initial read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Error("error setting read deadline in pong handler", "err", err)
		}
		return nil
	})
}

// logReadError logs the reason the read loop is ending.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client connection closed", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected websocket close", "err", err)
	default:
		c.log.Error("websocket read error", "err", err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("rate limit exceeded; discarding message",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("error closing connection in readPump", "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			c.hub.dispatcher.reject(c.id, "", errRateLimited)
			continue
		}

		c.hub.dispatcher.Dispatch(c.id, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Error("error closing connection in writePump", "err", err)
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("error setting write deadline", "err", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Error("error writing close message", "err", err)
	}
	return false
}

// writeTextMessage writes a frame and coalesces any queued frames into the
// same websocket message, newline separated.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Error("error creating writer", "err", err)
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.log.Error("error writing message", "err", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			break
		}
		if !c.writeQueuedMessage(w, queued) {
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Error("error closing writer", "err", err)
		return false
	}
	return true
}

// writeQueuedMessage writes a single queued message with newline separator
func (c *Client) writeQueuedMessage(w io.Writer, message []byte) bool {
	if _, err := w.Write([]byte{'\n'}); err != nil {
		c.log.Error("error writing newline", "err", err)
		return false
	}
	if _, err := w.Write(message); err != nil {
		c.log.Error("error writing queued message", "err", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("error setting write deadline for ping", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Error("error writing ping message", "err", err)
		return false
	}
	return true
}
