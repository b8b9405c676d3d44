// Package testutil provides helpers shared by the WebSocket-level tests of the
// chat server: dialing peers, sending protocol events and reading frames.
//
// It deliberately does not import internal/server so in-package tests there
// can use it too.
package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultOrigin is accepted by the server's default allow-list.
const DefaultOrigin = "http://localhost:3000"

// Frame is one decoded protocol frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the frame payload into v or fails the test.
func (f Frame) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s payload %s: %v", f.Event, f.Data, err)
	}
}

// Peer is a test WebSocket client. A single WebSocket message may carry
// several newline-separated frames; Peer splits them and queues the rest.
type Peer struct {
	Conn    *websocket.Conn
	pending []Frame
}

// WebSocketURL converts an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// Dial connects to url with the given Origin header.
func Dial(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Connect dials url with DefaultOrigin and registers cleanup on t.
func Connect(t *testing.T, url string) *Peer {
	t.Helper()
	conn, _, err := Dial(url, DefaultOrigin)
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", url, err)
	}
	p := &Peer{Conn: conn}
	t.Cleanup(p.Close)
	return p
}

// Send writes one event frame.
func (p *Peer) Send(t *testing.T, event string, data any) {
	t.Helper()
	if err := p.Write(event, data); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// Write is Send for use off the test goroutine.
func (p *Peer) Write(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.Conn.WriteJSON(Frame{Event: event, Data: raw})
}

// SendRaw writes an arbitrary text message.
func (p *Peer) SendRaw(t *testing.T, payload []byte) {
	t.Helper()
	if err := p.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("send raw: %v", err)
	}
}

// Next returns the next frame, failing the test if none arrives in timeout.
func (p *Peer) Next(t *testing.T, timeout time.Duration) Frame {
	t.Helper()
	f, err := p.next(timeout)
	if err != nil {
		t.Fatalf("waiting for frame: %v", err)
	}
	return f
}

// WaitFor skips frames until one named event arrives.
func (p *Peer) WaitFor(t *testing.T, event string, timeout time.Duration) Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for %q", event)
		}
		f, err := p.next(remaining)
		if err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

// ExpectSilence fails the test if any frame arrives within d. The read
// deadline leaves the connection unusable, so call it last.
func (p *Peer) ExpectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	f, err := p.next(d)
	if err == nil {
		t.Fatalf("expected no frame, got %s %s", f.Event, f.Data)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// Close sends a normal close frame and closes the connection.
func (p *Peer) Close() {
	_ = p.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.Conn.Close()
}

func (p *Peer) next(timeout time.Duration) (Frame, error) {
	if len(p.pending) > 0 {
		f := p.pending[0]
		p.pending = p.pending[1:]
		return f, nil
	}

	if err := p.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Frame{}, err
	}
	_, msg, err := p.Conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}

	for _, line := range bytes.Split(msg, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return Frame{}, err
		}
		p.pending = append(p.pending, f)
	}
	return p.next(timeout)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	if contentType := resp.Header.Get("Content-Type"); contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request with a 5-second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}
