package rooms

import (
	"fmt"
	"sync"
	"time"
)

// Identity is the presentation data a user binds to a connection.
type Identity struct {
	Username string
	Gender   string
	AvatarID int
}

// IsZero reports whether no username has been supplied.
func (i Identity) IsZero() bool {
	return i.Username == ""
}

// Sink receives encoded frames for a single connection. Send must not block;
// it returns false when the frame could not be queued.
type Sink interface {
	Send(payload []byte) bool
	Evict()
}

// Connection is a point-in-time view of a registry entry.
type Connection struct {
	ID          string
	Identity    Identity
	Bound       bool
	Room        string
	ConnectedAt time.Time
}

type entry struct {
	id          string
	identity    Identity
	bound       bool
	connectedAt time.Time
	sink        Sink
	room        *Room
}

func (e *entry) snapshot() Connection {
	c := Connection{
		ID:          e.id,
		Identity:    e.identity,
		Bound:       e.bound,
		ConnectedAt: e.connectedAt,
	}
	if e.room != nil {
		c.Room = e.room.name
	}
	return c
}

// Registry tracks every live connection. It is safe for concurrent use.
//
// The room pointer of an entry is only written by Store while it holds its own
// lock, so membership and the registry never disagree.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	now   func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		now:   time.Now,
	}
}

// Register creates an entry with no identity and no room.
func (r *Registry) Register(id string, sink Sink) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; exists {
		return Connection{}, fmt.Errorf("register %s: %w", id, ErrConnectionExists)
	}
	e := &entry{id: id, sink: sink, connectedAt: r.now()}
	r.conns[id] = e
	return e.snapshot(), nil
}

// BindIdentity attaches user info to a connection, replacing any earlier binding.
func (r *Registry) BindIdentity(id string, identity Identity) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return Connection{}, fmt.Errorf("bind identity %s: %w", id, ErrUnknownConnection)
	}
	e.identity = identity
	e.bound = true
	return e.snapshot(), nil
}

// Unregister removes the entry and returns the room it was last in, if any.
// Removing an unknown id is a no-op. Use Store.Disconnect to also release the
// membership.
func (r *Registry) Unregister(id string) (Connection, *Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return Connection{}, nil, false
	}
	delete(r.conns, id)
	return e.snapshot(), e.room, true
}

// Lookup returns a snapshot of the connection.
func (r *Registry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return e.snapshot(), true
}

// Sink returns the delivery sink registered for id.
func (r *Registry) Sink(id string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.sink, true
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) room(id string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	return e.room, nil
}

func (r *Registry) setRoom(id string, room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[id]; ok {
		e.room = room
	}
}

// members resolves the identity and sink for a batch of ids in one lock pass.
func (r *Registry) members(ids []string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(ids))
	for _, id := range ids {
		e, ok := r.conns[id]
		if !ok {
			continue
		}
		out = append(out, Member{ID: id, Identity: e.identity, Sink: e.sink})
	}
	return out
}
