package rooms

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Room is an active chat room. Its exported accessors are safe to call at any
// time; membership is read through Store.
type Room struct {
	name       string
	password   string
	inviteCode string
	createdAt  time.Time

	// members is guarded by Store.mu and kept in join order.
	members []string
	// pending holds members whose join has not been announced yet. Fanout
	// skips them until Admit delivers their descriptor. Guarded by Store.mu.
	pending map[string]struct{}
	// joined stays false until the first member arrives; Store.Sweep destroys
	// rooms that were created and never joined.
	joined bool

	// deliver serialises fan-out so every member sees the room's events in
	// the order they were accepted.
	deliver   sync.Mutex
	sequence  uint64
	lastStamp time.Time
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// InviteCode returns the code that admits joiners without the password.
func (r *Room) InviteCode() string { return r.inviteCode }

// Descriptor is the room as presented to clients. The password and invite code
// are part of the client contract.
type Descriptor struct {
	Name       string
	Password   string
	InviteCode string
	Members    []string
	CreatedAt  time.Time
}

// Summary is the operator-facing view of a room without credentials.
type Summary struct {
	Name      string
	Members   int
	CreatedAt time.Time
}

// Member is a resolved room member ready for delivery.
type Member struct {
	ID       string
	Identity Identity
	Sink     Sink
}

// Delivery is handed to Fanout callbacks. Sequence and Timestamp are assigned
// at acceptance time and never decrease within a room.
type Delivery struct {
	Room      string
	Sequence  uint64
	Timestamp time.Time
	Members   []Member
	// Admitted and Descriptor are only set by Admit.
	Admitted   string
	Descriptor Descriptor
}

// LeaveResult describes a membership removal.
type LeaveResult struct {
	Room       *Room
	Name       string
	Connection Connection
	Remaining  int
	Destroyed  bool
	// Unannounced is set when the connection left before its join was
	// delivered to the room.
	Unannounced bool
}

// JoinResult describes a committed join. Previous is set when the connection
// was moved out of another room as part of the join.
type JoinResult struct {
	Room          *Room
	Descriptor    Descriptor
	Previous      *LeaveResult
	AlreadyMember bool
}

// Store owns the active rooms. Every compound operation runs under a single
// lock so lookups and mutations never interleave.
type Store struct {
	mu       sync.RWMutex
	byName   map[string]*Room
	byCode   map[string]*Room
	registry *Registry
	codes    *Allocator
	now      func() time.Time
}

// NewStore returns an empty Store bound to registry and codes.
func NewStore(registry *Registry, codes *Allocator) *Store {
	return &Store{
		byName:   make(map[string]*Room),
		byCode:   make(map[string]*Room),
		registry: registry,
		codes:    codes,
		now:      time.Now,
	}
}

// CreateRoom registers a new room with a fresh invite code. The creator is not
// joined; a separate join follows.
func (s *Store) CreateRoom(name, password string) (Descriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Descriptor{}, fmt.Errorf("create room: %w", ErrInvalidRoomName)
	}

	code := s.codes.Allocate()

	s.mu.Lock()
	if _, exists := s.byName[name]; exists {
		s.mu.Unlock()
		s.codes.Release(code)
		return Descriptor{}, fmt.Errorf("create room %q: %w", name, ErrDuplicateRoomName)
	}
	room := &Room{
		name:       name,
		password:   password,
		inviteCode: code,
		createdAt:  s.now(),
		pending:    make(map[string]struct{}),
	}
	s.byName[name] = room
	s.byCode[code] = room
	desc := s.describe(room)
	s.mu.Unlock()

	return desc, nil
}

// JoinRoom admits connID to the named room when password matches exactly.
func (s *Store) JoinRoom(name, password, connID string) (JoinResult, error) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.byName[name]
	if !ok {
		return JoinResult{}, fmt.Errorf("join room %q: %w", name, ErrRoomNotFound)
	}
	if room.password != password {
		return JoinResult{}, fmt.Errorf("join room %q: %w", name, ErrInvalidCredentials)
	}
	return s.join(room, connID)
}

// JoinRoomByInviteCode admits connID to the room holding code.
func (s *Store) JoinRoomByInviteCode(code, connID string) (JoinResult, error) {
	code = NormalizeInviteCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.byCode[code]
	if !ok {
		return JoinResult{}, fmt.Errorf("join by invite code: %w", ErrInvalidInviteCode)
	}
	return s.join(room, connID)
}

// join moves connID into room. Caller holds s.mu.
func (s *Store) join(room *Room, connID string) (JoinResult, error) {
	current, err := s.registry.room(connID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join room %q: %w", room.name, err)
	}
	if current == room {
		return JoinResult{Room: room, Descriptor: s.describe(room), AlreadyMember: true}, nil
	}

	result := JoinResult{Room: room}
	if current != nil {
		left := s.removeMember(current, connID)
		result.Previous = &left
	}
	room.members = append(room.members, connID)
	room.pending[connID] = struct{}{}
	room.joined = true
	s.registry.setRoom(connID, room)
	result.Descriptor = s.describe(room)
	return result, nil
}

// LeaveRoom removes connID from its room. The bool is false when the
// connection was not in a room.
func (s *Store) LeaveRoom(connID string) (LeaveResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.registry.room(connID)
	if err != nil {
		return LeaveResult{}, false, fmt.Errorf("leave room: %w", err)
	}
	if current == nil {
		return LeaveResult{}, false, nil
	}
	result := s.removeMember(current, connID)
	s.registry.setRoom(connID, nil)
	return result, true, nil
}

// Disconnect unregisters connID and releases its membership in the same
// critical section. Repeated calls are no-ops.
func (s *Store) Disconnect(connID string) (LeaveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, room, ok := s.registry.Unregister(connID)
	if !ok || room == nil {
		return LeaveResult{}, false
	}
	result := s.removeMember(room, connID)
	result.Connection = conn
	return result, true
}

// removeMember drops connID from room and destroys the room when it empties.
// Caller holds s.mu.
func (s *Store) removeMember(room *Room, connID string) LeaveResult {
	for i, id := range room.members {
		if id == connID {
			room.members = append(room.members[:i], room.members[i+1:]...)
			break
		}
	}
	_, unannounced := room.pending[connID]
	delete(room.pending, connID)
	result := LeaveResult{
		Room:        room,
		Name:        room.name,
		Remaining:   len(room.members),
		Unannounced: unannounced,
	}
	if conn, ok := s.registry.Lookup(connID); ok {
		result.Connection = conn
	}
	if len(room.members) == 0 {
		s.destroy(room)
		result.Destroyed = true
	}
	return result
}

// destroy removes room and releases its code. Caller holds s.mu.
func (s *Store) destroy(room *Room) {
	if s.byName[room.name] == room {
		delete(s.byName, room.name)
	}
	if s.byCode[room.inviteCode] == room {
		delete(s.byCode, room.inviteCode)
	}
	s.codes.Release(room.inviteCode)
}

// Sweep destroys rooms that were created but never joined and are older than
// maxAge. It returns the number of rooms removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, room := range s.byName {
		if !room.joined && len(room.members) == 0 && room.createdAt.Before(cutoff) {
			s.destroy(room)
			removed++
		}
	}
	return removed
}

// FindByName returns the active room with that name.
func (s *Store) FindByName(name string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.byName[strings.TrimSpace(name)]
	if !ok {
		return Descriptor{}, false
	}
	return s.describe(room), true
}

// FindByInviteCode returns the active room holding code.
func (s *Store) FindByInviteCode(code string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.byCode[NormalizeInviteCode(code)]
	if !ok {
		return Descriptor{}, false
	}
	return s.describe(room), true
}

// CurrentRoom returns the room connID belongs to.
func (s *Store) CurrentRoom(connID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, err := s.registry.room(connID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrNotInRoom
	}
	return room, nil
}

// Members returns the connection ids of room in join order.
func (s *Store) Members(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.byName[name]
	if !ok {
		return nil
	}
	return append([]string(nil), room.members...)
}

// Rooms lists active rooms sorted by name.
func (s *Store) Rooms() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.byName))
	for _, room := range s.byName {
		out = append(out, Summary{Name: room.name, Members: len(room.members), CreatedAt: room.createdAt})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of active rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

// Fanout invokes fn with the announced members of room while holding the
// room's delivery lock. The store lock is only held for the membership
// snapshot, so a slow fn never stalls other rooms. fn must not call back into
// Store. It returns false if room is no longer active.
func (s *Store) Fanout(room *Room, fn func(Delivery)) bool {
	room.deliver.Lock()
	defer room.deliver.Unlock()

	s.mu.RLock()
	if s.byName[room.name] != room {
		s.mu.RUnlock()
		return false
	}
	members := s.registry.members(announced(room))
	s.mu.RUnlock()

	fn(s.stamp(room, members))
	return true
}

// Admit announces a pending join. fn receives the room descriptor and every
// member including connID, and no other delivery to room can interleave
// between connID becoming visible and fn. It returns false if the room is gone
// or connID is no longer a pending member.
func (s *Store) Admit(room *Room, connID string, fn func(Delivery)) bool {
	room.deliver.Lock()
	defer room.deliver.Unlock()

	s.mu.Lock()
	_, pending := room.pending[connID]
	if s.byName[room.name] != room || !pending {
		s.mu.Unlock()
		return false
	}
	delete(room.pending, connID)
	members := s.registry.members(announced(room))
	desc := s.describe(room)
	s.mu.Unlock()

	d := s.stamp(room, members)
	d.Admitted = connID
	d.Descriptor = desc
	fn(d)
	return true
}

// stamp assigns the next sequence and timestamp. Caller holds room.deliver.
func (s *Store) stamp(room *Room, members []Member) Delivery {
	room.sequence++
	stamp := s.now()
	if stamp.Before(room.lastStamp) {
		stamp = room.lastStamp
	}
	room.lastStamp = stamp
	return Delivery{
		Room:      room.name,
		Sequence:  room.sequence,
		Timestamp: stamp,
		Members:   members,
	}
}

// announced returns the members of room that are visible to fan-out. Caller
// holds Store.mu.
func announced(room *Room) []string {
	if len(room.pending) == 0 {
		return room.members
	}
	out := make([]string, 0, len(room.members))
	for _, id := range room.members {
		if _, ok := room.pending[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// describe builds the client view of room. Caller holds s.mu.
func (s *Store) describe(room *Room) Descriptor {
	members := s.registry.members(room.members)
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Identity.Username)
	}
	return Descriptor{
		Name:       room.name,
		Password:   room.password,
		InviteCode: room.inviteCode,
		Members:    names,
		CreatedAt:  room.createdAt,
	}
}
