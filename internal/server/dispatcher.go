// Package server routes inbound protocol events to the room core and turns
// their outcomes into frames for the originator and the affected rooms.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

// Notice event names sent to the originator of a rejected request.
const (
	NoticeInvalidInviteCode  = "Invalid room invite code"
	NoticeRoomNotFound       = "Room not found"
	NoticeInvalidCredentials = "Invalid room credentials"
	NoticeDuplicateRoomName  = "Room name already taken"
	NoticeUnknownConnection  = "Unknown connection"
	NoticeNotInRoom          = "Not in a room"
	NoticeIdentityRequired   = "Identity required"
	NoticeInvalidEvent       = "Invalid event"
	NoticeRateLimited        = "Rate limited"
	NoticeServerError        = "Server error"
)

var (
	errInvalidEvent = errors.New("invalid event")
	errRateLimited  = errors.New("rate limited")
)

// State is the per-connection lifecycle position.
type State int

// Connection states.
const (
	StateClosed State = iota
	StateUnbound
	StateIdle
	StateInRoom
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateIdle:
		return "idle"
	case StateInRoom:
		return "in_room"
	default:
		return "closed"
	}
}

type eventHandler func(connID string, data json.RawMessage) error

// Dispatcher is the single entry point for inbound events. Each event name has
// exactly one handler registered at construction.
type Dispatcher struct {
	registry  *rooms.Registry
	store     *rooms.Store
	admission *rooms.Admission
	router    *Router
	metrics   *Metrics
	log       *slog.Logger
	handlers  map[string]eventHandler
}

// NewDispatcher wires the event handlers over the room core.
func NewDispatcher(registry *rooms.Registry, store *rooms.Store, admission *rooms.Admission, router *Router, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		store:     store,
		admission: admission,
		router:    router,
		metrics:   metrics,
		log:       logger,
	}
	d.handlers = map[string]eventHandler{
		EventCreateNewRoom:         d.handleCreateNewRoom,
		EventJoinChatRoom:          d.handleJoinChatRoom,
		EventJoinRoomViaInviteCode: d.handleJoinViaInviteCode,
		EventNewMessage:            d.handleNewMessage,
		EventLeaveChatRoom:         d.handleLeaveChatRoom,
		EventStartTyping:           d.handleTyping(true),
		EventStopTyping:            d.handleTyping(false),
	}
	return d
}

// Connect registers a new connection in the Unbound state.
func (d *Dispatcher) Connect(connID string, sink rooms.Sink) error {
	if _, err := d.registry.Register(connID, sink); err != nil {
		return fmt.Errorf("connect %s: %w", connID, err)
	}
	return nil
}

// State reports where connID is in its lifecycle.
func (d *Dispatcher) State(connID string) State {
	conn, ok := d.registry.Lookup(connID)
	switch {
	case !ok:
		return StateClosed
	case conn.Room != "":
		return StateInRoom
	case conn.Bound:
		return StateIdle
	default:
		return StateUnbound
	}
}

// Dispatch decodes one inbound frame and runs its handler. Failures are
// reported to connID only.
func (d *Dispatcher) Dispatch(connID string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.reject(connID, "", fmt.Errorf("%w: %v", errInvalidEvent, err))
		return
	}

	handler, ok := d.handlers[env.Event]
	if !ok {
		d.reject(connID, env.Event, fmt.Errorf("%w: unknown event %q", errInvalidEvent, env.Event))
		return
	}
	d.metrics.events.WithLabelValues(env.Event).Inc()

	if err := handler(connID, env.Data); err != nil {
		d.reject(connID, env.Event, err)
	}
}

// Disconnect finalizes connID and cascades a leave if it was in a room.
// Repeated calls are no-ops.
func (d *Dispatcher) Disconnect(connID string) {
	res, ok := d.store.Disconnect(connID)
	if !ok {
		return
	}
	d.log.Info("disconnect left room", "conn", connID, "room", res.Name, "remaining", res.Remaining)
	d.announceLeave(res, nil)
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	return nil
}

func (d *Dispatcher) handleCreateNewRoom(connID string, data json.RawMessage) error {
	var req CreateRoomRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	var name, password string
	if req.Room != nil {
		name, password = req.Room.resolve()
	}

	desc, err := d.admission.Create(connID, identityFrom(req.User, nil), name, password)
	if err != nil {
		return err
	}
	d.log.Info("room created", "conn", connID, "room", desc.Name)
	d.send(connID, EventCreatedNewRoom, descriptorFrom(desc))
	return nil
}

func (d *Dispatcher) handleJoinChatRoom(connID string, data json.RawMessage) error {
	var req JoinRoomRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	name, password := req.Room.resolve()
	res, err := d.admission.JoinByCredentials(connID, identityFrom(req.User, req.AvatarInfo), name, password)
	if err != nil {
		return err
	}
	d.completeJoin(connID, res)
	return nil
}

func (d *Dispatcher) handleJoinViaInviteCode(connID string, data json.RawMessage) error {
	var req InviteJoinRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	res, err := d.admission.JoinByInviteCode(connID, identityFrom(req.User, req.AvatarInfo), req.InviteCode)
	if err != nil {
		return err
	}
	d.completeJoin(connID, res)
	return nil
}

// completeJoin emits the leave notice for the room the connection moved out
// of, then the descriptor to the joiner and the join notice to the new room.
func (d *Dispatcher) completeJoin(connID string, res rooms.JoinResult) {
	if res.AlreadyMember {
		d.send(connID, EventJoinedChatRoom, descriptorFrom(res.Descriptor))
		return
	}
	if res.Previous != nil {
		d.announceLeave(*res.Previous, nil)
	}

	conn, ok := d.registry.Lookup(connID)
	if !ok {
		return
	}
	d.log.Info("joined room", "conn", connID, "room", res.Descriptor.Name)
	d.router.AnnounceJoin(res.Room, connID,
		func(dl rooms.Delivery) ([]byte, error) {
			return encodeFrame(EventJoinedChatRoom, descriptorFrom(dl.Descriptor))
		},
		membershipNotice(KindJoin, conn.Identity, conn.Identity.Username+" joined the room"))
}

func (d *Dispatcher) handleNewMessage(connID string, data json.RawMessage) error {
	var req NewMessageRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	identity, err := d.admission.Bind(connID, identityFrom(req.User, req.AvatarInfo))
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: empty message", errInvalidEvent)
	}

	room, err := d.store.CurrentRoom(connID)
	if err != nil {
		return err
	}

	d.router.BroadcastToRoom(room, func(dl rooms.Delivery) ([]byte, error) {
		return encodeFrame(EventMessage, ChatEvent{
			Kind:       KindChat,
			Room:       dl.Room,
			User:       userInfoOf(identity),
			AvatarInfo: avatarOf(identity),
			Timestamp:  dl.Timestamp.UnixMilli(),
			Sequence:   dl.Sequence,
			Message:    req.Message,
		})
	}, "")
	return nil
}

func (d *Dispatcher) handleLeaveChatRoom(connID string, data json.RawMessage) error {
	var req LeaveRoomRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	res, ok, err := d.store.LeaveRoom(connID)
	if err != nil {
		return err
	}
	if !ok {
		return rooms.ErrNotInRoom
	}

	d.log.Info("left room", "conn", connID, "room", res.Name, "remaining", res.Remaining)
	d.send(connID, EventLeftChatRoom, LeftRoom{Name: res.Name})
	d.announceLeave(res, req.AvatarInfo)
	return nil
}

func (d *Dispatcher) handleTyping(typing bool) eventHandler {
	return func(connID string, _ json.RawMessage) error {
		room, err := d.store.CurrentRoom(connID)
		if err != nil {
			return err
		}
		conn, ok := d.registry.Lookup(connID)
		if !ok {
			return rooms.ErrUnknownConnection
		}

		d.router.BroadcastToRoom(room, func(dl rooms.Delivery) ([]byte, error) {
			return encodeFrame(EventTyping, TypingEvent{
				User:       userInfoOf(conn.Identity),
				AvatarInfo: avatarOf(conn.Identity),
				Typing:     typing,
				Sequence:   dl.Sequence,
			})
		}, connID)
		return nil
	}
}

// announceLeave tells the remaining members that res.Connection left. A
// destroyed room has nobody left to tell, and a join that was never announced
// needs no leave notice.
func (d *Dispatcher) announceLeave(res rooms.LeaveResult, avatar *AvatarInfo) {
	if res.Destroyed {
		d.log.Info("room destroyed", "room", res.Name)
		return
	}
	if res.Unannounced {
		return
	}

	identity := res.Connection.Identity
	if avatar != nil && avatar.ID > 0 {
		identity.AvatarID = avatar.ID
	}
	d.router.BroadcastToRoom(res.Room,
		membershipNotice(KindLeave, identity, identity.Username+" left the room"), "")
}

func membershipNotice(kind string, identity rooms.Identity, text string) FrameBuilder {
	return func(dl rooms.Delivery) ([]byte, error) {
		return encodeFrame(EventMessage, ChatEvent{
			Kind:         kind,
			Room:         dl.Room,
			User:         userInfoOf(identity),
			AvatarInfo:   avatarOf(identity),
			Timestamp:    dl.Timestamp.UnixMilli(),
			Sequence:     dl.Sequence,
			EventMessage: text,
		})
	}
}

func (d *Dispatcher) send(connID, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		d.log.Error("encode frame", "conn", connID, "event", event, "err", err)
		return
	}
	d.router.SendTo(connID, frame)
}

// reject reports err to connID as a notice frame.
func (d *Dispatcher) reject(connID, event string, err error) {
	name, code := classify(err)
	d.metrics.rejections.WithLabelValues(code).Inc()

	if code == "server_error" {
		d.log.Error("event failed", "conn", connID, "event", event, "err", err)
	} else {
		d.log.Debug("event rejected", "conn", connID, "event", event, "err", err)
	}
	d.send(connID, name, Notice{Code: code, Message: err.Error()})
}

func classify(err error) (name, code string) {
	switch {
	case errors.Is(err, rooms.ErrInvalidInviteCode):
		return NoticeInvalidInviteCode, "invalid_invite_code"
	case errors.Is(err, rooms.ErrRoomNotFound):
		return NoticeRoomNotFound, "room_not_found"
	case errors.Is(err, rooms.ErrInvalidCredentials):
		return NoticeInvalidCredentials, "invalid_credentials"
	case errors.Is(err, rooms.ErrDuplicateRoomName):
		return NoticeDuplicateRoomName, "duplicate_room_name"
	case errors.Is(err, rooms.ErrUnknownConnection):
		return NoticeUnknownConnection, "unknown_connection"
	case errors.Is(err, rooms.ErrNotInRoom):
		return NoticeNotInRoom, "not_in_room"
	case errors.Is(err, rooms.ErrIdentityRequired):
		return NoticeIdentityRequired, "identity_required"
	case errors.Is(err, rooms.ErrInvalidRoomName), errors.Is(err, errInvalidEvent):
		return NoticeInvalidEvent, "invalid_event"
	case errors.Is(err, errRateLimited):
		return NoticeRateLimited, "rate_limited"
	default:
		return NoticeServerError, "server_error"
	}
}
