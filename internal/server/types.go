// Package server defines the wire protocol exchanged with chat clients and
// small helpers shared by the client, router and dispatcher.
package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Tyrowin/kollab-chat/internal/rooms"
)

// Inbound event names.
const (
	EventCreateNewRoom         = "createNewRoom"
	EventJoinChatRoom          = "joinChatRoom"
	EventJoinRoomViaInviteCode = "joinRoomViaInviteCode"
	EventNewMessage            = "newMessage"
	EventLeaveChatRoom         = "leaveChatRoom"
	EventStartTyping           = "startTyping"
	EventStopTyping            = "stopTyping"
)

// Outbound event names. Rejections use the notice names in dispatcher.go.
const (
	EventCreatedNewRoom = "createdNewRoom"
	EventJoinedChatRoom = "joinedChatRoom"
	EventLeftChatRoom   = "leftChatRoom"
	EventMessage        = "message"
	EventTyping         = "typing"
)

// ChatEvent kinds.
const (
	KindChat  = "chat"
	KindJoin  = "join"
	KindLeave = "leave"
)

// Envelope is the frame format used in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserInfo identifies the sender of an event.
type UserInfo struct {
	Username string `json:"username"`
	Gender   string `json:"gender,omitempty"`
}

// AvatarInfo is the presentation data chosen client-side at join time.
type AvatarInfo struct {
	ID     int    `json:"id"`
	Gender string `json:"gender"`
}

// RoomCredentials accepts both the form field names and the descriptor names so
// a createdNewRoom descriptor can be echoed back as-is.
type RoomCredentials struct {
	RoomName     string `json:"roomName,omitempty"`
	RoomPassword string `json:"roomPassword,omitempty"`
	Name         string `json:"name,omitempty"`
	Password     string `json:"password,omitempty"`
}

func (c RoomCredentials) resolve() (name, password string) {
	name, password = c.RoomName, c.RoomPassword
	if name == "" {
		name = c.Name
	}
	if password == "" {
		password = c.Password
	}
	return name, password
}

// CreateRoomRequest is the createNewRoom payload.
type CreateRoomRequest struct {
	User *UserInfo        `json:"user"`
	Room *RoomCredentials `json:"room,omitempty"`
}

// JoinRoomRequest is the joinChatRoom payload.
type JoinRoomRequest struct {
	User       *UserInfo       `json:"user"`
	Room       RoomCredentials `json:"room"`
	AvatarInfo *AvatarInfo     `json:"avatarInfo,omitempty"`
}

// InviteJoinRequest is the joinRoomViaInviteCode payload.
type InviteJoinRequest struct {
	InviteCode string      `json:"inviteCode"`
	User       *UserInfo   `json:"user"`
	AvatarInfo *AvatarInfo `json:"avatarInfo,omitempty"`
}

// NewMessageRequest is the newMessage payload. Room is accepted for
// compatibility but routing always uses the sender's current room.
type NewMessageRequest struct {
	User       *UserInfo       `json:"user"`
	Message    string          `json:"message"`
	Room       json.RawMessage `json:"room,omitempty"`
	AvatarInfo *AvatarInfo     `json:"avatarInfo,omitempty"`
}

// LeaveRoomRequest is the leaveChatRoom payload.
type LeaveRoomRequest struct {
	AvatarInfo *AvatarInfo `json:"avatarInfo,omitempty"`
}

// RoomDescriptor is sent on create and join. It deliberately carries the
// plaintext password and invite code.
type RoomDescriptor struct {
	Name         string   `json:"name"`
	Password     string   `json:"password"`
	InviteCode   string   `json:"inviteCode"`
	RoomName     string   `json:"roomName"`
	RoomPassword string   `json:"roomPassword"`
	Members      []string `json:"members"`
}

// ChatEvent is a chat message or membership notice delivered to a room.
type ChatEvent struct {
	Kind         string     `json:"kind"`
	Room         string     `json:"room"`
	User         UserInfo   `json:"user"`
	AvatarInfo   AvatarInfo `json:"avatarInfo"`
	Timestamp    int64      `json:"timestamp"`
	Sequence     uint64     `json:"sequence"`
	Message      string     `json:"message,omitempty"`
	EventMessage string     `json:"eventMessage,omitempty"`
}

// TypingEvent relays a typing start or stop signal.
type TypingEvent struct {
	User       UserInfo   `json:"user"`
	AvatarInfo AvatarInfo `json:"avatarInfo"`
	Typing     bool       `json:"typing"`
	Sequence   uint64     `json:"sequence"`
}

// Notice reports a rejected request to its originator only.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LeftRoom confirms an explicit leave.
type LeftRoom struct {
	Name string `json:"name"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return frame, nil
}

func identityFrom(user *UserInfo, avatar *AvatarInfo) rooms.Identity {
	var id rooms.Identity
	if user != nil {
		id.Username = user.Username
		id.Gender = user.Gender
	}
	if avatar != nil {
		id.AvatarID = avatar.ID
		if id.Gender == "" {
			id.Gender = avatar.Gender
		}
	}
	return id
}

func userInfoOf(id rooms.Identity) UserInfo {
	return UserInfo{Username: id.Username, Gender: id.Gender}
}

func avatarOf(id rooms.Identity) AvatarInfo {
	return AvatarInfo{ID: id.AvatarID, Gender: id.Gender}
}

func descriptorFrom(d rooms.Descriptor) RoomDescriptor {
	members := d.Members
	if members == nil {
		members = []string{}
	}
	return RoomDescriptor{
		Name:         d.Name,
		Password:     d.Password,
		InviteCode:   d.InviteCode,
		RoomName:     d.Name,
		RoomPassword: d.Password,
		Members:      members,
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
