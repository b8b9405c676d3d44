package rooms

import "errors"

// Admission and membership failures. Callers classify them with errors.Is.
var (
	ErrDuplicateRoomName  = errors.New("room name already taken")
	ErrRoomNotFound       = errors.New("room not found")
	ErrInvalidCredentials = errors.New("invalid room credentials")
	ErrInvalidInviteCode  = errors.New("invalid room invite code")
	ErrUnknownConnection  = errors.New("unknown connection")
	ErrNotInRoom          = errors.New("not in a room")
	ErrIdentityRequired   = errors.New("identity required")
	ErrConnectionExists   = errors.New("connection already registered")
	ErrInvalidRoomName    = errors.New("invalid room name")
)
