package rooms

import (
	"errors"
	"fmt"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	generatedNameLength     = 8
	generatedPasswordLength = 8
	maxGeneratedNameTries   = 5

	generatedAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"
)

// Admission validates the three ways into a room and binds the joiner's
// identity before the join commits.
type Admission struct {
	store     *Store
	registry  *Registry
	names     func() string
	passwords func() string
}

// NewAdmission returns an Admission over store and registry.
func NewAdmission(store *Store, registry *Registry) (*Admission, error) {
	names, err := nanoid.CustomASCII(generatedAlphabet, generatedNameLength)
	if err != nil {
		return nil, fmt.Errorf("room name generator: %w", err)
	}
	passwords, err := nanoid.CustomASCII(generatedAlphabet, generatedPasswordLength)
	if err != nil {
		return nil, fmt.Errorf("room password generator: %w", err)
	}
	return &Admission{
		store:     store,
		registry:  registry,
		names:     names,
		passwords: passwords,
	}, nil
}

// Bind attaches identity to connID. An empty identity keeps the current
// binding, or fails with ErrIdentityRequired if there is none. A negative or
// zero AvatarID keeps the previously bound avatar.
func (a *Admission) Bind(connID string, identity Identity) (Identity, error) {
	current, ok := a.registry.Lookup(connID)
	if !ok {
		return Identity{}, fmt.Errorf("bind: %w", ErrUnknownConnection)
	}

	identity.Username = strings.TrimSpace(identity.Username)
	if identity.IsZero() {
		if current.Bound {
			return current.Identity, nil
		}
		return Identity{}, ErrIdentityRequired
	}
	if identity.AvatarID <= 0 && current.Bound {
		identity.AvatarID = current.Identity.AvatarID
	}
	if identity.Gender == "" && current.Bound {
		identity.Gender = current.Identity.Gender
	}

	conn, err := a.registry.BindIdentity(connID, identity)
	if err != nil {
		return Identity{}, err
	}
	return conn.Identity, nil
}

// Create registers a room for connID. An empty name or password is generated.
func (a *Admission) Create(connID string, identity Identity, name, password string) (Descriptor, error) {
	if _, err := a.Bind(connID, identity); err != nil {
		return Descriptor{}, err
	}
	if password == "" {
		password = a.passwords()
	}

	name = strings.TrimSpace(name)
	if name != "" {
		return a.store.CreateRoom(name, password)
	}

	var lastErr error
	for range maxGeneratedNameTries {
		desc, err := a.store.CreateRoom(a.names(), password)
		if err == nil {
			return desc, nil
		}
		if !errors.Is(err, ErrDuplicateRoomName) {
			return Descriptor{}, err
		}
		lastErr = err
	}
	return Descriptor{}, lastErr
}

// JoinByCredentials admits connID to the named room.
func (a *Admission) JoinByCredentials(connID string, identity Identity, name, password string) (JoinResult, error) {
	return a.join(connID, identity, func() (JoinResult, error) {
		if strings.TrimSpace(name) == "" {
			return JoinResult{}, fmt.Errorf("join: %w", ErrRoomNotFound)
		}
		return a.store.JoinRoom(name, password, connID)
	})
}

// JoinByInviteCode admits connID to the room holding code.
func (a *Admission) JoinByInviteCode(connID string, identity Identity, code string) (JoinResult, error) {
	return a.join(connID, identity, func() (JoinResult, error) {
		if NormalizeInviteCode(code) == "" {
			return JoinResult{}, fmt.Errorf("join: %w", ErrInvalidInviteCode)
		}
		return a.store.JoinRoomByInviteCode(code, connID)
	})
}

// join binds identity and runs commit. The room the connection moved out of
// is told about the identity it knew, not the one bound for the new room.
func (a *Admission) join(connID string, identity Identity, commit func() (JoinResult, error)) (JoinResult, error) {
	before, _ := a.registry.Lookup(connID)
	if _, err := a.Bind(connID, identity); err != nil {
		return JoinResult{}, err
	}
	res, err := commit()
	if err != nil {
		return JoinResult{}, err
	}
	if res.Previous != nil && before.Bound {
		res.Previous.Connection.Identity = before.Identity
	}
	return res, nil
}
