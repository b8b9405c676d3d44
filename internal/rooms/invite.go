package rooms

import (
	"fmt"
	"strings"
	"sync"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	// DefaultInviteCodeLength gives 36^6 (about 2.2e9) possible codes.
	DefaultInviteCodeLength = 6

	inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Allocator hands out invite codes that are unique among active rooms.
type Allocator struct {
	mu     sync.Mutex
	active map[string]struct{}
	draw   func() string
}

// NewAllocator returns an Allocator producing codes of the given length.
// A length below DefaultInviteCodeLength is raised to it.
func NewAllocator(length int) (*Allocator, error) {
	if length < DefaultInviteCodeLength {
		length = DefaultInviteCodeLength
	}
	draw, err := nanoid.CustomASCII(inviteAlphabet, length)
	if err != nil {
		return nil, fmt.Errorf("invite code generator: %w", err)
	}
	return newAllocator(draw), nil
}

func newAllocator(draw func() string) *Allocator {
	return &Allocator{
		active: make(map[string]struct{}),
		draw:   draw,
	}
}

// Allocate draws codes until one is not held by an active room. Drawing happens
// outside the lock so a run of collisions never stalls other callers.
func (a *Allocator) Allocate() string {
	for {
		code := a.draw()
		a.mu.Lock()
		if _, taken := a.active[code]; !taken {
			a.active[code] = struct{}{}
			a.mu.Unlock()
			return code
		}
		a.mu.Unlock()
	}
}

// Release frees code for reuse.
func (a *Allocator) Release(code string) {
	a.mu.Lock()
	delete(a.active, code)
	a.mu.Unlock()
}

// Active reports whether code is currently held.
func (a *Allocator) Active(code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[code]
	return ok
}

// NormalizeInviteCode canonicalises user input before lookup.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
