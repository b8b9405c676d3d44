package rooms

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	registry := NewRegistry()

	conn, err := registry.Register("c1", &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "c1", conn.ID)
	assert.False(t, conn.Bound)
	assert.Empty(t, conn.Room)

	_, err = registry.Register("c1", &recordingSink{})
	assert.ErrorIs(t, err, ErrConnectionExists)

	conn, err = registry.BindIdentity("c1", Identity{Username: "ann", Gender: "female", AvatarID: 4})
	require.NoError(t, err)
	assert.True(t, conn.Bound)
	assert.Equal(t, "ann", conn.Identity.Username)

	_, err = registry.BindIdentity("nobody", Identity{Username: "x"})
	assert.ErrorIs(t, err, ErrUnknownConnection)

	last, room, ok := registry.Unregister("c1")
	require.True(t, ok)
	assert.Nil(t, room)
	assert.Equal(t, "ann", last.Identity.Username)

	_, _, ok = registry.Unregister("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistryConcurrentUnregister(t *testing.T) {
	registry := NewRegistry()
	const n = 100
	for i := 0; i < n; i++ {
		_, err := registry.Register(fmt.Sprintf("c%d", i), &recordingSink{})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i += 2 {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			registry.Unregister(id)
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	assert.Equal(t, n/2, registry.Len())
	for i := 1; i < n; i += 2 {
		_, ok := registry.Lookup(fmt.Sprintf("c%d", i))
		assert.True(t, ok)
	}
}
