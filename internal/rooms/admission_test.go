package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdmission(t *testing.T) (*Admission, *Store, *Registry) {
	t.Helper()
	store, registry := newTestStore(t)
	admission, err := NewAdmission(store, registry)
	require.NoError(t, err)
	return admission, store, registry
}

func TestAdmissionBind(t *testing.T) {
	admission, _, registry := newTestAdmission(t)
	_, err := registry.Register("c1", &recordingSink{})
	require.NoError(t, err)

	_, err = admission.Bind("c1", Identity{})
	assert.ErrorIs(t, err, ErrIdentityRequired)

	got, err := admission.Bind("c1", Identity{Username: " ann ", Gender: "female", AvatarID: 7})
	require.NoError(t, err)
	assert.Equal(t, Identity{Username: "ann", Gender: "female", AvatarID: 7}, got)

	got, err = admission.Bind("c1", Identity{})
	require.NoError(t, err)
	assert.Equal(t, "ann", got.Username, "empty identity keeps existing binding")

	got, err = admission.Bind("c1", Identity{Username: "ann", AvatarID: -1})
	require.NoError(t, err)
	assert.Equal(t, 7, got.AvatarID)
	assert.Equal(t, "female", got.Gender)

	_, err = admission.Bind("ghost", Identity{Username: "x"})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestAdmissionCreateGeneratesCredentials(t *testing.T) {
	admission, store, registry := newTestAdmission(t)
	_, err := registry.Register("c1", &recordingSink{})
	require.NoError(t, err)

	desc, err := admission.Create("c1", Identity{Username: "ann"}, "", "")
	require.NoError(t, err)
	assert.Len(t, desc.Name, generatedNameLength)
	assert.Len(t, desc.Password, generatedPasswordLength)
	assert.NotEmpty(t, desc.InviteCode)

	_, ok := store.FindByName(desc.Name)
	assert.True(t, ok)

	conn, _ := registry.Lookup("c1")
	assert.Empty(t, conn.Room, "creator is not auto-joined")
}

func TestAdmissionCreateRetriesGeneratedNames(t *testing.T) {
	admission, _, registry := newTestAdmission(t)
	_, err := registry.Register("c1", &recordingSink{})
	require.NoError(t, err)

	names := []string{"taken", "taken", "fresh"}
	admission.names = func() string {
		n := names[0]
		names = names[1:]
		return n
	}

	_, err = admission.Create("c1", Identity{Username: "ann"}, "taken", "pw")
	require.NoError(t, err)

	desc, err := admission.Create("c1", Identity{Username: "ann"}, "", "pw")
	require.NoError(t, err)
	assert.Equal(t, "fresh", desc.Name)
}

func TestAdmissionCreateRequiresIdentity(t *testing.T) {
	admission, store, registry := newTestAdmission(t)
	_, err := registry.Register("c1", &recordingSink{})
	require.NoError(t, err)

	_, err = admission.Create("c1", Identity{}, "alpha", "p1")
	assert.ErrorIs(t, err, ErrIdentityRequired)
	assert.Equal(t, 0, store.Len())
}

func TestAdmissionScenario(t *testing.T) {
	admission, store, registry := newTestAdmission(t)
	for _, id := range []string{"c1", "c2"} {
		_, err := registry.Register(id, &recordingSink{})
		require.NoError(t, err)
	}

	desc, err := admission.Create("c1", Identity{Username: "ann"}, "alpha", "p1")
	require.NoError(t, err)

	_, err = admission.JoinByCredentials("c1", Identity{Username: "ann", AvatarID: 2}, "alpha", "p1")
	require.NoError(t, err)

	_, err = admission.JoinByCredentials("c2", Identity{Username: "bob"}, "alpha", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = admission.JoinByCredentials("c2", Identity{Username: "bob"}, "", "p1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = admission.JoinByInviteCode("c2", Identity{Username: "bob"}, "")
	assert.ErrorIs(t, err, ErrInvalidInviteCode)

	res, err := admission.JoinByInviteCode("c2", Identity{Username: "bob", AvatarID: 5}, desc.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob"}, res.Descriptor.Members)
	assert.Equal(t, []string{"c1", "c2"}, store.Members("alpha"))

	conn, _ := registry.Lookup("c2")
	assert.Equal(t, 5, conn.Identity.AvatarID)
}

func TestAdmissionSwitchKeepsPreviousIdentity(t *testing.T) {
	admission, _, registry := newTestAdmission(t)
	for _, id := range []string{"c1", "c2"} {
		_, err := registry.Register(id, &recordingSink{})
		require.NoError(t, err)
	}

	_, err := admission.Create("c1", Identity{Username: "ann"}, "alpha", "p1")
	require.NoError(t, err)
	_, err = admission.Create("c1", Identity{Username: "ann"}, "beta", "p2")
	require.NoError(t, err)
	_, err = admission.JoinByCredentials("c2", Identity{Username: "bob"}, "alpha", "p1")
	require.NoError(t, err)
	_, err = admission.JoinByCredentials("c1", Identity{Username: "ann", AvatarID: 3}, "alpha", "p1")
	require.NoError(t, err)

	res, err := admission.JoinByCredentials("c1", Identity{Username: "annie", AvatarID: 7}, "beta", "p2")
	require.NoError(t, err)
	require.NotNil(t, res.Previous)
	assert.Equal(t, "alpha", res.Previous.Name)
	assert.Equal(t, Identity{Username: "ann", AvatarID: 3}, res.Previous.Connection.Identity)

	conn, _ := registry.Lookup("c1")
	assert.Equal(t, Identity{Username: "annie", AvatarID: 7}, conn.Identity)
}
