package datadirector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryUserLoadLifecycle(t *testing.T) {
	m := NewMemory()
	m.SeedUser(User{Name: "alice", Token: "tok", HasCharacter: true, CharacterUID: 7})

	_, err := m.GetUser("alice")
	require.ErrorIs(t, err, ErrNotFound, "not resident until requested and drained")

	m.RequestLoadUser("alice")
	require.True(t, m.AreUserDataBeingLoaded("alice"))
	require.False(t, m.AreUserDataBeingLoaded("alice"))

	u, err := m.GetUser("alice")
	require.NoError(t, err)
	require.Equal(t, uint32(7), u.CharacterUID)
}

func TestMemoryRequestLoadUserIdempotent(t *testing.T) {
	m := NewMemory()
	m.Delay = 3
	m.RequestLoadUser("bob")
	m.RequestLoadUser("bob")
	require.True(t, m.AreUserDataBeingLoaded("bob"))
	require.True(t, m.AreUserDataBeingLoaded("bob"))
	require.True(t, m.AreUserDataBeingLoaded("bob"))
	require.False(t, m.AreUserDataBeingLoaded("bob"))
}

func TestMemoryUnknownUserNeverFound(t *testing.T) {
	m := NewMemory()
	m.RequestLoadUser("ghost")
	require.True(t, m.AreUserDataBeingLoaded("ghost"))
	require.False(t, m.AreUserDataBeingLoaded("ghost"))
	_, err := m.GetUser("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCharacterLoadLifecycle(t *testing.T) {
	m := NewMemory()
	m.SeedCharacter(Character{UID: 42, Name: "Silver"})

	m.RequestLoadCharacter(42)
	require.True(t, m.AreCharacterDataBeingLoaded(42))
	require.False(t, m.AreCharacterDataBeingLoaded(42))

	c, err := m.GetCharacter(42)
	require.NoError(t, err)
	require.Equal(t, "Silver", c.Name)
}
