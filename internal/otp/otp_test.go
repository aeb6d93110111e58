package otp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrantAndAuthorizeIsOneShot(t *testing.T) {
	s := New()
	hash := IdentityHash(42, 7)
	code := s.GrantCode(hash)
	require.NotZero(t, code)

	require.True(t, s.AuthorizeCode(hash, code))
	require.False(t, s.AuthorizeCode(hash, code), "second verify of the same code must fail")
}

func TestAuthorizeWrongCodeFails(t *testing.T) {
	s := New()
	hash := IdentityHash(1, 2)
	s.GrantCode(hash)
	require.False(t, s.AuthorizeCode(hash, Code(999999)))
}

func TestCodeBoundToBothActorAndResource(t *testing.T) {
	s := New()
	hashRoomA := IdentityHash(42, 1)
	hashRoomB := IdentityHash(42, 2)
	code := s.GrantCode(hashRoomA)

	require.False(t, s.AuthorizeCode(hashRoomB, code), "code must not replay against a different room")
	require.True(t, s.AuthorizeCode(hashRoomA, code))
}

func TestUnknownHashNeverAuthorizes(t *testing.T) {
	s := New()
	require.False(t, s.AuthorizeCode(IdentityHash(1, 1), Code(1)))
}
