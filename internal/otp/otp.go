// Package otp implements the one-time password system used for cross-tier
// handoff: the lobby mints a code bound to (characterUid, roomUid) and the
// receiving tier consumes it exactly once.
package otp

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
)

// Code is a one-time 32-bit code binding a character to a target resource.
type Code uint32

// System is a process-wide, interior-locked registry of outstanding codes,
// per spec §9 ("only two process-wide registries (OTP and Room
// Registry)... both are interior-locked").
type System struct {
	mu    sync.Mutex
	codes map[uint64]Code
}

// New returns an empty OTP system.
func New() *System {
	return &System{codes: make(map[uint64]Code)}
}

// GrantCode generates a cryptographically strong, non-zero 32-bit code and
// stores identityHash -> code, overwriting any previous grant for that
// hash (a fresh handoff attempt supersedes an unredeemed earlier one).
func (s *System) GrantCode(identityHash uint64) Code {
	code := randomNonZeroCode()

	s.mu.Lock()
	s.codes[identityHash] = code
	s.mu.Unlock()

	return code
}

// AuthorizeCode verifies code against the mapping for identityHash and, on
// success, atomically consumes it: exactly one subsequent call with the
// correct code returns true, and every later call (same or different code)
// returns false.
func (s *System) AuthorizeCode(identityHash uint64, code Code) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	want, ok := s.codes[identityHash]
	if !ok || want != code {
		return false
	}
	delete(s.codes, identityHash)
	return true
}

func randomNonZeroCode() Code {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic(err)
		}
		if v := binary.LittleEndian.Uint32(b[:]); v != 0 {
			return Code(v)
		}
	}
}

// IdentityHash combines a character uid and a target resource uid into the
// stable composite key an OTP is bound to, mirroring the dedicated
// server's boost::hash_combine(hash(characterUid), roomUid) call in
// HandleEnterRoom. Using FNV-1a rather than boost's combine constant is an
// implementation detail; what matters for the one-shot binding invariant
// is that the combination is stable and order-sensitive, which FNV-1a
// folding provides just as well.
func IdentityHash(characterUid, resourceUid uint32) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	for _, v := range [2]uint32{characterUid, resourceUid} {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		for _, c := range b {
			h ^= uint64(c)
			h *= prime64
		}
	}
	return h
}
