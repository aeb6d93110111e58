// Package datadirector is the external data collaborator the lobby
// pipeline depends on: user-record lookup keyed by name and
// character-record lookup keyed by uid, both fronted by an
// asynchronous load/poll contract so the lobby's tick loop never blocks
// on storage I/O. Two implementations ship: an in-memory one used by
// tests and as the default, and a Redis-backed one demonstrating the
// pluggable boundary spec.md frames as "external."
package datadirector

import "errors"

// ErrNotFound is returned by GetUser/GetCharacter once a load has
// completed and found no record.
var ErrNotFound = errors.New("datadirector: not found")

// User is the record the lobby director authenticates against: a name,
// bearer token, and the uid of the player's character, if any has been
// created yet.
type User struct {
	Name         string
	Token        string
	CharacterUID uint32
	// HasCharacter is false until the player has completed character
	// creation; the lobby then emits Accept-Login with the
	// character-creator flag set instead of resuming normal entry.
	HasCharacter bool
	// ForcedIntoCreator re-routes an existing character back through
	// the creator flow (spec §4.7 response-queue step 1).
	ForcedIntoCreator bool
}

// Character is the minimal character record the lobby consults once a
// user's CharacterUID is known. Ranch/race gameplay fields (horse,
// guild, settings, items) live behind their own scoped handles per
// spec §3 and are out of this interface's scope.
type Character struct {
	UID  uint32
	Name string
}

// Director is the asynchronous load/poll contract the lobby pipeline
// drives. RequestLoadUser/RequestLoadCharacter are fire-and-forget;
// AreUserDataBeingLoaded/AreCharacterDataBeingLoaded are polled once per
// tick until they return false, at which point GetUser/GetCharacter
// return the resident result (or ErrNotFound / a load failure).
type Director interface {
	// RequestLoadUser begins an asynchronous load of the named user's
	// record. Calling it again before the first load completes must
	// not start a second load.
	RequestLoadUser(name string)
	// AreUserDataBeingLoaded reports whether name's load is still in
	// flight.
	AreUserDataBeingLoaded(name string) bool
	// GetUser returns the resident record for name once loading has
	// finished. Returns ErrNotFound if no such user exists.
	GetUser(name string) (User, error)

	// RequestLoadCharacter begins an asynchronous load of uid's
	// character record.
	RequestLoadCharacter(uid uint32)
	// AreCharacterDataBeingLoaded reports whether uid's load is still
	// in flight.
	AreCharacterDataBeingLoaded(uid uint32) bool
	// GetCharacter returns the resident record for uid once loading
	// has finished. Returns ErrNotFound if no such character exists.
	GetCharacter(uid uint32) (Character, error)
}
