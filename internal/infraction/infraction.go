// Package infraction is the narrow interface the lobby pipeline consults
// before admitting a verified login. The dedicated server's ban/punishment
// store is an external collaborator; this package only defines the call
// shape the lobby director depends on and ships a default implementation
// that never bans anyone.
package infraction

// Verdict is the outcome of checking a user name against outstanding
// punishments.
type Verdict int

const (
	// VerdictClear allows the login to proceed.
	VerdictClear Verdict = iota
	// VerdictBanned forces a Login-Cancel(DisconnectYourself).
	VerdictBanned
)

// System is consulted by the lobby director's request-queue processing,
// mirroring GetInfractionSystem().CheckOutstandingPunishments(userName) in
// the dedicated server's LobbyDirector.
type System interface {
	CheckOutstandingPunishments(userName string) Verdict
}

// AlwaysClear is the default System: no punishments are ever on record.
type AlwaysClear struct{}

// CheckOutstandingPunishments always returns VerdictClear.
func (AlwaysClear) CheckOutstandingPunishments(string) Verdict {
	return VerdictClear
}
