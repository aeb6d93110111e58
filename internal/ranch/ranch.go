// Package ranch implements the ranch tier's director: the minimal
// third leg of the lobby→race/lobby→ranch cross-tier handoff (spec
// §4.7/§6). A client that completed login presents the OTP the lobby
// minted for (characterUid, ranchResourceUid); this director consumes
// it and admits the connection, with no further gameplay surface of
// its own in this core. Grounded on the lobby director's
// command.Director wiring (internal/lobby/lobby.go), generalized down
// to the ranch tier's single inbound command.
package ranch

import (
	"github.com/rs/zerolog"

	"github.com/alborrajo/alicia-server/internal/command"
	"github.com/alborrajo/alicia-server/internal/otp"
	"github.com/alborrajo/alicia-server/internal/protocol"
)

// resourceUID is the OTP resource id the lobby binds a ranch OTP to,
// matching internal/lobby's ranchResourceUID constant — the ranch
// handoff is not scoped to any particular room.
const resourceUID = 0

// Director is the ranch tier's command.Director implementation.
type Director struct {
	server *command.Server
	otps   *otp.System
	log    zerolog.Logger
}

// New returns a ranch Director backed by the shared OTP system.
func New(otps *otp.System, log zerolog.Logger) *Director {
	return &Director{otps: otps, log: log}
}

// Attach registers the ranch tier's sole inbound handler.
func (d *Director) Attach(s *command.Server) {
	d.server = s
	command.RegisterCommandHandler[protocol.EnterRanch](s, d.handleEnterRanch)
}

func (d *Director) HandleClientConnected(command.ClientID) {}

func (d *Director) HandleClientDisconnected(command.ClientID) {}

func (d *Director) handleEnterRanch(id command.ClientID, m *protocol.EnterRanch) {
	if !d.otps.AuthorizeCode(otp.IdentityHash(m.CharacterUID, resourceUID), otp.Code(m.OTP)) {
		command.QueueCommand[protocol.EnterRanchCancel](d.server, id, func() *protocol.EnterRanchCancel {
			return &protocol.EnterRanchCancel{}
		})
		d.log.Debug().Uint64("client", uint64(id)).Uint32("character", m.CharacterUID).Msg("ranch handoff rejected")
		return
	}

	command.QueueCommand[protocol.EnterRanchOK](d.server, id, func() *protocol.EnterRanchOK {
		return &protocol.EnterRanchOK{}
	})
}
