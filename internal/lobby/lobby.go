// Package lobby implements the login queueing pipeline: two FIFO
// queues (request, awaiting a user-record load; response, awaiting a
// character-record load once the user is known), processed at most
// one entry per queue per tick, per spec §4.7. Grounded on
// original_source/include/server/lobby/LobbyDirector.hpp's UserInstance
// shape and LobbyDirector.cpp's Tick() queue-draining order.
package lobby

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/alborrajo/alicia-server/internal/command"
	"github.com/alborrajo/alicia-server/internal/config"
	"github.com/alborrajo/alicia-server/internal/datadirector"
	"github.com/alborrajo/alicia-server/internal/infraction"
	"github.com/alborrajo/alicia-server/internal/otp"
	"github.com/alborrajo/alicia-server/internal/protocol"
	"github.com/alborrajo/alicia-server/internal/room"
	"github.com/alborrajo/alicia-server/internal/wire"
)

// ranchResourceUID is the OTP resource id used for the lobby→ranch
// handoff, which (unlike lobby→race) is not scoped to any room.
const ranchResourceUID = 0

// loginContext is per-client state for an in-flight login attempt,
// spec §4.7's `{userName, userToken, userLoadRequested,
// characterLoadRequested}`.
type loginContext struct {
	userName               string
	userToken              string
	userLoadRequested      bool
	characterLoadRequested bool
}

type loginAttempt struct {
	clientID command.ClientID
	name     string
	token    string
}

// Director is the lobby tier's command.Director implementation.
type Director struct {
	server      *command.Server
	data        datadirector.Director
	otps        *otp.System
	rooms       *room.Registry
	infractions infraction.System
	cfg         config.Config
	log         zerolog.Logger

	incoming chan loginAttempt

	mu            sync.Mutex
	contexts      map[command.ClientID]*loginContext
	requestQueue  []command.ClientID
	responseQueue []command.ClientID
	// userInstances tracks which user names currently hold an active
	// session, guarding against duplicate concurrent logins (spec §8
	// scenario 2).
	userInstances map[string]command.ClientID
	// instanceUser is the reverse of userInstances, so disconnect
	// cleanup can release the name without a linear scan.
	instanceUser map[command.ClientID]string
	// clientCharacter records the characterUID bound to each
	// logged-in client, needed to compose OTP identity hashes for
	// room entry.
	clientCharacter map[command.ClientID]uint32
}

// New constructs a lobby Director. cfg is a point-in-time snapshot;
// callers wanting live config changes must reconstruct or re-wire.
func New(data datadirector.Director, otps *otp.System, rooms *room.Registry, infractions infraction.System, cfg config.Config, log zerolog.Logger) *Director {
	return &Director{
		data:          data,
		otps:          otps,
		rooms:         rooms,
		infractions:   infractions,
		cfg:           cfg,
		log:           log,
		incoming:      make(chan loginAttempt, 256),
		contexts:        make(map[command.ClientID]*loginContext),
		userInstances:   make(map[string]command.ClientID),
		instanceUser:    make(map[command.ClientID]string),
		clientCharacter: make(map[command.ClientID]uint32),
	}
}

// QueueDepth reports the combined length of the request and response
// login queues, for the status surface.
func (d *Director) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requestQueue) + len(d.responseQueue)
}

// Attach wires the Director's handlers onto s and retains s for
// QueueCommand replies.
func (d *Director) Attach(s *command.Server) {
	d.server = s
	command.RegisterCommandHandler[protocol.Login](s, d.handleLogin)
	command.RegisterCommandHandler[protocol.MakeRoom](s, d.handleMakeRoom)
	command.RegisterCommandHandler[protocol.EnterRoom](s, d.handleEnterRoom)
	command.RegisterCommandHandler[protocol.LeaveRoom](s, d.handleLeaveRoom)
}

// handleMakeRoom creates a room owned by the shared Room Registry and
// seats the requesting client as its first player (and master), per
// spec §3's Room lifecycle note ("created by lobby on a make-room
// command").
func (d *Director) handleMakeRoom(id command.ClientID, m *protocol.MakeRoom) {
	d.mu.Lock()
	characterUID, known := d.clientCharacter[id]
	d.mu.Unlock()
	if !known {
		return
	}

	var roomUID uint32
	d.rooms.CreateRoom(func(r *room.Room) {
		details := r.Details()
		details.Name = m.Name
		details.Password = m.Password
		details.MissionID = m.MissionID
		details.CourseID = m.CourseID
		details.MaxPlayerCount = uint32(m.MaxPlayerCount)
		details.GameMode = room.GameMode(m.GameMode)
		details.TeamMode = room.TeamMode(m.TeamMode)
		_ = r.AddPlayer(characterUID)
		roomUID = r.UID()
	})

	command.QueueCommand[protocol.MakeRoomOK](d.server, id, func() *protocol.MakeRoomOK {
		return &protocol.MakeRoomOK{RoomUID: roomUID}
	})
}

// handleEnterRoom queues characterUID into an existing room and mints
// the race-tier OTP the client presents when reconnecting to the race
// tier's own EnterRoom handler (spec §3.1/§8 scenario 3).
func (d *Director) handleEnterRoom(id command.ClientID, m *protocol.EnterRoom) {
	d.mu.Lock()
	characterUID, known := d.clientCharacter[id]
	d.mu.Unlock()
	if !known {
		d.cancelEnterRoom(id, protocol.EnterRoomNotLogin)
		return
	}

	var cancelStatus protocol.EnterRoomCancelStatus
	err := d.rooms.GetRoom(m.RoomUID, func(r *room.Room) {
		switch {
		case r.IsRoomPlaying():
			cancelStatus = protocol.EnterRoomPlayingRoom
		case r.Details().Password != "" && r.Details().Password != m.Password:
			cancelStatus = protocol.EnterRoomBadPassword
		case r.IsRoomFull():
			cancelStatus = protocol.EnterRoomCrowdedRoom
		default:
			_ = r.QueuePlayer(characterUID)
		}
	})
	if err != nil {
		d.cancelEnterRoom(id, protocol.EnterRoomInvalidRoom)
		return
	}
	if cancelStatus != 0 {
		d.cancelEnterRoom(id, cancelStatus)
		return
	}

	raceOTP := d.otps.GrantCode(otp.IdentityHash(characterUID, m.RoomUID))
	command.QueueCommand[protocol.EnterRoomOK](d.server, id, func() *protocol.EnterRoomOK {
		return &protocol.EnterRoomOK{OTP: uint32(raceOTP)}
	})
}

func (d *Director) cancelEnterRoom(id command.ClientID, status protocol.EnterRoomCancelStatus) {
	command.QueueCommand[protocol.EnterRoomCancel](d.server, id, func() *protocol.EnterRoomCancel {
		return &protocol.EnterRoomCancel{Status: status}
	})
}

// handleLeaveRoom acknowledges a LeaveRoom with LeaveRoomOK. It does
// not remove the client from any room it queued for or was seated in at
// the lobby level; the race tier handles in-race departure itself (spec
// §4.8).
func (d *Director) handleLeaveRoom(id command.ClientID, _ *protocol.LeaveRoom) {
	command.QueueCommand[protocol.LeaveRoomOK](d.server, id, func() *protocol.LeaveRoomOK {
		return &protocol.LeaveRoomOK{}
	})
}

// handleLogin runs on the command server's read goroutine; it only
// hands the attempt to the tick loop via the buffered incoming
// channel, per spec §4.2/§5's handler-purity requirement.
func (d *Director) handleLogin(id command.ClientID, m *protocol.Login) {
	d.incoming <- loginAttempt{clientID: id, name: m.LoginID, token: m.Token}
}

// HandleClientConnected satisfies command.Director; the lobby has no
// per-connect bookkeeping until a Login arrives.
func (d *Director) HandleClientConnected(command.ClientID) {}

// HandleClientDisconnected removes clientID from both queues and its
// login context and releases any user-instance claim it held.
func (d *Director) HandleClientDisconnected(id command.ClientID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.contexts, id)
	d.requestQueue = removeClient(d.requestQueue, id)
	d.responseQueue = removeClient(d.responseQueue, id)
	if name, ok := d.instanceUser[id]; ok {
		delete(d.instanceUser, id)
		delete(d.userInstances, name)
	}
	delete(d.clientCharacter, id)
}

func removeClient(q []command.ClientID, id command.ClientID) []command.ClientID {
	out := q[:0]
	for _, c := range q {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

// GetClientQueuePosition returns clientID's 1-based position in the
// queue it is currently waiting in, or 0 if it holds neither.
func (d *Director) GetClientQueuePosition(id command.ClientID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.requestQueue {
		if c == id {
			return i + 1
		}
	}
	for i, c := range d.responseQueue {
		if c == id {
			return i + 1
		}
	}
	return 0
}

// Tick drains newly arrived login attempts into the request queue,
// then processes at most one entry from the response queue and one
// from the request queue, per spec §4.7.
func (d *Director) Tick() {
	d.drainIncoming()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.tickResponseQueue()
	d.tickRequestQueue()
}

func (d *Director) drainIncoming() {
	for {
		select {
		case attempt := <-d.incoming:
			d.mu.Lock()
			if _, exists := d.contexts[attempt.clientID]; !exists {
				d.contexts[attempt.clientID] = &loginContext{
					userName:  attempt.name,
					userToken: attempt.token,
				}
				d.requestQueue = append(d.requestQueue, attempt.clientID)
			}
			d.mu.Unlock()
		default:
			return
		}
	}
}

// tickRequestQueue implements spec §4.7 step 2.
func (d *Director) tickRequestQueue() {
	if len(d.requestQueue) == 0 {
		return
	}
	id := d.requestQueue[0]
	ctx, ok := d.contexts[id]
	if !ok {
		d.requestQueue = d.requestQueue[1:]
		return
	}

	if !ctx.userLoadRequested {
		d.data.RequestLoadUser(ctx.userName)
		ctx.userLoadRequested = true
		return
	}
	if d.data.AreUserDataBeingLoaded(ctx.userName) {
		return
	}

	user, err := d.data.GetUser(ctx.userName)
	if err != nil {
		d.cancelLogin(id, protocol.LoginCancelGeneric)
		d.requestQueue = d.requestQueue[1:]
		return
	}
	if user.Token != ctx.userToken {
		d.cancelLogin(id, protocol.LoginCancelInvalidUser)
		d.requestQueue = d.requestQueue[1:]
		return
	}
	if d.infractions.CheckOutstandingPunishments(ctx.userName) == infraction.VerdictBanned {
		d.cancelLogin(id, protocol.LoginCancelDisconnectYourself)
		d.requestQueue = d.requestQueue[1:]
		return
	}

	d.requestQueue = d.requestQueue[1:]
	d.responseQueue = append(d.responseQueue, id)
}

// tickResponseQueue implements spec §4.7 step 1.
func (d *Director) tickResponseQueue() {
	if len(d.responseQueue) == 0 {
		return
	}
	id := d.responseQueue[0]
	ctx, ok := d.contexts[id]
	if !ok {
		d.responseQueue = d.responseQueue[1:]
		return
	}

	user, err := d.data.GetUser(ctx.userName)
	if err != nil {
		d.cancelLogin(id, protocol.LoginCancelGeneric)
		d.responseQueue = d.responseQueue[1:]
		return
	}

	if !user.HasCharacter || user.ForcedIntoCreator {
		d.acceptLogin(id, ctx, user, true)
		d.responseQueue = d.responseQueue[1:]
		return
	}

	if !ctx.characterLoadRequested {
		d.data.RequestLoadCharacter(user.CharacterUID)
		ctx.characterLoadRequested = true
		return
	}
	if d.data.AreCharacterDataBeingLoaded(user.CharacterUID) {
		return
	}

	if _, err := d.data.GetCharacter(user.CharacterUID); err != nil {
		d.cancelLogin(id, protocol.LoginCancelGeneric)
		d.responseQueue = d.responseQueue[1:]
		return
	}

	if _, claimed := d.userInstances[ctx.userName]; claimed {
		d.cancelLogin(id, protocol.LoginCancelDuplicated)
		d.responseQueue = d.responseQueue[1:]
		return
	}

	d.userInstances[ctx.userName] = id
	d.instanceUser[id] = ctx.userName
	d.acceptLogin(id, ctx, user, false)
	d.responseQueue = d.responseQueue[1:]
}

func (d *Director) acceptLogin(id command.ClientID, ctx *loginContext, user datadirector.User, characterCreator bool) {
	delete(d.contexts, id)
	d.clientCharacter[id] = user.CharacterUID

	var seed [4]byte
	copy(seed[:], wire.DefaultCipherPattern[:])
	d.server.ResetCipherSeed(id, seed)

	notice := substituteNotice(d.cfg.General.Notice, len(d.userInstances))
	ranchOTP := d.otps.GrantCode(otp.IdentityHash(user.CharacterUID, ranchResourceUID))

	command.QueueCommand[protocol.LoginOK](d.server, id, func() *protocol.LoginOK {
		return &protocol.LoginOK{
			CharacterUID:     user.CharacterUID,
			CharacterCreator: characterCreator,
			Notice:           notice,
			RanchAddress:     d.cfg.Advertisement.Ranch.Address,
			RanchPort:        uint16(d.cfg.Advertisement.Ranch.Port),
			RaceAddress:      d.cfg.Advertisement.Race.Address,
			RacePort:         uint16(d.cfg.Advertisement.Race.Port),
			MessengerAddress: d.cfg.Advertisement.Messenger.Address,
			MessengerPort:    uint16(d.cfg.Advertisement.Messenger.Port),
			RanchOTP:         uint32(ranchOTP),
		}
	})
}

func (d *Director) cancelLogin(id command.ClientID, reason protocol.LoginCancelReason) {
	delete(d.contexts, id)
	command.QueueCommand[protocol.LoginCancel](d.server, id, func() *protocol.LoginCancel {
		return &protocol.LoginCancel{Reason: reason}
	})
}
