// Package race implements the race tier's director: one Instance per
// room that has entered racing, advancing Waiting→Loading→Racing→
// Finishing on every tick, plus the per-racer command handlers that
// mutate tracker state during Racing. Grounded on
// original_source/src/server/race/RaceDirector.cpp's Tick() stage-
// advance loops and its per-command handlers (HandleStartRace,
// HandleLeaveRoom, HandleStarPointGet, HandleRequestSpur,
// HandleHurdleClearResult, HandleRequestMagicItem, HandleUseMagicItem,
// HandleUserRaceItemGet, HandleRaceUserPos), reusing the lobby
// director's incoming-channel handoff idiom (spec §4.2/§5) and the
// teacher's original chan func(*server) event-marshaling shape for
// this director's own tick-serialized mutations.
package race

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/alborrajo/alicia-server/internal/command"
	"github.com/alborrajo/alicia-server/internal/otp"
	"github.com/alborrajo/alicia-server/internal/protocol"
	"github.com/alborrajo/alicia-server/internal/room"
	"github.com/alborrajo/alicia-server/internal/scheduler"
	"github.com/alborrajo/alicia-server/internal/tracker"
)

const (
	loadStageTimeout   = 30 * time.Second
	finishStageTimeout = 15 * time.Second
	startCountdown     = 5 * time.Second
	itemRespawnDelay   = 500 * time.Millisecond
	itemProximity      = 90.0

	magicGaugeRegenPerUpdate = 50

	goldHorseshoeDeckID   = 1
	silverHorseshoeDeckID = 2
)

// Stage is a race instance's position in the Waiting→Loading→Racing→
// Finishing lifecycle (spec §4.8).
type Stage int

const (
	StageWaiting Stage = iota
	StageLoading
	StageRacing
	StageFinishing
)

// Mode holds the per-race tunables that would, in the original game,
// come from the MapBlockInfo/CourseGameModeInfo static-content tables.
// This core has no such external content pipeline, so defaultMode
// stands in for it as a documented stub (DESIGN.md).
type Mode struct {
	StarPointsMax             uint32
	SpurConsumeStarPoints     uint32
	PerfectJumpStarPoints     uint32
	PerfectJumpMaxBonusCombo  uint32
	PerfectJumpUnitStarPoints uint32
	GoodJumpStarPoints        uint32
	MagicMode                 bool
	WaitTime                  time.Duration
	TimeLimit                 time.Duration
}

func defaultMode(gameMode room.GameMode) Mode {
	return Mode{
		StarPointsMax:             100000,
		SpurConsumeStarPoints:     10000,
		PerfectJumpStarPoints:     500,
		PerfectJumpMaxBonusCombo:  10,
		PerfectJumpUnitStarPoints: 50,
		GoodJumpStarPoints:        200,
		MagicMode:                 gameMode == room.GameModeMagic,
		WaitTime:                  3 * time.Second,
		TimeLimit:                 5 * time.Minute,
	}
}

// Instance is one room's race state, owned exclusively by the
// Director's tick loop (spec §5).
type Instance struct {
	roomUID            uint32
	stage              Stage
	stageDeadline      time.Time
	masterCharacterUID uint32
	tracker            *tracker.Tracker
	mode               Mode
	mapBlockID         uint32
	// clients maps a seated characterUid to the race-tier connection
	// presenting it; absence means the character has left the race
	// tier (left room, disconnected) even if still tracked for
	// scoreboard purposes.
	clients map[uint32]command.ClientID
}

func newInstance(roomUID uint32) *Instance {
	return &Instance{
		roomUID: roomUID,
		stage:   StageWaiting,
		tracker: tracker.New(),
		clients: make(map[uint32]command.ClientID),
	}
}

// Director is the race tier's command.Director implementation.
type Director struct {
	server *command.Server
	rooms  *room.Registry
	otps   *otp.System
	log    zerolog.Logger
	sched  *scheduler.Scheduler

	// incoming marshals every state mutation onto the tick loop,
	// generalizing fourst4r-pr2server's original chan func(*server)
	// idiom from the whole command server down to this one director's
	// own tick-owned state (spec §4.2/§5).
	incoming chan func(*Director)

	instances       map[uint32]*Instance
	clientRoom      map[command.ClientID]uint32
	clientCharacter map[command.ClientID]uint32
}

// New constructs a race Director.
func New(rooms *room.Registry, otps *otp.System, log zerolog.Logger) *Director {
	return &Director{
		rooms:           rooms,
		otps:            otps,
		log:             log,
		sched:           scheduler.New(),
		incoming:        make(chan func(*Director), 256),
		instances:       make(map[uint32]*Instance),
		clientRoom:      make(map[command.ClientID]uint32),
		clientCharacter: make(map[command.ClientID]uint32),
	}
}

// Attach wires the Director's handlers onto s.
func (d *Director) Attach(s *command.Server) {
	d.server = s
	command.RegisterCommandHandler[protocol.EnterRoom](s, d.handleEnterRoom)
	command.RegisterCommandHandler[protocol.LeaveRoom](s, d.handleLeaveRoom)
	command.RegisterCommandHandler[protocol.StartRace](s, d.handleStartRace)
	command.RegisterCommandHandler[protocol.LoadingComplete](s, d.handleLoadingComplete)
	command.RegisterCommandHandler[protocol.UserRaceFinal](s, d.handleUserRaceFinal)
	command.RegisterCommandHandler[protocol.StarPointGet](s, d.handleStarPointGet)
	command.RegisterCommandHandler[protocol.RequestSpur](s, d.handleRequestSpur)
	command.RegisterCommandHandler[protocol.HurdleClearResult](s, d.handleHurdleClearResult)
	command.RegisterCommandHandler[protocol.UserRaceUpdatePos](s, d.handleUserRaceUpdatePos)
	command.RegisterCommandHandler[protocol.UserRaceItemGet](s, d.handleUserRaceItemGet)
	command.RegisterCommandHandler[protocol.RequestMagicItem](s, d.handleRequestMagicItem)
	command.RegisterCommandHandler[protocol.UseMagicItem](s, d.handleUseMagicItem)
}

// HandleClientConnected satisfies command.Director; the race tier has
// no per-connect bookkeeping until an EnterRoom arrives.
func (d *Director) HandleClientConnected(command.ClientID) {}

// HandleClientDisconnected marshals the departure onto the tick loop
// rather than touching instance state directly, since that state is
// tick-owned (spec §5).
func (d *Director) HandleClientDisconnected(id command.ClientID) {
	d.incoming <- func(d *Director) { d.leaveRoom(id) }
}

// handleEnterRoom authorizes the OTP the lobby minted directly (the
// OTP system is its own interior-locked shared resource, safe to call
// off the tick loop), then marshals the actual seating onto the tick
// loop.
func (d *Director) handleEnterRoom(id command.ClientID, m *protocol.EnterRoom) {
	if !d.otps.AuthorizeCode(otp.IdentityHash(m.CharacterUID, m.RoomUID), otp.Code(m.OTP)) {
		command.QueueCommand[protocol.EnterRoomCancel](d.server, id, func() *protocol.EnterRoomCancel {
			return &protocol.EnterRoomCancel{Status: protocol.EnterRoomAuthError}
		})
		return
	}
	if !d.rooms.RoomExists(m.RoomUID) {
		command.QueueCommand[protocol.EnterRoomCancel](d.server, id, func() *protocol.EnterRoomCancel {
			return &protocol.EnterRoomCancel{Status: protocol.EnterRoomInvalidRoom}
		})
		return
	}
	roomUID, characterUID := m.RoomUID, m.CharacterUID
	d.incoming <- func(d *Director) { d.enterRoom(id, roomUID, characterUID) }
}

// enterRoom seats characterUid into its race instance, creating one on
// first entry, and assigns its tracker oid immediately rather than
// waiting for StartRace — oids persist for the room's lifetime (spec
// §8 scenario 3: the second entrant observes oid 2 right after
// entering, with no race yet started).
func (d *Director) enterRoom(id command.ClientID, roomUID, characterUID uint32) {
	inst, ok := d.instances[roomUID]
	if !ok {
		inst = newInstance(roomUID)
		d.instances[roomUID] = inst
	}
	if len(inst.clients) == 0 {
		inst.masterCharacterUID = characterUID
	}

	var team room.Team
	_ = d.rooms.GetRoom(roomUID, func(r *room.Room) {
		if p, err := r.GetPlayer(characterUID); err == nil {
			team = p.Team()
		}
	})

	r := inst.tracker.GetRacer(characterUID)
	if r == nil {
		r = inst.tracker.AddRacer(characterUID)
	}
	r.Team = tracker.Team(team)

	inst.clients[characterUID] = id
	d.clientRoom[id] = roomUID
	d.clientCharacter[id] = characterUID

	oid := r.Oid
	command.QueueCommand[protocol.EnterRoomOK](d.server, id, func() *protocol.EnterRoomOK {
		return &protocol.EnterRoomOK{RacerOid: uint32(oid)}
	})
}

func (d *Director) handleLeaveRoom(id command.ClientID, _ *protocol.LeaveRoom) {
	d.incoming <- func(d *Director) {
		d.leaveRoom(id)
		command.QueueCommand[protocol.LeaveRoomOK](d.server, id, func() *protocol.LeaveRoomOK {
			return &protocol.LeaveRoomOK{}
		})
	}
}

// leaveRoom handles both a voluntary LeaveRoom and a disconnect (spec
// §4.8's "LeaveRoom" rule covers both per §5's cancellation note that
// directors must tolerate a client vanishing mid-handler).
func (d *Director) leaveRoom(id command.ClientID) {
	roomUID, ok := d.clientRoom[id]
	if !ok {
		return
	}
	inst, ok := d.instances[roomUID]
	if !ok {
		delete(d.clientRoom, id)
		delete(d.clientCharacter, id)
		return
	}
	characterUID := d.clientCharacter[id]

	if r := inst.tracker.GetRacer(characterUID); r != nil {
		r.State = tracker.StateDisconnected
		// Once a race is underway the scoreboard still needs this
		// row; only drop it outright between races.
		if inst.stage == StageWaiting {
			inst.tracker.RemoveRacer(characterUID)
		}
	}
	delete(inst.clients, characterUID)
	delete(d.clientRoom, id)
	delete(d.clientCharacter, id)
	_ = d.rooms.GetRoom(roomUID, func(r *room.Room) { r.RemovePlayer(characterUID) })

	if characterUID == inst.masterCharacterUID && len(inst.clients) > 0 {
		var next uint32
		for uid := range inst.clients {
			next = uid
			break
		}
		inst.masterCharacterUID = next
		broadcast[protocol.ChangeMasterNotify](d, inst, func() *protocol.ChangeMasterNotify {
			return &protocol.ChangeMasterNotify{NewMasterCharacterUID: next}
		})
	}

	if len(inst.clients) == 0 {
		delete(d.instances, roomUID)
		_ = d.rooms.DeleteRoom(roomUID)
	}
}

// handleStartRace begins Waiting→Loading, master-only.
func (d *Director) handleStartRace(id command.ClientID, _ *protocol.StartRace) {
	d.incoming <- func(d *Director) { d.startRace(id) }
}

func (d *Director) startRace(id command.ClientID) {
	roomUID, ok := d.clientRoom[id]
	if !ok {
		return
	}
	inst, ok := d.instances[roomUID]
	if !ok || inst.stage != StageWaiting {
		return
	}
	if d.clientCharacter[id] != inst.masterCharacterUID {
		return
	}

	var details room.Details
	_ = d.rooms.GetRoom(roomUID, func(r *room.Room) {
		details = *r.Details()
		r.SetRoomPlaying(true)
	})
	inst.mode = defaultMode(details.GameMode)
	inst.mapBlockID = uint32(details.CourseID)

	for _, r := range inst.tracker.Racers() {
		r.State = tracker.StateLoading
		r.CourseTime = tracker.MaxCourseTime
		r.StarPointValue = 0
		r.JumpComboValue = 0
		r.MagicItem = nil
		r.TrackedItems = make(map[tracker.Oid]struct{})
	}
	d.spawnDeckItems(inst)

	inst.stage = StageLoading
	inst.stageDeadline = time.Now().Add(loadStageTimeout)

	broadcast[protocol.RoomCountdown](d, inst, func() *protocol.RoomCountdown {
		return &protocol.RoomCountdown{Seconds: uint16(startCountdown / time.Second)}
	})

	mapBlockID := inst.mapBlockID
	d.sched.After(startCountdown, func() {
		d.incoming <- func(d *Director) {
			if cur, ok := d.instances[roomUID]; ok && cur == inst && inst.stage == StageLoading {
				broadcast[protocol.StartRaceNotify](d, inst, func() *protocol.StartRaceNotify {
					return &protocol.StartRaceNotify{MapBlockID: mapBlockID}
				})
			}
		}
	})
}

// spawnDeckItems stands in for reading MapBlockInfo/CourseGameModeInfo
// (DESIGN.md): a fixed small layout alternating gold/silver horseshoe
// deck ids.
func (d *Director) spawnDeckItems(inst *Instance) {
	const stubItemCount = 3
	for i := 0; i < stubItemCount; i++ {
		it := inst.tracker.AddItem()
		if i%2 == 0 {
			it.DeckID = goldHorseshoeDeckID
		} else {
			it.DeckID = silverHorseshoeDeckID
		}
		it.Position = [3]float32{float32(i) * 100, 0, 0}
	}
}

// Tick drains marshaled mutations, runs the scheduler, then advances
// every instance's stage.
func (d *Director) Tick() {
	d.drainIncoming()
	d.sched.Tick()
	for _, inst := range d.instances {
		d.advance(inst)
	}
}

func (d *Director) drainIncoming() {
	for {
		select {
		case fn := <-d.incoming:
			fn(d)
		default:
			return
		}
	}
}

func (d *Director) advance(inst *Instance) {
	now := time.Now()
	switch inst.stage {
	case StageLoading:
		settled := racersAllIn(inst.tracker, tracker.StateRacing, tracker.StateDisconnected)
		timedOut := now.After(inst.stageDeadline)
		if settled || timedOut {
			d.transitionToRacing(inst, timedOut)
		}
	case StageRacing:
		anyFinishing := racersAnyIn(inst.tracker, tracker.StateFinishing)
		timedOut := now.After(inst.stageDeadline)
		if anyFinishing || timedOut {
			d.transitionToFinishing(inst, timedOut)
		}
	case StageFinishing:
		settled := racersAllIn(inst.tracker, tracker.StateFinishing, tracker.StateDisconnected)
		timedOut := now.After(inst.stageDeadline)
		if settled || timedOut {
			d.transitionToEnd(inst, timedOut)
		}
	}
}

func (d *Director) transitionToRacing(inst *Instance, timedOut bool) {
	if timedOut {
		for _, r := range inst.tracker.Racers() {
			if r.State == tracker.StateLoading {
				r.State = tracker.StateDisconnected
			}
		}
	}
	inst.stage = StageRacing
	inst.stageDeadline = time.Now().Add(inst.mode.TimeLimit)
	broadcast[protocol.RoomCountdown](d, inst, func() *protocol.RoomCountdown {
		return &protocol.RoomCountdown{Seconds: uint16(inst.mode.WaitTime / time.Second)}
	})
}

func (d *Director) transitionToFinishing(inst *Instance, timedOut bool) {
	inst.stage = StageFinishing
	inst.stageDeadline = time.Now().Add(finishStageTimeout)
	if timedOut {
		broadcast[protocol.FinalNotify](d, inst, func() *protocol.FinalNotify { return &protocol.FinalNotify{} })
	}
}

func (d *Director) transitionToEnd(inst *Instance, timedOut bool) {
	if timedOut {
		for _, r := range inst.tracker.Racers() {
			if r.State == tracker.StateRacing {
				r.State = tracker.StateDisconnected
			}
		}
	}

	rows := scoreRows(inst.tracker)
	broadcast[protocol.ScoreNotify](d, inst, func() *protocol.ScoreNotify { return &protocol.ScoreNotify{Rows: rows} })
	_ = d.rooms.GetRoom(inst.roomUID, func(r *room.Room) { r.SetRoomPlaying(false) })
	inst.stage = StageWaiting

	if len(inst.clients) == 0 {
		delete(d.instances, inst.roomUID)
		_ = d.rooms.DeleteRoom(inst.roomUID)
	}
}

func scoreRows(t *tracker.Tracker) []protocol.ScoreRow {
	racers := t.Racers()
	rows := make([]protocol.ScoreRow, 0, len(racers))
	for _, r := range racers {
		rows = append(rows, protocol.ScoreRow{CharacterOid: uint32(r.Oid), CourseTime: r.CourseTime})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CourseTime < rows[j].CourseTime })
	return rows
}

func racersAllIn(t *tracker.Tracker, states ...tracker.State) bool {
	allowed := make(map[tracker.State]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	for _, r := range t.Racers() {
		if !allowed[r.State] {
			return false
		}
	}
	return true
}

func racersAnyIn(t *tracker.Tracker, state tracker.State) bool {
	for _, r := range t.Racers() {
		if r.State == state {
			return true
		}
	}
	return false
}

// racerContext resolves a client's instance, racer record, and
// characterUid in one lookup; every per-racer handler below bails out
// if any leg is missing, tolerating a client that vanished mid-flight
// (spec §5).
func (d *Director) racerContext(id command.ClientID) (*Instance, *tracker.Racer, uint32, bool) {
	roomUID, ok := d.clientRoom[id]
	if !ok {
		return nil, nil, 0, false
	}
	inst, ok := d.instances[roomUID]
	if !ok {
		return nil, nil, 0, false
	}
	characterUID := d.clientCharacter[id]
	r := inst.tracker.GetRacer(characterUID)
	if r == nil {
		return nil, nil, 0, false
	}
	return inst, r, characterUID, true
}

func (d *Director) handleLoadingComplete(id command.ClientID, _ *protocol.LoadingComplete) {
	d.incoming <- func(d *Director) {
		inst, r, _, ok := d.racerContext(id)
		if !ok || inst.stage != StageLoading {
			return
		}
		r.State = tracker.StateRacing
		broadcast[protocol.LoadingComplete](d, inst, func() *protocol.LoadingComplete {
			return &protocol.LoadingComplete{}
		})
	}
}

func (d *Director) handleUserRaceFinal(id command.ClientID, m *protocol.UserRaceFinal) {
	courseTime := m.CourseTime
	d.incoming <- func(d *Director) {
		inst, r, _, ok := d.racerContext(id)
		if !ok || (inst.stage != StageRacing && inst.stage != StageFinishing) {
			return
		}
		r.CourseTime = courseTime
		r.State = tracker.StateFinishing
		broadcast[protocol.UserRaceFinal](d, inst, func() *protocol.UserRaceFinal {
			return &protocol.UserRaceFinal{CourseTime: courseTime}
		})
	}
}

func (d *Director) handleStarPointGet(id command.ClientID, m *protocol.StarPointGet) {
	gain := m.Gain
	d.incoming <- func(d *Director) {
		inst, r, _, ok := d.racerContext(id)
		if !ok {
			return
		}
		total := minU32(r.StarPointValue+gain, inst.mode.StarPointsMax)
		give := inst.mode.MagicMode && total == inst.mode.StarPointsMax
		r.StarPointValue = total
		command.QueueCommand[protocol.StarPointGetOK](d.server, id, func() *protocol.StarPointGetOK {
			return &protocol.StarPointGetOK{Total: total, GiveMagicItem: give}
		})
	}
}

func (d *Director) handleRequestSpur(id command.ClientID, _ *protocol.RequestSpur) {
	d.incoming <- func(d *Director) {
		inst, r, _, ok := d.racerContext(id)
		if !ok {
			return
		}
		if r.StarPointValue < inst.mode.SpurConsumeStarPoints {
			d.server.Disconnect(id)
			return
		}
		r.StarPointValue -= inst.mode.SpurConsumeStarPoints
		command.QueueCommand[protocol.RequestSpurOK](d.server, id, func() *protocol.RequestSpurOK {
			return &protocol.RequestSpurOK{}
		})
	}
}

func (d *Director) handleHurdleClearResult(id command.ClientID, m *protocol.HurdleClearResult) {
	clearType := m.Type
	d.incoming <- func(d *Director) {
		inst, r, _, ok := d.racerContext(id)
		if !ok {
			return
		}
		give := false
		switch clearType {
		case protocol.HurdleClearPerfect:
			if r.JumpComboValue < 99 {
				r.JumpComboValue++
			}
			bonus := r.JumpComboValue
			if bonus > inst.mode.PerfectJumpMaxBonusCombo {
				bonus = inst.mode.PerfectJumpMaxBonusCombo
			}
			gain := inst.mode.PerfectJumpStarPoints + bonus*inst.mode.PerfectJumpUnitStarPoints
			total := minU32(r.StarPointValue+gain, inst.mode.StarPointsMax)
			give = inst.mode.MagicMode && total == inst.mode.StarPointsMax
			r.StarPointValue = total
		case protocol.HurdleClearGood, protocol.HurdleClearDoubleJumpOrGlide:
			r.JumpComboValue = 0
			r.StarPointValue = minU32(r.StarPointValue+inst.mode.GoodJumpStarPoints, inst.mode.StarPointsMax)
		case protocol.HurdleClearCollision:
			r.JumpComboValue = 0
		}

		if clearType == protocol.HurdleClearPerfect {
			total := r.StarPointValue
			command.QueueCommand[protocol.StarPointGetOK](d.server, id, func() *protocol.StarPointGetOK {
				return &protocol.StarPointGetOK{Total: total, GiveMagicItem: give}
			})
		}

		combo := r.JumpComboValue
		command.QueueCommand[protocol.HurdleClearResultOK](d.server, id, func() *protocol.HurdleClearResultOK {
			return &protocol.HurdleClearResultOK{Combo: combo}
		})
	}
}

func (d *Director) handleUserRaceUpdatePos(id command.ClientID, m *protocol.UserRaceUpdatePos) {
	x, y, z := m.X, m.Y, m.Z
	d.incoming <- func(d *Director) {
		inst, r, _, ok := d.racerContext(id)
		if !ok || inst.stage != StageRacing {
			return
		}

		now := time.Now().UnixNano()
		for oid, it := range inst.tracker.Items() {
			if it.RespawnDueUnix != 0 && now < it.RespawnDueUnix {
				continue
			}
			dx, dy, dz := x-it.Position[0], y-it.Position[1], z-it.Position[2]
			dist := math.Sqrt(float64(dx*dx + dy*dy + dz*dz))
			_, tracked := r.TrackedItems[oid]
			switch {
			case dist <= itemProximity && !tracked:
				r.TrackedItems[oid] = struct{}{}
				pos := it.Position
				itemOid := oid
				command.QueueCommand[protocol.ItemSpawnNotify](d.server, id, func() *protocol.ItemSpawnNotify {
					return &protocol.ItemSpawnNotify{ItemOid: uint32(itemOid), X: pos[0], Y: pos[1], Z: pos[2]}
				})
			case dist > itemProximity && tracked:
				delete(r.TrackedItems, oid)
			}
		}

		if inst.mode.MagicMode && r.MagicItem == nil {
			total := minU32(r.StarPointValue+magicGaugeRegenPerUpdate, inst.mode.StarPointsMax)
			saturated := total == inst.mode.StarPointsMax
			r.StarPointValue = total
			if saturated {
				command.QueueCommand[protocol.StarPointGetOK](d.server, id, func() *protocol.StarPointGetOK {
					return &protocol.StarPointGetOK{Total: total, GiveMagicItem: true}
				})
			}
		}
	}
}

func (d *Director) handleUserRaceItemGet(id command.ClientID, m *protocol.UserRaceItemGet) {
	itemOid := tracker.Oid(m.ItemOid)
	d.incoming <- func(d *Director) {
		inst, r, _, ok := d.racerContext(id)
		if !ok || inst.stage != StageRacing {
			return
		}
		it := inst.tracker.GetItem(itemOid)
		if it == nil {
			return
		}
		it.RespawnDueUnix = time.Now().Add(itemRespawnDelay).UnixNano()

		if inst.mode.MagicMode {
			if r.MagicItem != nil {
				d.log.Warn().Uint32("racer", uint32(r.Oid)).Msg("magic item already held, ignoring grant")
				return
			}
			item := protocol.MagicItemSet[rand.Intn(len(protocol.MagicItemSet))]
			v := uint32(item)
			r.MagicItem = &v
		} else {
			switch it.DeckID {
			case goldHorseshoeDeckID:
				r.StarPointValue = minU32(((r.StarPointValue/40000)+1)*40000, inst.mode.StarPointsMax)
			case silverHorseshoeDeckID:
				r.StarPointValue = minU32(r.StarPointValue+10000, inst.mode.StarPointsMax)
			}
		}

		for _, other := range inst.tracker.Racers() {
			delete(other.TrackedItems, itemOid)
		}

		broadcast[protocol.UserRaceItemGet](d, inst, func() *protocol.UserRaceItemGet {
			return &protocol.UserRaceItemGet{ItemOid: uint32(itemOid)}
		})

		roomUID := inst.roomUID
		d.sched.After(itemRespawnDelay, func() {
			d.incoming <- func(d *Director) {
				cur, ok := d.instances[roomUID]
				if !ok || cur != inst {
					return
				}
				spawned := inst.tracker.GetItem(itemOid)
				if spawned == nil {
					return
				}
				pos := spawned.Position
				broadcast[protocol.ItemSpawnNotify](d, inst, func() *protocol.ItemSpawnNotify {
					return &protocol.ItemSpawnNotify{ItemOid: uint32(itemOid), X: pos[0], Y: pos[1], Z: pos[2]}
				})
			}
		})
	}
}

func (d *Director) handleRequestMagicItem(id command.ClientID, _ *protocol.RequestMagicItem) {
	d.incoming <- func(d *Director) {
		inst, r, characterUID, ok := d.racerContext(id)
		if !ok || r.MagicItem != nil {
			return
		}
		r.StarPointValue = 0
		item := protocol.MagicItemSet[rand.Intn(len(protocol.MagicItemSet))]
		v := uint32(item)
		r.MagicItem = &v
		oid := r.Oid

		command.QueueCommand[protocol.RequestMagicItemOK](d.server, id, func() *protocol.RequestMagicItemOK {
			return &protocol.RequestMagicItemOK{Item: item}
		})
		for cUID, clientID := range inst.clients {
			if cUID == characterUID {
				continue
			}
			command.QueueCommand[protocol.RequestMagicItemNotify](d.server, clientID, func() *protocol.RequestMagicItemNotify {
				return &protocol.RequestMagicItemNotify{CharacterOid: uint32(oid)}
			})
		}
	}
}

// handleUseMagicItem activates the racer's held item. Bolt additionally
// resolves a hit against the first other Racing racer (ascending
// characterUid for determinism), clearing its held item and notifying
// it with the attacker's item id but its own oid (spec §8 scenario 6).
func (d *Director) handleUseMagicItem(id command.ClientID, _ *protocol.UseMagicItem) {
	d.incoming <- func(d *Director) {
		inst, r, characterUID, ok := d.racerContext(id)
		if !ok || r.MagicItem == nil {
			return
		}
		item := protocol.MagicItem(*r.MagicItem)
		r.MagicItem = nil
		actorOid := r.Oid

		command.QueueCommand[protocol.UseMagicItemOK](d.server, id, func() *protocol.UseMagicItemOK {
			return &protocol.UseMagicItemOK{}
		})
		for cUID, clientID := range inst.clients {
			if cUID == characterUID {
				continue
			}
			command.QueueCommand[protocol.UseMagicItemNotify](d.server, clientID, func() *protocol.UseMagicItemNotify {
				return &protocol.UseMagicItemNotify{MagicItemID: uint32(item), CharacterOid: uint32(actorOid)}
			})
		}

		if item == protocol.MagicItemBolt {
			if targetUID, target, found := firstOtherRacingRacer(inst, characterUID); found {
				target.MagicItem = nil
				if targetClientID, ok := inst.clients[targetUID]; ok {
					targetOid := target.Oid
					command.QueueCommand[protocol.UseMagicItemNotify](d.server, targetClientID, func() *protocol.UseMagicItemNotify {
						return &protocol.UseMagicItemNotify{MagicItemID: uint32(item), CharacterOid: uint32(targetOid)}
					})
				}
			}
		}
	}
}

func firstOtherRacingRacer(inst *Instance, exclude uint32) (uint32, *tracker.Racer, bool) {
	uids := make([]uint32, 0, len(inst.tracker.Racers()))
	for uid := range inst.tracker.Racers() {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	for _, uid := range uids {
		if uid == exclude {
			continue
		}
		if r := inst.tracker.GetRacer(uid); r != nil && r.State == tracker.StateRacing {
			return uid, r, true
		}
	}
	return 0, nil, false
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// broadcast queues build's output to every client currently seated in
// inst, producer-per-recipient so each QueueCommand call gets its own
// frame (outbound frames are not shared across clients' ciphers).
func broadcast[T any, M command.EncodablePtr[T]](d *Director, inst *Instance, build func() M) {
	for _, clientID := range inst.clients {
		command.QueueCommand[T](d.server, clientID, build)
	}
}
