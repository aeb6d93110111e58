package race

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alborrajo/alicia-server/internal/command"
	"github.com/alborrajo/alicia-server/internal/otp"
	"github.com/alborrajo/alicia-server/internal/protocol"
	"github.com/alborrajo/alicia-server/internal/room"
	"github.com/alborrajo/alicia-server/internal/tracker"
	"github.com/alborrajo/alicia-server/internal/wire"
)

func newTestServer(t *testing.T, d *Director) string {
	t.Helper()
	s := command.NewServer(d, zerolog.Nop())
	d.Attach(s)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	t.Cleanup(func() { s.Close() })
	return ln.Addr().String()
}

func send(t *testing.T, conn net.Conn, cipher *wire.Cipher, msg command.Encodable) {
	t.Helper()
	w := wire.NewWriter()
	msg.Write(w)
	frame, err := wire.EncodeFrame(uint16(msg.Command()), 0, w.Payload(), cipher)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func readFrame(t *testing.T, conn net.Conn, cipher *wire.Cipher) (uint16, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var header [wire.HeaderSize]byte
	_, err := io.ReadFull(conn, header[:])
	require.NoError(t, err)
	id, length, err := wire.DecodeFrameHeader(header)
	require.NoError(t, err)
	payload := make([]byte, length)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	cipher.Apply(payload)
	return id, payload
}

// readUntil discards frames until it observes want, failing the test if it
// doesn't show up among the room's broadcast chatter within a bound.
func readUntil(t *testing.T, conn net.Conn, cipher *wire.Cipher, want uint16) []byte {
	t.Helper()
	for i := 0; i < 30; i++ {
		id, payload := readFrame(t, conn, cipher)
		if id == want {
			return payload
		}
	}
	t.Fatalf("did not observe command %d within 30 frames", want)
	return nil
}

func tick(d *Director, n int) {
	for i := 0; i < n; i++ {
		d.Tick()
		time.Sleep(time.Millisecond)
	}
}

func dialAndEnterRoom(t *testing.T, addr string, roomUID, characterUID uint32, code otp.Code) (net.Conn, *wire.Cipher) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	cipher := wire.NewCipher()
	send(t, conn, cipher, &protocol.EnterRoom{RoomUID: roomUID, CharacterUID: characterUID, OTP: uint32(code)})
	return conn, cipher
}

func setupTwoPlayerRoom(t *testing.T) (*Director, string, *room.Registry, *otp.System, uint32) {
	t.Helper()
	rooms := room.NewRegistry()
	otps := otp.New()

	var roomUID uint32
	rooms.CreateRoom(func(r *room.Room) {
		details := r.Details()
		details.MaxPlayerCount = 2
		details.GameMode = room.GameModeSpeed
		details.TeamMode = room.TeamModeSolo
		_ = r.AddPlayer(1)
		_ = r.AddPlayer(2)
		roomUID = r.UID()
	})

	d := New(rooms, otps, zerolog.Nop())
	addr := newTestServer(t, d)
	return d, addr, rooms, otps, roomUID
}

// TestEnterRoomAssignsStableAscendingOids covers spec §8 scenario 3: the
// race tracker hands out oids in entry order, not at StartRace time.
func TestEnterRoomAssignsStableAscendingOids(t *testing.T) {
	d, addr, _, otps, roomUID := setupTwoPlayerRoom(t)

	code1 := otps.GrantCode(otp.IdentityHash(1, roomUID))
	conn1, cipher1 := dialAndEnterRoom(t, addr, roomUID, 1, code1)
	tick(d, 5)
	var ok1 protocol.EnterRoomOK
	require.NoError(t, ok1.Read(wire.NewReader(readUntil(t, conn1, cipher1, uint16(protocol.CmdEnterRoomOK)))))
	require.Equal(t, uint32(1), ok1.RacerOid)

	code2 := otps.GrantCode(otp.IdentityHash(2, roomUID))
	conn2, cipher2 := dialAndEnterRoom(t, addr, roomUID, 2, code2)
	tick(d, 5)
	var ok2 protocol.EnterRoomOK
	require.NoError(t, ok2.Read(wire.NewReader(readUntil(t, conn2, cipher2, uint16(protocol.CmdEnterRoomOK)))))
	require.Equal(t, uint32(2), ok2.RacerOid)
}

// TestEnterRoomRejectsBadOTP covers rejection of a code that was never
// granted at the race tier's own authorization point.
func TestEnterRoomRejectsBadOTP(t *testing.T) {
	d, addr, _, _, roomUID := setupTwoPlayerRoom(t)

	conn, cipher := dialAndEnterRoom(t, addr, roomUID, 1, otp.Code(0xDEADBEEF))
	tick(d, 5)
	var cancel protocol.EnterRoomCancel
	require.NoError(t, cancel.Read(wire.NewReader(readUntil(t, conn, cipher, uint16(protocol.CmdEnterRoomCancel)))))
	require.Equal(t, protocol.EnterRoomAuthError, cancel.Status)
}

// TestRaceWithTimeout covers spec §8 scenario 4: one racer finishes,
// the other never does; the stage and finish timeouts carry the race
// to completion with the straggler sorting last at the max sentinel.
func TestRaceWithTimeout(t *testing.T) {
	d, addr, _, otps, roomUID := setupTwoPlayerRoom(t)

	code1 := otps.GrantCode(otp.IdentityHash(1, roomUID))
	conn1, cipher1 := dialAndEnterRoom(t, addr, roomUID, 1, code1)
	tick(d, 5)
	readUntil(t, conn1, cipher1, uint16(protocol.CmdEnterRoomOK))

	code2 := otps.GrantCode(otp.IdentityHash(2, roomUID))
	conn2, cipher2 := dialAndEnterRoom(t, addr, roomUID, 2, code2)
	tick(d, 5)
	readUntil(t, conn2, cipher2, uint16(protocol.CmdEnterRoomOK))

	send(t, conn1, cipher1, &protocol.StartRace{})
	tick(d, 5)

	inst := d.instances[roomUID]
	require.NotNil(t, inst)
	require.Equal(t, StageLoading, inst.stage)

	send(t, conn1, cipher1, &protocol.LoadingComplete{})
	send(t, conn2, cipher2, &protocol.LoadingComplete{})
	tick(d, 5)
	require.Equal(t, StageRacing, inst.stage)

	// Force the Racing stage-timeout before any racer has finished,
	// exercising the timeout path scenario 4 names; a racer's own
	// UserRaceFinal would otherwise end the Racing stage by itself.
	inst.stageDeadline = time.Now().Add(-time.Millisecond)
	tick(d, 5)
	require.Equal(t, StageFinishing, inst.stage)

	// The timeout's FinalNotify lets a racer still commit its result
	// during Finishing.
	send(t, conn1, cipher1, &protocol.UserRaceFinal{CourseTime: 60000})
	tick(d, 3)

	racer2 := inst.tracker.GetRacer(2)
	require.NotNil(t, racer2)
	require.Equal(t, tracker.StateRacing, racer2.State, "the straggler never sent UserRaceFinal")

	inst.stageDeadline = time.Now().Add(-time.Millisecond)
	tick(d, 5)

	payload := readUntil(t, conn1, cipher1, uint16(protocol.CmdScoreNotify))
	var score protocol.ScoreNotify
	require.NoError(t, score.Read(wire.NewReader(payload)))
	require.Len(t, score.Rows, 2)
	require.Equal(t, uint32(1), score.Rows[0].CharacterOid)
	require.Equal(t, uint32(60000), score.Rows[0].CourseTime)
	require.Equal(t, uint32(2), score.Rows[1].CharacterOid)
	require.Equal(t, uint32(tracker.MaxCourseTime), score.Rows[1].CourseTime)
}

// TestBoltResolution covers spec §8 scenario 6: using Bolt clears both
// the actor's and the target's held item, and the target's hit notify
// carries its own oid with the attacker's item id.
func TestBoltResolution(t *testing.T) {
	d, addr, _, otps, roomUID := setupTwoPlayerRoom(t)

	code1 := otps.GrantCode(otp.IdentityHash(1, roomUID))
	conn1, cipher1 := dialAndEnterRoom(t, addr, roomUID, 1, code1)
	tick(d, 5)
	readUntil(t, conn1, cipher1, uint16(protocol.CmdEnterRoomOK))

	code2 := otps.GrantCode(otp.IdentityHash(2, roomUID))
	conn2, cipher2 := dialAndEnterRoom(t, addr, roomUID, 2, code2)
	tick(d, 5)
	readUntil(t, conn2, cipher2, uint16(protocol.CmdEnterRoomOK))

	send(t, conn1, cipher1, &protocol.StartRace{})
	tick(d, 3)
	send(t, conn1, cipher1, &protocol.LoadingComplete{})
	send(t, conn2, cipher2, &protocol.LoadingComplete{})
	tick(d, 5)

	inst := d.instances[roomUID]
	require.NotNil(t, inst)
	require.Equal(t, StageRacing, inst.stage)

	racerA := inst.tracker.GetRacer(1)
	racerB := inst.tracker.GetRacer(2)
	require.NotNil(t, racerA)
	require.NotNil(t, racerB)

	bolt := uint32(protocol.MagicItemBolt)
	racerA.MagicItem = &bolt
	iceWall := uint32(protocol.MagicItemIceWall)
	racerB.MagicItem = &iceWall

	send(t, conn1, cipher1, &protocol.UseMagicItem{})
	tick(d, 5)

	require.Nil(t, racerA.MagicItem)
	require.Nil(t, racerB.MagicItem)

	var hit protocol.UseMagicItemNotify
	for i := 0; i < 30; i++ {
		id, payload := readFrame(t, conn2, cipher2)
		if id != uint16(protocol.CmdUseMagicItemNotify) {
			continue
		}
		require.NoError(t, hit.Read(wire.NewReader(payload)))
		if hit.CharacterOid == uint32(racerB.Oid) {
			break
		}
	}
	require.Equal(t, uint32(protocol.MagicItemBolt), hit.MagicItemID)
	require.Equal(t, uint32(racerB.Oid), hit.CharacterOid)
}
