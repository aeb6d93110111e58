package lobby

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alborrajo/alicia-server/internal/command"
	"github.com/alborrajo/alicia-server/internal/config"
	"github.com/alborrajo/alicia-server/internal/datadirector"
	"github.com/alborrajo/alicia-server/internal/infraction"
	"github.com/alborrajo/alicia-server/internal/otp"
	"github.com/alborrajo/alicia-server/internal/protocol"
	"github.com/alborrajo/alicia-server/internal/room"
	"github.com/alborrajo/alicia-server/internal/wire"
)

type harness struct {
	server *command.Server
	lobby  *Director
	data   *datadirector.Memory
	addr   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	data := datadirector.NewMemory()
	otps := otp.New()
	rooms := room.NewRegistry()
	l := New(data, otps, rooms, infraction.AlwaysClear{}, *config.Default(), zerolog.Nop())
	s := command.NewServer(l, zerolog.Nop())
	l.Attach(s)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	t.Cleanup(func() { s.Close() })

	return &harness{server: s, lobby: l, data: data, addr: ln.Addr().String()}
}

func dialAndLogin(t *testing.T, h *harness, addr, name, token string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cipher := wire.NewCipher()
	w := wire.NewWriter()
	(&protocol.Login{LoginID: name, Token: token}).Write(w)
	frame, err := wire.EncodeFrame(uint16(protocol.CmdLogin), 0, w.Payload(), cipher)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
	return conn
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

func tickUntilIdle(h *harness, n int) {
	for i := 0; i < n; i++ {
		h.lobby.Tick()
		time.Sleep(time.Millisecond)
	}
}

func TestHappyPathLogin(t *testing.T) {
	h := newHarness(t)
	h.data.SeedUser(datadirector.User{Name: "u", Token: "t", HasCharacter: true, CharacterUID: 7})
	h.data.SeedCharacter(datadirector.Character{UID: 7, Name: "Silver"})

	conn := dialAndLogin(t, h, h.addr, "u", "t")
	tickUntilIdle(h, 20)

	cipher := wire.NewCipher()
	id, payload := readFrame(t, conn, cipher)
	require.Equal(t, uint16(protocol.CmdLoginOK), id)

	var ok protocol.LoginOK
	require.NoError(t, ok.Read(wire.NewReader(payload)))
	require.Equal(t, uint32(7), ok.CharacterUID)
	require.False(t, ok.CharacterCreator)
}

func TestDuplicateLoginOnlyFirstSucceeds(t *testing.T) {
	h := newHarness(t)
	h.data.SeedUser(datadirector.User{Name: "u", Token: "t", HasCharacter: true, CharacterUID: 7})
	h.data.SeedCharacter(datadirector.Character{UID: 7, Name: "Silver"})

	connA := dialAndLogin(t, h, h.addr, "u", "t")
	connB := dialAndLogin(t, h, h.addr, "u", "t")
	tickUntilIdle(h, 30)

	cipherA, cipherB := wire.NewCipher(), wire.NewCipher()
	idA, payloadA := readFrame(t, connA, cipherA)
	idB, payloadB := readFrame(t, connB, cipherB)

	ids := map[uint16][]byte{idA: payloadA, idB: payloadB}
	require.Contains(t, ids, uint16(protocol.CmdLoginOK), "exactly one client must receive LoginOK")
	require.Contains(t, ids, uint16(protocol.CmdLoginCancel), "the duplicate must receive LoginCancel")

	var cancel protocol.LoginCancel
	require.NoError(t, cancel.Read(wire.NewReader(ids[uint16(protocol.CmdLoginCancel)])))
	require.Equal(t, protocol.LoginCancelDuplicated, cancel.Reason)
}
