package relay

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*Relay, *net.UDPAddr) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	r := New(zerolog.Nop())
	go r.Serve(conn)
	t.Cleanup(func() { r.Close() })

	return r, conn.LocalAddr().(*net.UDPAddr)
}

func TestRelayFansOutToKnownPeersOnly(t *testing.T) {
	_, relayAddr := newTestRelay(t)

	connA, err := net.DialUDP("udp", nil, relayAddr)
	require.NoError(t, err)
	defer connA.Close()
	connB, err := net.DialUDP("udp", nil, relayAddr)
	require.NoError(t, err)
	defer connB.Close()

	// A is the first sender: the relay has no other peer yet, so
	// nothing is forwarded anywhere.
	_, err = connA.Write([]byte("hello-from-a"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	// B sends next: A is now known, so B's datagram is forwarded to A,
	// headered.
	_, err = connB.Write([]byte("hello-from-b"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := connA.Read(buf)
	require.NoError(t, err)
	require.Equal(t, headerSize+len("hello-from-b"), n)
	require.Equal(t, uint16(relayWord), binary.LittleEndian.Uint16(buf[4:6]))
	require.Equal(t, "hello-from-b", string(buf[headerSize:n]))
}

func TestRelayPeerCount(t *testing.T) {
	r, relayAddr := newTestRelay(t)

	connA, err := net.DialUDP("udp", nil, relayAddr)
	require.NoError(t, err)
	defer connA.Close()

	require.Equal(t, 0, r.PeerCount())

	_, err = connA.Write([]byte("ping"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, r.PeerCount())
}
