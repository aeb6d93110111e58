// Package relay implements the UDP P2P fan-out relay: a single
// loopback socket that forwards every datagram it receives to every
// other peer it has heard from, prefixed with spec §6's 6-byte relay
// header (the last 16-bit word set to 1). Clients use this for direct
// peer traffic (position/voice) the TCP tiers never see. Grounded on
// fourst4r-pr2server's runPolicy (policy.go) for the minimal
// accept-loop-as-a-goroutine idiom, adapted from a TCP listener
// answering one canned response to a UDP socket fanning datagrams out
// to a live peer set.
package relay

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// headerSize is the fixed length of the relay header prepended to
// every forwarded datagram.
const headerSize = 6

// relayWord is the fixed value of the header's last 16-bit word, per
// spec §6.
const relayWord = 1

// Relay is a UDP fan-out server: it tracks every address that has sent
// it a datagram and forwards each subsequent datagram, headered, to
// every other tracked address.
type Relay struct {
	log  zerolog.Logger
	conn *net.UDPConn

	mu    sync.Mutex
	peers map[string]*net.UDPAddr
}

// New returns a Relay that will serve on conn once Serve is called.
func New(log zerolog.Logger) *Relay {
	return &Relay{log: log, peers: make(map[string]*net.UDPAddr)}
}

// ListenAndServe binds addr and runs the receive loop until the
// underlying socket is closed.
func (r *Relay) ListenAndServe(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	r.log.Info().Str("addr", addr).Msg("relay listening")
	return r.Serve(conn)
}

// Serve runs the receive loop against an already-bound socket.
func (r *Relay) Serve(conn *net.UDPConn) error {
	r.conn = conn
	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		r.handleDatagram(from, buf[:n])
	}
}

// Close stops the relay's socket.
func (r *Relay) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// PeerCount reports the number of distinct addresses the relay has
// seen traffic from, for the status surface.
func (r *Relay) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Relay) handleDatagram(from *net.UDPAddr, payload []byte) {
	key := from.String()

	r.mu.Lock()
	if _, known := r.peers[key]; !known {
		r.peers[key] = from
	}
	targets := make([]*net.UDPAddr, 0, len(r.peers))
	for k, addr := range r.peers {
		if k == key {
			continue
		}
		targets = append(targets, addr)
	}
	r.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	out := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint16(out[4:6], relayWord)
	copy(out[headerSize:], payload)

	for _, addr := range targets {
		if _, err := r.conn.WriteToUDP(out, addr); err != nil {
			r.log.Debug().Err(err).Str("peer", addr.String()).Msg("relay write failed")
		}
	}
}
