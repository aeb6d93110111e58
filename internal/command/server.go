// Package command implements the shared Command Server each tier
// (lobby, race, ranch) instantiates: TCP accept, per-client framed
// read loop, dispatch by command id to registered typed handlers, a
// per-client serialized write queue, and lifecycle callbacks to the
// owning director. Grounded on fourst4r-pr2server's tcp.go accept-loop
// / per-connection-goroutine shape and conn.go's buffered-reader
// framing loop, generalized from a single global mutation channel to
// a per-director dispatch table plus QueueCommand closures (spec
// §4.2).
package command

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/alborrajo/alicia-server/internal/protocol"
	"github.com/alborrajo/alicia-server/internal/wire"
)

// ClientID is an opaque monotonic per-tier connection identifier, per
// spec §3's "Client session (per tier)."
type ClientID uint64

// Decodable is implemented by every inbound message type: it names the
// command id it is registered under and can parse its payload fields.
type Decodable interface {
	Command() protocol.CommandID
	Read(*wire.Reader) error
}

// Encodable is implemented by every outbound message type.
type Encodable interface {
	Command() protocol.CommandID
	Write(*wire.Writer)
}

// Director receives the Command Server's lifecycle callbacks. Both
// are invoked from the server's event goroutines; directors that
// require tick-ordering must marshal the work onto their own queue
// (spec §4.2/§5).
type Director interface {
	HandleClientConnected(ClientID)
	HandleClientDisconnected(ClientID)
}

type handlerEntry struct {
	factory func() Decodable
	invoke  func(ClientID, Decodable)
}

type client struct {
	id     ClientID
	conn   net.Conn
	cipher *wire.Cipher
	outbox chan []byte
	once   sync.Once
}

func (c *client) disconnect() {
	c.once.Do(func() {
		close(c.outbox)
		c.conn.Close()
	})
}

// Server is one tier's TCP listener plus its client registry and
// dispatch table.
type Server struct {
	log      zerolog.Logger
	director Director

	mu       sync.Mutex
	handlers map[protocol.CommandID]handlerEntry
	clients  map[ClientID]*client
	nextID   uint64

	listener net.Listener
}

// NewServer returns a Server that will call back into director.
func NewServer(director Director, log zerolog.Logger) *Server {
	return &Server{
		log:      log,
		director: director,
		handlers: make(map[protocol.CommandID]handlerEntry),
		clients:  make(map[ClientID]*client),
	}
}

// DecodablePtr constrains M to a pointer-to-T that implements
// Decodable, letting RegisterCommandHandler allocate a fresh *T per
// message without reflection.
type DecodablePtr[T any] interface {
	Decodable
	*T
}

// RegisterCommandHandler associates a typed handler with M's command
// id (a zero *T's Command()); dispatch allocates a fresh *T, calls
// Read on the deciphered payload, then invokes fn(clientID, msg).
func RegisterCommandHandler[T any, M DecodablePtr[T]](s *Server, fn func(ClientID, M)) {
	id := M(new(T)).Command()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[id] = handlerEntry{
		factory: func() Decodable {
			return M(new(T))
		},
		invoke: func(cid ClientID, d Decodable) {
			fn(cid, d.(M))
		},
	}
}

// EncodablePtr constrains M to a pointer-to-T that implements
// Encodable.
type EncodablePtr[T any] interface {
	Encodable
	*T
}

// QueueCommand thread-safely enqueues a write to clientID. producer is
// evaluated immediately on the caller's goroutine, not deferred to the
// client's write worker; only the framed result is handed to the write
// worker. A disconnected client silently drops the command.
func QueueCommand[T any, M EncodablePtr[T]](s *Server, clientID ClientID, producer func() M) {
	s.mu.Lock()
	c, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		return
	}

	defer func() { recover() }() // outbox may close concurrently with disconnect
	c.outbox <- func() []byte {
		msg := producer()
		w := wire.NewWriter()
		msg.Write(w)
		frame, err := wire.EncodeFrame(uint16(msg.Command()), 0, w.Payload(), c.cipher)
		if err != nil {
			return nil
		}
		return frame
	}()
}

// ResetCipherSeed rotates clientID's per-client obfuscation seed, used
// by the lobby on login-OK (spec §4.1).
func (s *Server) ResetCipherSeed(clientID ClientID, seed [4]byte) {
	s.mu.Lock()
	c, ok := s.clients[clientID]
	s.mu.Unlock()
	if ok {
		c.cipher.SetSeed(seed)
	}
}

// Disconnect forcibly closes clientID's connection.
func (s *Server) Disconnect(clientID ClientID) {
	s.mu.Lock()
	c, ok := s.clients[clientID]
	s.mu.Unlock()
	if ok {
		c.disconnect()
	}
}

// ListenAndServe binds addr and runs the accept loop until the
// listener is closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info().Str("addr", addr).Msg("command server listening")
	return s.Serve(ln)
}

// Serve runs the accept loop against an already-bound listener until
// it is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	id := ClientID(atomic.AddUint64(&s.nextID, 1))
	c := &client{
		id:     id,
		conn:   conn,
		cipher: wire.NewCipher(),
		outbox: make(chan []byte, 64),
	}

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()

	s.director.HandleClientConnected(id)

	go s.writeLoop(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	c.disconnect()
	s.director.HandleClientDisconnected(id)
}

func (s *Server) writeLoop(c *client) {
	for frame := range c.outbox {
		if frame == nil {
			continue
		}
		if _, err := writeFull(c.conn, frame); err != nil {
			s.log.Debug().Uint64("client", uint64(c.id)).Err(err).Msg("write failed, disconnecting")
			c.disconnect()
			return
		}
	}
}

func writeFull(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Server) readLoop(c *client) {
	br := bufio.NewReader(c.conn)
	var header [wire.HeaderSize]byte

	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			return
		}
		id, length, err := wire.DecodeFrameHeader(header)
		if err != nil {
			s.log.Debug().Uint64("client", uint64(c.id)).Msg("protocol framing error")
			return
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			s.log.Debug().Uint64("client", uint64(c.id)).Msg("protocol truncated error")
			return
		}
		c.cipher.Apply(payload)

		s.mu.Lock()
		entry, known := s.handlers[protocol.CommandID(id)]
		s.mu.Unlock()
		if !known {
			s.log.Warn().Uint16("cmd", id).Msg("unknown command id, discarding")
			continue
		}

		msg := entry.factory()
		if err := msg.Read(wire.NewReader(payload)); err != nil {
			s.log.Debug().Uint64("client", uint64(c.id)).Err(err).Msg("payload truncated")
			return
		}

		panicked := func() (panicked bool) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Uint64("client", uint64(c.id)).Interface("panic", r).Msg("handler panicked, disconnecting")
					panicked = true
				}
			}()
			entry.invoke(c.id, msg)
			return false
		}()
		if panicked {
			return
		}
	}
}
