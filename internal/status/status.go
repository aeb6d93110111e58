// Package status serves the read-only HTTP operational surface spec
// §6.1 describes: a single `GET /status` document reporting each
// tier's listen address, the room registry's population, and the
// lobby's login queue depth. Grounded on fourst4r-pr2server's
// serverstatusHandler (http.go) for the idea of a single canned status
// document, reshaped from a hardcoded server list into a live
// snapshot of this core's own state, served through gin-gonic/gin
// rather than net/http's bare mux.
package status

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/alborrajo/alicia-server/internal/room"
)

// TierAddress is one tier's advertised bind address.
type TierAddress struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// Dependencies are the live collaborators the status handler reads
// from on every request; none of them are owned or mutated by this
// package.
type Dependencies struct {
	Rooms           *room.Registry
	LobbyQueueDepth func() int
	Lobby           TierAddress
	Ranch           TierAddress
	Race            TierAddress
}

// Response is the JSON document GET /status returns.
type Response struct {
	Lobby          TierAddress `json:"lobby"`
	Ranch          TierAddress `json:"ranch"`
	Race           TierAddress `json:"race"`
	RoomCount      int         `json:"room_count"`
	Population     int         `json:"population"`
	LoginQueueSize int         `json:"login_queue_size"`
}

// Server wraps a gin engine exposing the status surface.
type Server struct {
	engine *gin.Engine
	deps   Dependencies
	log    zerolog.Logger
}

// New returns a status Server bound to deps. Gin runs in release mode;
// this surface has no interactive console use.
func New(deps Dependencies, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, deps: deps, log: log}
	engine.GET("/status", s.handleStatus)
	return s
}

func (s *Server) handleStatus(c *gin.Context) {
	snapshots := s.deps.Rooms.GetRoomsSnapshot()
	population := 0
	for _, snap := range snapshots {
		population += snap.PlayerCount
	}

	c.JSON(http.StatusOK, Response{
		Lobby:          s.deps.Lobby,
		Ranch:          s.deps.Ranch,
		Race:           s.deps.Race,
		RoomCount:      len(snapshots),
		Population:     population,
		LoginQueueSize: s.deps.LobbyQueueDepth(),
	})
}

// ListenAndServe binds addr and serves until an error occurs or the
// process exits.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info().Str("addr", addr).Msg("status server listening")
	return s.engine.Run(addr)
}
