package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alborrajo/alicia-server/internal/room"
)

func TestStatusReportsRoomPopulationAndQueueDepth(t *testing.T) {
	rooms := room.NewRegistry()
	rooms.CreateRoom(func(r *room.Room) {
		r.Details().MaxPlayerCount = 4
		_ = r.AddPlayer(1)
		_ = r.AddPlayer(2)
	})
	rooms.CreateRoom(func(r *room.Room) {
		r.Details().MaxPlayerCount = 4
		_ = r.AddPlayer(3)
	})

	deps := Dependencies{
		Rooms:           rooms,
		LobbyQueueDepth: func() int { return 5 },
		Lobby:           TierAddress{Address: "0.0.0.0", Port: 10030},
		Ranch:           TierAddress{Address: "0.0.0.0", Port: 10031},
		Race:            TierAddress{Address: "0.0.0.0", Port: 10032},
	}
	s := New(deps, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.RoomCount)
	require.Equal(t, 3, resp.Population)
	require.Equal(t, 5, resp.LoginQueueSize)
	require.Equal(t, 10030, resp.Lobby.Port)
}
