package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateRoomAssignsMonotonicUID(t *testing.T) {
	reg := NewRegistry()
	var uids []uint32
	for i := 0; i < 3; i++ {
		reg.CreateRoom(func(r *Room) {
			r.Details().MaxPlayerCount = 4
			uids = append(uids, r.UID())
		})
	}
	require.Equal(t, []uint32{1, 2, 3}, uids)
}

func TestGetRoomUnknownUID(t *testing.T) {
	reg := NewRegistry()
	err := reg.GetRoom(999, func(r *Room) {})
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestTeamBalanceInvariant(t *testing.T) {
	reg := NewRegistry()
	reg.CreateRoom(func(r *Room) {
		r.Details().MaxPlayerCount = 8
		r.Details().TeamMode = TeamModeTeam

		for i := uint32(1); i <= 7; i++ {
			require.NoError(t, r.AddPlayer(i))

			var red, blue int
			for _, p := range r.Players() {
				switch p.Team() {
				case TeamRed:
					red++
				case TeamBlue:
					blue++
				}
			}
			diff := red - blue
			if diff < 0 {
				diff = -diff
			}
			require.LessOrEqual(t, diff, 1)
		}
	})
}

func TestRoomFullRejectsExtraPlayer(t *testing.T) {
	reg := NewRegistry()
	reg.CreateRoom(func(r *Room) {
		r.Details().MaxPlayerCount = 1
		require.NoError(t, r.AddPlayer(1))
		require.ErrorIs(t, r.AddPlayer(2), ErrRoomFull)
	})
}

func TestRegistryLockNotHeldDuringCallback(t *testing.T) {
	reg := NewRegistry()
	reg.CreateRoom(func(r *Room) { r.Details().MaxPlayerCount = 4 })

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = reg.GetRoom(1, func(r *Room) { <-done })
	}()
	go func() {
		defer wg.Done()
		// Must not block on the first goroutine's room callback: the
		// registry lock must already be released while it runs.
		reg.CreateRoom(func(r *Room) {})
		close(done)
	}()
	wg.Wait()
}
