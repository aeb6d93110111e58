package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddRacerOidBijection(t *testing.T) {
	tr := New()
	uids := []uint32{100, 200, 300}
	seen := map[Oid]bool{}
	for _, uid := range uids {
		r := tr.AddRacer(uid)
		require.False(t, seen[r.Oid], "oid %d reused", r.Oid)
		seen[r.Oid] = true
	}
	for i := 1; i <= len(uids); i++ {
		require.True(t, seen[Oid(i)], "oid %d missing from bijection", i)
	}
}

func TestClearResetsCounters(t *testing.T) {
	tr := New()
	tr.AddRacer(1)
	tr.AddRacer(2)
	tr.AddItem()
	tr.Clear()

	r := tr.AddRacer(3)
	require.EqualValues(t, 1, r.Oid)
	it := tr.AddItem()
	require.EqualValues(t, 1, it.Oid)
	require.Len(t, tr.Racers(), 1)
	require.Len(t, tr.Items(), 1)
}

func TestDisconnectedRacerSortsLastByMaxCourseTime(t *testing.T) {
	tr := New()
	finisher := tr.AddRacer(1)
	finisher.State = StateFinishing
	finisher.CourseTime = 60000

	straggler := tr.AddRacer(2)
	straggler.State = StateDisconnected
	require.Equal(t, uint32(MaxCourseTime), straggler.CourseTime)
	require.Less(t, finisher.CourseTime, straggler.CourseTime)
}
