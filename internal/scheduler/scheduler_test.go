package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickRunsOnlyPastDeadlines(t *testing.T) {
	s := New()
	var ran []string

	s.Queue(time.Now().Add(50*time.Millisecond), func() { ran = append(ran, "late") })
	s.Queue(time.Now().Add(-time.Millisecond), func() { ran = append(ran, "early") })

	s.Tick()
	require.Equal(t, []string{"early"}, ran)
	require.Equal(t, 1, s.Len())

	time.Sleep(60 * time.Millisecond)
	s.Tick()
	require.Equal(t, []string{"early", "late"}, ran)
	require.Zero(t, s.Len())
}

func TestTickRunsInDeadlineOrder(t *testing.T) {
	s := New()
	var order []int
	s.Queue(time.Now().Add(-1*time.Millisecond), func() { order = append(order, 2) })
	s.Queue(time.Now().Add(-2*time.Millisecond), func() { order = append(order, 1) })
	s.Queue(time.Now().Add(-3*time.Millisecond), func() { order = append(order, 0) })

	s.Tick()
	require.Equal(t, []int{0, 1, 2}, order)
}
