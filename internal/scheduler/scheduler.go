// Package scheduler implements the single-threaded cooperative deferred
// task queue each director ticks to run time-ordered work (countdown
// broadcasts, item respawns) without blocking.
package scheduler

import (
	"container/heap"
	"time"
)

// Scheduler holds a time-ordered queue of (deadline, closure) pairs.
// Cancel is deliberately not supported; queued closures must be idempotent
// and re-check their own preconditions, since a stale closure may still
// run after the state it was queued for has changed.
type Scheduler struct {
	pq entryHeap
}

// New returns an empty scheduler.
func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.pq)
	return s
}

// Queue enqueues fn to run the first time Tick observes now() >= deadline.
func (s *Scheduler) Queue(deadline time.Time, fn func()) {
	heap.Push(&s.pq, &entry{deadline: deadline, fn: fn})
}

// After is a convenience for Queue(time.Now().Add(d), fn).
func (s *Scheduler) After(d time.Duration, fn func()) {
	s.Queue(time.Now().Add(d), fn)
}

// Tick runs every closure whose deadline has passed, in deadline order.
// It must be called from the owning director's tick loop only.
func (s *Scheduler) Tick() {
	now := time.Now()
	for s.pq.Len() > 0 {
		next := s.pq[0]
		if next.deadline.After(now) {
			break
		}
		heap.Pop(&s.pq)
		next.fn()
	}
}

// Len reports how many closures are still pending.
func (s *Scheduler) Len() int {
	return s.pq.Len()
}

type entry struct {
	deadline time.Time
	fn       func()
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
