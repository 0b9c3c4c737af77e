package water

import (
	"container/heap"

	"hydrocraft.sim/internal/sim/world"
)

// Scheduling delays, in ticks. Freshly placed or discovered water gets a
// fast first look; steady-state neighbor propagation runs at the slower
// settle cadence so spreading is visible rather than instantaneous.
const (
	DelayImmediate = 2
	DelaySettle    = 10
)

type scheduledEntry struct {
	tick uint64
	pos  world.Vec3i
}

type entryHeap []scheduledEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].tick < h[j].tick }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)         { *h = append(*h, x.(scheduledEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// updateQueue is a tick-ordered, position-deduplicated work queue. The heap
// may hold superseded entries; the pending side map records the earliest
// requested tick per position and stale heap entries are discarded lazily
// on pop instead of being surgically removed on reschedule.
type updateQueue struct {
	h       entryHeap
	pending map[world.Vec3i]uint64
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{pending: map[world.Vec3i]uint64{}}
}

// enqueue schedules pos for now+delay. Requesting a tick at or after an
// already-pending one is a no-op; an earlier tick supersedes it.
func (q *updateQueue) enqueue(pos world.Vec3i, now uint64, delay int) {
	if delay < 0 {
		delay = 0
	}
	target := now + uint64(delay)
	if prev, ok := q.pending[pos]; ok && prev <= target {
		return
	}
	q.pending[pos] = target
	heap.Push(&q.h, scheduledEntry{tick: target, pos: pos})
}

// popDue yields up to budget positions whose scheduled tick is <= now,
// in scheduled-tick order, clearing their pending entries.
func (q *updateQueue) popDue(now uint64, budget int) []world.Vec3i {
	var due []world.Vec3i
	for len(q.h) > 0 && len(due) < budget {
		if q.h[0].tick > now {
			break
		}
		e := heap.Pop(&q.h).(scheduledEntry)
		t, ok := q.pending[e.pos]
		if !ok || t != e.tick {
			continue // superseded or purged
		}
		delete(q.pending, e.pos)
		due = append(due, e.pos)
	}
	return due
}

// purge drops pending entries matching pred. Matching heap entries go
// stale and are skipped on pop.
func (q *updateQueue) purge(pred func(pos world.Vec3i) bool) {
	for pos := range q.pending {
		if pred(pos) {
			delete(q.pending, pos)
		}
	}
}

func (q *updateQueue) pendingCount() int { return len(q.pending) }
