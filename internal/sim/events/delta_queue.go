package events

import "container/heap"

type pending struct {
	id  Identity
	due uint64
	seq uint64
}

type pendingHeap []pending

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)   { *h = append(*h, x.(pending)) }
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// DeltaQueue keeps pending events in a heap keyed by absolute due tick, ties
// broken by insertion order, plus an identity index for dedup.
type DeltaQueue struct {
	counter uint64
	seq     uint64
	h       pendingHeap
	index   map[Identity]struct{}
}

func NewDeltaQueue() *DeltaQueue {
	return &DeltaQueue{index: map[Identity]struct{}{}}
}

func (q *DeltaQueue) push(id Identity, countdown uint64) {
	if countdown == 0 {
		countdown = 1
	}
	q.seq++
	heap.Push(&q.h, pending{id: id, due: q.counter + countdown, seq: q.seq})
	q.index[id] = struct{}{}
}

func (q *DeltaQueue) Register(ev Event) bool {
	if _, ok := q.index[ev.Identity]; ok {
		return false
	}
	q.push(ev.Identity, ev.Countdown)
	return true
}

func (q *DeltaQueue) Contains(id Identity) bool {
	_, ok := q.index[id]
	return ok
}

func (q *DeltaQueue) DrainDue(fn func(Event) (Event, bool)) int {
	q.counter++
	handled := 0
	for len(q.h) > 0 && q.h[0].due <= q.counter {
		it := heap.Pop(&q.h).(pending)
		delete(q.index, it.id)
		handled++

		next, ok := fn(Event{Identity: it.id})
		if !ok {
			continue
		}
		// The fired instance is gone, so a re-arm only collides if fn
		// registered the same identity itself; the earlier entry wins.
		if _, dup := q.index[next.Identity]; dup {
			continue
		}
		q.push(next.Identity, next.Countdown)
	}
	return handled
}

func (q *DeltaQueue) Counter() uint64 { return q.counter }

func (q *DeltaQueue) Len() int { return len(q.h) }

func (q *DeltaQueue) Events() []Event {
	sorted := make(pendingHeap, len(q.h))
	copy(sorted, q.h)
	out := make([]Event, 0, len(sorted))
	for len(sorted) > 0 {
		it := heap.Pop(&sorted).(pending)
		out = append(out, Event{Identity: it.id, Countdown: it.due - q.counter})
	}
	return out
}

func (q *DeltaQueue) Restore(counter uint64, evs []Event) {
	q.counter = counter
	q.seq = 0
	q.h = q.h[:0]
	q.index = make(map[Identity]struct{}, len(evs))
	for _, ev := range evs {
		q.Register(ev)
	}
}
