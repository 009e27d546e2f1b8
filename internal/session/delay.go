package session

import (
	"container/heap"
	"time"
)

type delayEntry struct {
	item    *Item
	readyAt time.Time
	seq     uint64
	index   int
}

// delayHeap orders entries by ready-at, then by scheduling order.
type delayHeap []*delayEntry

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayHeap) Push(x any) {
	e := x.(*delayEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// delayQueue holds failed lines waiting for their same-day retry, at most one
// entry per line.
type delayQueue struct {
	entries delayHeap
	byID    map[string]*delayEntry
	seq     uint64
}

func newDelayQueue() *delayQueue {
	return &delayQueue{byID: make(map[string]*delayEntry)}
}

func (q *delayQueue) Len() int {
	return len(q.entries)
}

func (q *delayQueue) Contains(lineID string) bool {
	_, ok := q.byID[lineID]
	return ok
}

// Schedule adds the item, or moves its existing entry to the new ready-at.
func (q *delayQueue) Schedule(item *Item, readyAt time.Time) {
	q.seq++
	if e, ok := q.byID[item.LineID]; ok {
		e.item = item
		e.readyAt = readyAt
		e.seq = q.seq
		heap.Fix(&q.entries, e.index)
		return
	}
	e := &delayEntry{item: item, readyAt: readyAt, seq: q.seq}
	heap.Push(&q.entries, e)
	q.byID[item.LineID] = e
}

// PopReady removes and returns the earliest entry whose ready-at is not after now.
func (q *delayQueue) PopReady(now time.Time) *Item {
	if len(q.entries) == 0 || q.entries[0].readyAt.After(now) {
		return nil
	}
	return q.PopEarliest()
}

// PopEarliest removes and returns the entry with the soonest ready-at.
func (q *delayQueue) PopEarliest() *Item {
	if len(q.entries) == 0 {
		return nil
	}
	e := heap.Pop(&q.entries).(*delayEntry)
	delete(q.byID, e.item.LineID)
	return e.item
}

// Remove drops the line's entry, reporting whether there was one.
func (q *delayQueue) Remove(lineID string) bool {
	e, ok := q.byID[lineID]
	if !ok {
		return false
	}
	heap.Remove(&q.entries, e.index)
	delete(q.byID, lineID)
	return true
}

// Items returns the waiting items in no particular order.
func (q *delayQueue) Items() []*Item {
	items := make([]*Item, 0, len(q.entries))
	for _, e := range q.entries {
		items = append(items, e.item)
	}
	return items
}
