package session

import (
	"testing"
	"time"
)

func TestDelayQueue(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a, b, c := &Item{LineID: "a"}, &Item{LineID: "b"}, &Item{LineID: "c"}

	q := newDelayQueue()
	q.Schedule(a, base.Add(7*time.Minute))
	q.Schedule(b, base.Add(2*time.Minute))
	q.Schedule(c, base.Add(5*time.Minute))

	if q.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", q.Len())
	}
	if got := q.PopReady(base.Add(time.Minute)); got != nil {
		t.Errorf("Expected nothing ready, got %s", got.LineID)
	}
	if got := q.PopReady(base.Add(6 * time.Minute)); got != b {
		t.Errorf("Expected b to be ready first, got %v", got)
	}
	if got := q.PopReady(base.Add(6 * time.Minute)); got != c {
		t.Errorf("Expected c next, got %v", got)
	}
	if got := q.PopReady(base.Add(6 * time.Minute)); got != nil {
		t.Errorf("Expected a not to be ready yet, got %s", got.LineID)
	}
	if got := q.PopEarliest(); got != a {
		t.Errorf("Expected a as the earliest entry, got %v", got)
	}
	if q.PopEarliest() != nil {
		t.Error("Expected an empty queue")
	}
}

func TestDelayQueueReschedule(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	a, b := &Item{LineID: "a"}, &Item{LineID: "b"}

	q := newDelayQueue()
	q.Schedule(a, base)
	q.Schedule(b, base.Add(time.Minute))
	q.Schedule(a, base.Add(10*time.Minute))

	if q.Len() != 2 {
		t.Fatalf("Expected rescheduling to keep one entry per line, got %d entries", q.Len())
	}
	if got := q.PopEarliest(); got != b {
		t.Errorf("Expected b after a was pushed back, got %v", got)
	}
}

func TestDelayQueueTiesKeepSchedulingOrder(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := newDelayQueue()
	for _, id := range []string{"x", "y", "z"} {
		q.Schedule(&Item{LineID: id}, at)
	}
	for _, want := range []string{"x", "y", "z"} {
		if got := q.PopEarliest(); got.LineID != want {
			t.Errorf("Expected %s, got %s", want, got.LineID)
		}
	}
}

func TestDelayQueueRemove(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q := newDelayQueue()
	q.Schedule(&Item{LineID: "a"}, base)
	q.Schedule(&Item{LineID: "b"}, base.Add(time.Minute))
	q.Schedule(&Item{LineID: "c"}, base.Add(2*time.Minute))

	if !q.Remove("a") {
		t.Error("Expected a to be removed")
	}
	if q.Remove("a") {
		t.Error("Expected a second remove to report false")
	}
	if q.Contains("a") {
		t.Error("Expected a to be gone")
	}
	if got := q.PopEarliest(); got.LineID != "b" {
		t.Errorf("Expected b, got %s", got.LineID)
	}
	if len(q.Items()) != 1 {
		t.Errorf("Expected one remaining item, got %d", len(q.Items()))
	}
}
