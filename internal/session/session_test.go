package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/openingdrill/internal/daybound"
	"github.com/conorfennell/openingdrill/internal/domain"
)

const user = "user-1"

// maxRand never swaps during a shuffle and always draws the top of a range.
type maxRand struct{}

func (maxRand) IntN(n int) int { return n - 1 }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorded struct {
	review domain.Review
	event  domain.ReviewEvent
}

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	due       []domain.DueLine
	lines     []domain.DeckLine
	marks     map[string][]string
	fails     map[string]int
	records   []recorded
	upserts   []domain.Review
	seconds   map[string]int
	recordErr error
}

func newMemStore() *memStore {
	return &memStore{marks: map[string][]string{}, fails: map[string]int{}, seconds: map[string]int{}}
}

func markKey(day string, kind domain.DayMarkKind) string { return day + "|" + string(kind) }

func (m *memStore) DueReviews(ctx context.Context, userID string, deckID int64, today string) ([]domain.DueLine, error) {
	return m.due, nil
}

func (m *memStore) DeckLines(ctx context.Context, userID string, deckID int64) ([]domain.DeckLine, error) {
	return m.lines, nil
}

func (m *memStore) UpsertReview(ctx context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, r)
	return nil
}

func (m *memStore) RecordAttempt(ctx context.Context, r domain.Review, e domain.ReviewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.records = append(m.records, recorded{r, e})
	return nil
}

func (m *memStore) CountFailsSince(ctx context.Context, userID, lineID string, since time.Time) (int, error) {
	return m.fails[lineID], nil
}

func (m *memStore) DayMarks(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.marks[markKey(day, kind)]...), nil
}

func (m *memStore) AddDayMark(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind, lineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := markKey(day, kind)
	for _, id := range m.marks[k] {
		if id == lineID {
			return nil
		}
	}
	m.marks[k] = append(m.marks[k], lineID)
	return nil
}

func (m *memStore) ReplaceDayMarks(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind, lineIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[markKey(day, kind)] = append([]string(nil), lineIDs...)
	return nil
}

func (m *memStore) AddTimeSpent(ctx context.Context, userID, day string, seconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seconds[day] += seconds
	return nil
}

func testLine(id string, side domain.Side, moves ...string) domain.Line {
	return domain.Line{
		ID:      id,
		Name:    "line " + id,
		Moves:   moves,
		Active:  true,
		Opening: domain.Opening{ID: 1, DeckID: 1, Name: "opening", Side: side},
	}
}

func dueLine(id string, interval int) domain.DueLine {
	return domain.DueLine{Line: testLine(id, domain.White, "e4", "e5", "Nf3"), IntervalDays: &interval}
}

func newLine(id string) domain.DeckLine {
	return domain.DeckLine{Line: testLine(id, domain.White, "d4", "d5", "c4")}
}

// 09:00 UTC on 2026-03-10, well after the cutover.
var startTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const today = "2026-03-10"

func newDeps(store *memStore, clock *fakeClock) Deps {
	return Deps{
		Store:  store,
		Clock:  daybound.Clock{Location: time.UTC, CutoverHour: daybound.DefaultCutoverHour},
		Now:    clock.Now,
		Rand:   maxRand{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func startSession(t *testing.T, store *memStore, clock *fakeClock, newCap int) *Session {
	t.Helper()
	s, err := Start(context.Background(), newDeps(store, clock), user, 1, newCap)
	require.NoError(t, err)
	return s
}

// playClean plays the learner's moves of the current line without mistakes.
func playClean(t *testing.T, s *Session) {
	t.Helper()
	for {
		v := s.View()
		require.False(t, v.Done)
		if v.State != InProgress {
			return
		}
		s.mu.Lock()
		expected := s.attempt.item.Moves[s.attempt.ply]
		s.mu.Unlock()
		m, err := s.Play(context.Background(), expected)
		require.NoError(t, err)
		require.True(t, m.Correct)
	}
}

// failCurrent makes one mistake and then finishes the line.
func failCurrent(t *testing.T, s *Session) {
	t.Helper()
	m, err := s.Play(context.Background(), "Qh5")
	require.NoError(t, err)
	require.False(t, m.Correct)
	playClean(t, s)
}

func TestStartOrdersDueBeforeNew(t *testing.T) {
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("r1", 2), dueLine("r2", 4)}
	store.lines = []domain.DeckLine{newLine("n1"), newLine("n2"), {Line: testLine("r1", domain.White, "e4"), HasReview: true}}

	s := startSession(t, store, &fakeClock{startTime}, 10)

	v := s.View()
	assert.Equal(t, "r1", v.LineID)
	assert.False(t, v.IsNew)
	assert.Equal(t, 2, v.RecurringDue)
	assert.Equal(t, 2, v.NewDue)

	var ids []string
	for _, it := range s.main {
		ids = append(ids, it.LineID)
	}
	assert.Equal(t, []string{"r1", "r2", "n1", "n2"}, ids)
	assert.Equal(t, []string{"n1", "n2"}, store.marks[markKey(today, domain.MarkQueuedNew)])
}

func TestDailyNewCap(t *testing.T) {
	testCases := []struct {
		name     string
		newCap   int
		shown    int
		expected int
	}{
		{"fresh day draws up to the cap", 10, 0, 10},
		{"cap already consumed draws nothing", 10, 10, 0},
		{"partly consumed draws the remainder", 10, 4, 6},
		{"zero cap", 0, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			for i := 0; i < 15; i++ {
				store.lines = append(store.lines, newLine(fmt.Sprintf("n%02d", i)))
			}
			for i := 0; i < tc.shown; i++ {
				// Consumed lines have review rows by now.
				store.lines[i].HasReview = true
				store.marks[markKey(today, domain.MarkNewShown)] = append(store.marks[markKey(today, domain.MarkNewShown)], store.lines[i].Line.ID)
			}

			s := startSession(t, store, &fakeClock{startTime}, tc.newCap)
			assert.Len(t, s.main, tc.expected)
			for _, it := range s.main {
				assert.True(t, it.IsNew)
			}
		})
	}
}

func TestQueuedTodayComeFirst(t *testing.T) {
	store := newMemStore()
	store.lines = []domain.DeckLine{newLine("a"), newLine("b"), newLine("c"), newLine("d")}
	store.marks[markKey(today, domain.MarkQueuedNew)] = []string{"c", "gone", "a"}

	s := startSession(t, store, &fakeClock{startTime}, 3)

	var ids []string
	for _, it := range s.main {
		ids = append(ids, it.LineID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, ids, store.marks[markKey(today, domain.MarkQueuedNew)])
}

func TestReadyRetryCutsAhead(t *testing.T) {
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2), dueLine("b", 2), dueLine("c", 2), dueLine("d", 2)}
	clock := &fakeClock{startTime}
	s := startSession(t, store, clock, 10)

	require.Equal(t, "a", s.View().LineID)
	failCurrent(t, s)

	clock.Advance(8 * time.Minute)
	require.NoError(t, s.Advance(context.Background()))

	v := s.View()
	assert.Equal(t, "a", v.LineID, "a ready retry is shown before the untouched b, c and d")
	assert.Equal(t, InProgress, v.State)
	assert.Equal(t, 0, s.delay.Len())

	playClean(t, s)
	require.NoError(t, s.Advance(context.Background()))
	assert.Equal(t, "b", s.View().LineID)
}

func TestRetryWaitsForMainQueue(t *testing.T) {
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2), dueLine("b", 2)}
	clock := &fakeClock{startTime}
	s := startSession(t, store, clock, 10)

	failCurrent(t, s)
	require.NoError(t, s.Advance(context.Background()))
	assert.Equal(t, "b", s.View().LineID, "a retry that is not ready waits behind untouched lines")
	assert.Equal(t, 1, s.View().Delayed)

	playClean(t, s)
	require.NoError(t, s.Advance(context.Background()))
	assert.Equal(t, "a", s.View().LineID, "with the main queue exhausted the pending retry is shown early")

	playClean(t, s)
	require.NoError(t, s.Advance(context.Background()))
	v := s.View()
	assert.True(t, v.Done)
	assert.ErrorIs(t, s.Advance(context.Background()), ErrSessionDone)
	_, err := s.Play(context.Background(), "e4")
	assert.ErrorIs(t, err, ErrSessionDone)
}

func TestAdvanceRequiresFinishedAttempt(t *testing.T) {
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	assert.ErrorIs(t, s.Advance(context.Background()), ErrAttemptInProgress)
	assert.ErrorIs(t, s.Repeat(context.Background()), ErrAttemptInProgress)
	assert.Empty(t, store.records)
}

func TestRepeatKeepsSavedFail(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2), dueLine("b", 2)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	failCurrent(t, s)
	require.Len(t, store.records, 1, "the mistake is saved before the line is finished")
	require.NoError(t, s.Repeat(ctx))

	v := s.View()
	assert.Equal(t, "a", v.LineID)
	assert.Equal(t, InProgress, v.State)
	assert.Empty(t, v.Played)
	assert.Zero(t, v.Mistakes)
	require.Len(t, store.records, 1)
	assert.Equal(t, domain.Fail, store.records[0].event.Result)
	assert.Equal(t, domain.StatusLearning, store.records[0].review.Status)
}

func TestRepeatRetriesFailedSave(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	store.recordErr = errors.New("connection reset")
	failCurrent(t, s)
	assert.False(t, s.View().Saved)

	err := s.Repeat(ctx)
	require.ErrorIs(t, err, store.recordErr)
	assert.Equal(t, FinishedDirty, s.View().State, "the failed attempt stays until it is saved")

	store.recordErr = nil
	require.NoError(t, s.Repeat(ctx))
	require.Len(t, store.records, 1)
	assert.Equal(t, domain.Fail, store.records[0].event.Result)
	assert.Equal(t, InProgress, s.View().State)
}

func TestFlushSavesUnfinishedFail(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 5)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	// A clean attempt in progress has nothing to save.
	require.NoError(t, s.Flush(ctx))
	assert.Empty(t, store.records)

	store.recordErr = errors.New("connection reset")
	m, err := s.Play(ctx, "Qh5")
	require.NoError(t, err)
	require.False(t, m.Correct)
	assert.Empty(t, store.records)

	store.recordErr = nil
	require.NoError(t, s.Flush(ctx))
	require.Len(t, store.records, 1)
	assert.Equal(t, domain.Fail, store.records[0].event.Result)
	assert.Equal(t, InProgress, s.View().State)
}

func TestPersistOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 3), dueLine("b", 3)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	playClean(t, s)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Flush(ctx))
	assert.True(t, s.View().Saved)
	require.NoError(t, s.Advance(ctx))

	require.Len(t, store.records, 1)
	r := store.records[0].review
	assert.Equal(t, domain.StatusReview, r.Status)
	require.NotNil(t, r.IntervalDays)
	assert.Equal(t, 6, *r.IntervalDays)
	assert.Equal(t, "2026-03-16", r.DueOn)
	assert.Equal(t, domain.Pass, store.records[0].event.Result)
	assert.Equal(t, "b", s.View().LineID)
}

func TestFailedSaveKeepsQueue(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 3), dueLine("b", 3)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	playClean(t, s)
	store.recordErr = errors.New("connection reset")
	err := s.Advance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.recordErr)

	v := s.View()
	assert.Equal(t, "a", v.LineID)
	assert.False(t, v.Saved)
	assert.Equal(t, FinishedClean, v.State)

	store.recordErr = nil
	require.NoError(t, s.Advance(ctx))
	require.Len(t, store.records, 1)
	assert.Equal(t, "b", s.View().LineID)
}

func TestFailurePersistsLearning(t *testing.T) {
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 5)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	failCurrent(t, s)
	require.NoError(t, s.Advance(context.Background()))

	require.Len(t, store.records, 1)
	r := store.records[0].review
	assert.Equal(t, domain.StatusLearning, r.Status)
	assert.Equal(t, 0, *r.IntervalDays)
	assert.Equal(t, today, r.DueOn)
	assert.Equal(t, domain.Fail, *r.LastResult)
	assert.Equal(t, domain.Fail, store.records[0].event.Result)

	// The failed line comes back as a retry.
	assert.Equal(t, "a", s.View().LineID)
}

func TestRecoveredRetryGetsShortInterval(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 5)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	failCurrent(t, s)
	require.NoError(t, s.Advance(ctx))
	playClean(t, s)
	require.NoError(t, s.Advance(ctx))

	require.Len(t, store.records, 2)
	r := store.records[1].review
	assert.Equal(t, domain.StatusReview, r.Status)
	assert.Equal(t, 2, *r.IntervalDays, "the recovery range tops out at 2")
}

func TestFlushDefersRecoveredRetry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 5)}
	store.fails["a"] = 1
	s := startSession(t, store, &fakeClock{startTime}, 10)

	playClean(t, s)
	require.NoError(t, s.Flush(ctx))
	assert.Empty(t, store.records, "flush waits for the learner's choice")

	require.NoError(t, s.Advance(ctx))
	require.Len(t, store.records, 1)
	assert.Contains(t, []int{1, 2}, *store.records[0].review.IntervalDays)
}

func TestNewLineConsumption(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.lines = []domain.DeckLine{newLine("n1"), newLine("n2"), newLine("n3")}
	s := startSession(t, store, &fakeClock{startTime}, 10)
	shown := func() []string { return store.marks[markKey(today, domain.MarkNewShown)] }

	// A mistake saves the attempt, which uses up a slot.
	m, err := s.Play(ctx, "e4")
	require.NoError(t, err)
	require.False(t, m.Correct)
	assert.Equal(t, []string{"n1"}, shown())
	assert.False(t, s.View().IsNew)

	playClean(t, s)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, []string{"n1"}, shown())

	// A clean new line counts once saved.
	require.Equal(t, "n2", s.View().LineID)
	assert.True(t, s.View().IsNew)
	playClean(t, s)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, []string{"n1", "n2"}, shown())
	assert.Equal(t, 4, *store.records[1].review.IntervalDays)
	assert.Equal(t, "2026-03-14", store.records[1].review.DueOn)

	// Removing a new line counts too.
	require.Equal(t, "n3", s.View().LineID)
	require.NoError(t, s.Remove(ctx))
	assert.Equal(t, []string{"n1", "n2", "n3"}, shown())
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2), dueLine("b", 2), dueLine("c", 2)}
	clock := &fakeClock{startTime}
	s := startSession(t, store, clock, 10)

	// a fails and waits for a retry, then gets removed when it comes back.
	failCurrent(t, s)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, "b", s.View().LineID)

	require.NoError(t, s.Remove(ctx))
	require.Len(t, store.upserts, 1)
	assert.Equal(t, domain.StatusRemoved, store.upserts[0].Status)
	assert.Equal(t, "b", store.upserts[0].LineID)
	assert.Empty(t, store.upserts[0].DueOn)
	assert.Nil(t, store.upserts[0].IntervalDays)
	assert.Equal(t, "c", s.View().LineID, "the line after the removed one becomes current")

	playClean(t, s)
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, "a", s.View().LineID)
	require.NoError(t, s.Remove(ctx))

	assert.True(t, s.View().Done)
	assert.Len(t, s.main, 1)
}

func TestRemovedLineIsNeverOfferedAgain(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2), dueLine("b", 2)}
	s := startSession(t, store, &fakeClock{startTime}, 10)

	failCurrent(t, s)
	require.NoError(t, s.Remove(ctx))
	assert.False(t, s.delay.Contains("a"))

	// A stale copy of the line surfacing later is skipped.
	s.mu.Lock()
	s.main = append(s.main, &Item{LineID: "a", Moves: []string{"e4"}})
	s.mu.Unlock()

	assert.Equal(t, "b", s.View().LineID)
	playClean(t, s)
	require.NoError(t, s.Advance(ctx))
	assert.True(t, s.View().Done)
}

func TestTrackTime(t *testing.T) {
	store := newMemStore()
	s := startSession(t, store, &fakeClock{startTime}, 10)

	require.NoError(t, s.TrackTime(context.Background(), 40))
	require.NoError(t, s.TrackTime(context.Background(), 0))
	assert.Equal(t, 40, store.seconds[today])
	assert.True(t, s.View().Done)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.due = []domain.DueLine{dueLine("a", 2), dueLine("b", 2)}
	m := NewManager(newDeps(store, &fakeClock{startTime}))

	_, err := m.Get(user)
	assert.ErrorIs(t, err, ErrNoSession)

	s, err := m.Start(ctx, user, 1, 10)
	require.NoError(t, err)
	got, err := m.Get(user)
	require.NoError(t, err)
	assert.Same(t, s, got)

	playClean(t, s)
	_, err = m.Start(ctx, user, 1, 10)
	require.NoError(t, err)
	assert.Len(t, store.records, 1, "starting again flushes the finished attempt")

	s, err = m.Get(user)
	require.NoError(t, err)
	playClean(t, s)
	require.NoError(t, m.Close(ctx))
	assert.Len(t, store.records, 2)

	_, err = m.Get(user)
	assert.ErrorIs(t, err, ErrNoSession)
}
