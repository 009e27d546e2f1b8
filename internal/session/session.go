// Package session runs one learner's drill sitting: it builds today's queue,
// steps through attempts and turns each finished attempt into a persisted
// scheduling decision.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/openingdrill/internal/daybound"
	"github.com/conorfennell/openingdrill/internal/domain"
	"github.com/conorfennell/openingdrill/internal/scheduler"
)

var (
	ErrNoSession         = errors.New("no drill session started")
	ErrSessionDone       = errors.New("no more lines today")
	ErrAttemptFinished   = errors.New("attempt already finished")
	ErrAttemptInProgress = errors.New("attempt not finished yet")
)

// DefaultDailyNewCap is how many new lines a learner sees per day unless configured otherwise.
const DefaultDailyNewCap = 10

// DefaultRetryDelay is how long a failed line waits before it is offered again.
const DefaultRetryDelay = 7 * time.Minute

// Store is the persistence a session needs.
type Store interface {
	DueReviews(ctx context.Context, userID string, deckID int64, today string) ([]domain.DueLine, error)
	DeckLines(ctx context.Context, userID string, deckID int64) ([]domain.DeckLine, error)
	UpsertReview(ctx context.Context, r domain.Review) error
	RecordAttempt(ctx context.Context, r domain.Review, e domain.ReviewEvent) error
	CountFailsSince(ctx context.Context, userID, lineID string, since time.Time) (int, error)
	DayMarks(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind) ([]string, error)
	AddDayMark(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind, lineID string) error
	ReplaceDayMarks(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind, lineIDs []string) error
	AddTimeSpent(ctx context.Context, userID, day string, seconds int) error
}

// Deps are the collaborators shared by sessions.
type Deps struct {
	Store      Store
	Clock      daybound.Clock
	Params     *scheduler.Params
	RetryDelay time.Duration
	Now        func() time.Time
	// Rand drives shuffling and interval draws. When nil each session gets its own source.
	Rand   scheduler.Rand
	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock.Location == nil {
		d.Clock = daybound.Clock{Location: time.Local, CutoverHour: daybound.DefaultCutoverHour}
	}
	if d.Params == nil {
		d.Params = scheduler.DefaultParams()
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = DefaultRetryDelay
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Session is one learner's sitting with one deck. All methods are safe for
// concurrent use; they are serialized by the session's mutex.
type Session struct {
	mu sync.Mutex

	deps   Deps
	log    *slog.Logger
	userID string
	deckID int64

	main     []*Item
	next     int // index of the next untouched item in main
	delay    *delayQueue
	current  *Item
	attempt  *Attempt
	removed  map[string]bool
	mistaken map[string]bool
	done     bool
}

// Start loads today's due and new lines for a deck and shows the first one.
func Start(ctx context.Context, deps Deps, userID string, deckID int64, newCap int) (*Session, error) {
	deps = deps.withDefaults()
	s := &Session{
		deps:     deps,
		log:      deps.Logger.With("user_id", userID, "deck_id", deckID),
		userID:   userID,
		deckID:   deckID,
		delay:    newDelayQueue(),
		removed:  make(map[string]bool),
		mistaken: make(map[string]bool),
	}

	today := deps.Clock.Day(deps.Now(), 0)

	var (
		due    []domain.DueLine
		lines  []domain.DeckLine
		shown  []string
		queued []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		due, err = deps.Store.DueReviews(gctx, userID, deckID, today)
		return err
	})
	g.Go(func() (err error) {
		lines, err = deps.Store.DeckLines(gctx, userID, deckID)
		return err
	})
	g.Go(func() (err error) {
		shown, err = deps.Store.DayMarks(gctx, userID, deckID, today, domain.MarkNewShown)
		return err
	})
	g.Go(func() (err error) {
		queued, err = deps.Store.DayMarks(gctx, userID, deckID, today, domain.MarkQueuedNew)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	recurring := make([]*Item, 0, len(due))
	for _, d := range due {
		recurring = append(recurring, newItem(d.Line, false, scheduler.ClampInterval(d.IntervalDays)))
	}
	shuffle(recurring, deps.Rand)

	fresh := s.drawNew(lines, shown, queued, newCap)
	ids := make([]string, 0, len(fresh))
	for _, it := range fresh {
		ids = append(ids, it.LineID)
	}
	if err := deps.Store.ReplaceDayMarks(ctx, userID, deckID, today, domain.MarkQueuedNew, ids); err != nil {
		s.log.Warn("Failed to record queued new lines", "error", err)
	}

	s.main = append(recurring, fresh...)
	s.log.Info("Session started", "due", len(recurring), "new", len(fresh), "new_shown_today", len(shown))

	s.pickNext(deps.Now())
	return s, nil
}

// drawNew picks today's new lines: those already queued earlier today come
// first, then the remaining unattempted lines shuffled, limited to the slots
// the daily cap has left.
func (s *Session) drawNew(lines []domain.DeckLine, shown, queued []string, newCap int) []*Item {
	slots := newCap - len(shown)
	if slots <= 0 {
		return nil
	}

	consumed := make(map[string]bool, len(shown))
	for _, id := range shown {
		consumed[id] = true
	}
	candidates := make(map[string]domain.Line)
	for _, l := range lines {
		if !l.HasReview && !consumed[l.Line.ID] {
			candidates[l.Line.ID] = l.Line
		}
	}

	var picked []*Item
	taken := make(map[string]bool)
	for _, id := range queued {
		if line, ok := candidates[id]; ok && !taken[id] {
			picked = append(picked, newItem(line, true, nil))
			taken[id] = true
		}
	}

	var rest []*Item
	for _, l := range lines {
		if _, ok := candidates[l.Line.ID]; ok && !taken[l.Line.ID] {
			rest = append(rest, newItem(l.Line, true, nil))
		}
	}
	shuffle(rest, s.deps.Rand)

	picked = append(picked, rest...)
	if len(picked) > slots {
		picked = picked[:slots]
	}
	return picked
}

func shuffle(items []*Item, r scheduler.Rand) {
	for i := len(items) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// pickNext chooses what to show after an attempt or a removal: a ready retry,
// else the next untouched line, else the soonest retry even if not ready yet.
func (s *Session) pickNext(now time.Time) {
	s.current = nil
	s.attempt = nil
	for {
		item := s.delay.PopReady(now)
		if item == nil && s.next < len(s.main) {
			item = s.main[s.next]
			s.next++
		}
		if item == nil {
			item = s.delay.PopEarliest()
		}
		if item == nil {
			s.done = true
			s.log.Info("Session complete")
			return
		}
		if s.removed[item.LineID] {
			continue
		}
		s.current = item
		s.attempt = newAttempt(item)
		return
	}
}

// active returns the current attempt or the error explaining why there is none.
func (s *Session) active() (*Attempt, error) {
	if s.done || s.attempt == nil {
		return nil, ErrSessionDone
	}
	return s.attempt, nil
}

// Play checks a learner move against the current line. The first mistake
// saves the attempt as failed straight away.
func (s *Session) Play(ctx context.Context, san string) (Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.active()
	if err != nil {
		return Move{}, err
	}
	firstMistake := a.mistakes == 0
	m, err := a.Play(san)
	if err != nil {
		return Move{}, err
	}
	if !m.Correct && firstMistake {
		s.fail(ctx, a)
	}
	return m, nil
}

// ShowSolution reveals the rest of the line; the attempt counts as failed and is saved.
func (s *Session) ShowSolution(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.active()
	if err != nil {
		return nil, err
	}
	alreadyFailed := !a.Clean()
	rest, err := a.ShowSolution()
	if err != nil {
		return nil, err
	}
	if !alreadyFailed {
		s.fail(ctx, a)
	}
	return rest, nil
}

// fail schedules the line for a same-day retry and saves the failed attempt.
// A failed save is retried by Repeat, Advance and Flush.
func (s *Session) fail(ctx context.Context, a *Attempt) {
	now := s.deps.Now()
	readyAt := now.Add(s.deps.RetryDelay)
	s.delay.Schedule(a.item, readyAt)
	s.mistaken[a.item.LineID] = true
	s.log.Debug("Line scheduled for retry", "line_id", a.item.LineID, "ready_at", readyAt)

	if err := s.persist(ctx, a, scheduler.NextOpening, now); err != nil {
		s.log.Warn("Failed to save failed attempt", "line_id", a.item.LineID, "error", err)
	}
}

// Repeat restarts the finished line from the first move. A failed attempt
// whose save did not go through is saved before it is replaced.
func (s *Session) Repeat(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.active()
	if err != nil {
		return err
	}
	if !a.finished {
		return ErrAttemptInProgress
	}
	if !a.Clean() {
		if err := s.persist(ctx, a, scheduler.NextOpening, s.deps.Now()); err != nil {
			return err
		}
	}
	s.attempt = newAttempt(a.item)
	return nil
}

// Advance saves the finished attempt, once, and moves on to the next line.
// When saving fails nothing else changes and Advance may be called again.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.active()
	if err != nil {
		return err
	}
	if !a.finished {
		return ErrAttemptInProgress
	}
	now := s.deps.Now()
	if err := s.persist(ctx, a, scheduler.NextOpening, now); err != nil {
		return err
	}
	s.pickNext(now)
	return nil
}

// Flush saves an unsaved attempt that is finished or already failed. A clean
// retry of a recurring line that already failed today is left for the
// learner's explicit choice.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.attempt
	if a == nil || a.saved || (!a.finished && a.Clean()) {
		return nil
	}
	now := s.deps.Now()
	if a.Clean() && !a.item.IsNew {
		prior, err := s.priorFailToday(ctx, a.item, now)
		if err != nil {
			return err
		}
		if prior {
			s.log.Debug("Deferring save until the learner chooses", "line_id", a.item.LineID)
			return nil
		}
	}
	return s.persist(ctx, a, scheduler.NextOpening, now)
}

func (s *Session) priorFailToday(ctx context.Context, item *Item, now time.Time) (bool, error) {
	if s.mistaken[item.LineID] {
		return true, nil
	}
	n, err := s.deps.Store.CountFailsSince(ctx, s.userID, item.LineID, s.deps.Clock.Start(now))
	if err != nil {
		return false, fmt.Errorf("failed to check earlier fails: %w", err)
	}
	return n > 0, nil
}

// persist writes the attempt's review and event. The decision is made once per
// attempt, and a saved attempt is never written again.
func (s *Session) persist(ctx context.Context, a *Attempt, choice scheduler.Choice, now time.Time) error {
	if a.saved {
		return nil
	}
	item := a.item

	if a.decision == nil {
		c := scheduler.Context{
			IsNew:               item.IsNew,
			HadMistakes:         a.mistakes > 0,
			ClickedShowSolution: a.showedSolution,
			WasRecurring:        item.IntervalDays != nil,
			IntervalDays:        item.IntervalDays,
			UserChoice:          choice,
		}
		if c.Inconsistent() {
			s.log.Warn("New flag disagrees with recorded interval, treating line by its new flag",
				"line_id", item.LineID, "is_new", item.IsNew)
			c.WasRecurring = !item.IsNew
		}
		if !c.IsNew && !c.Failed() && choice == scheduler.NextOpening {
			prior, err := s.priorFailToday(ctx, item, now)
			if err != nil {
				return err
			}
			c.HadPriorFailToday = prior
		}
		d := s.deps.Params.Decide(c, s.deps.Rand)
		a.decision = &d
	}

	d := *a.decision
	result := d.Result()
	interval := d.IntervalDays
	seenAt := now
	review := domain.Review{
		UserID:       s.userID,
		LineID:       item.LineID,
		Status:       d.Status,
		DueOn:        s.deps.Clock.Day(now, d.TodayOffset),
		IntervalDays: &interval,
		LastResult:   &result,
		LastSeenAt:   &seenAt,
	}
	event := domain.ReviewEvent{UserID: s.userID, LineID: item.LineID, Result: result, SeenAt: now}

	if err := s.deps.Store.RecordAttempt(ctx, review, event); err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	a.saved = true
	s.log.Info("Attempt saved", "line_id", item.LineID, "result", result, "status", d.Status,
		"interval_days", interval, "due_on", review.DueOn)

	wasNew := item.IsNew
	item.IsNew = false
	item.IntervalDays = &interval
	if wasNew {
		s.consume(ctx, item.LineID, now)
	}
	return nil
}

// consume counts a new line against today's cap.
func (s *Session) consume(ctx context.Context, lineID string, now time.Time) {
	day := s.deps.Clock.Day(now, 0)
	if err := s.deps.Store.AddDayMark(ctx, s.userID, s.deckID, day, domain.MarkNewShown, lineID); err != nil {
		s.log.Warn("Failed to count new line against the daily cap", "line_id", lineID, "error", err)
	}
}

// Remove retires the current line for good and shows the next one.
func (s *Session) Remove(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.active()
	if err != nil {
		return err
	}
	item := a.item
	now := s.deps.Now()

	seenAt := now
	err = s.deps.Store.UpsertReview(ctx, domain.Review{
		UserID:     s.userID,
		LineID:     item.LineID,
		Status:     domain.StatusRemoved,
		LastSeenAt: &seenAt,
	})
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}

	s.removed[item.LineID] = true
	s.delay.Remove(item.LineID)
	for i, it := range s.main {
		if it.LineID != item.LineID {
			continue
		}
		s.main = append(s.main[:i], s.main[i+1:]...)
		if i < s.next {
			s.next--
		}
		break
	}
	if item.IsNew {
		s.consume(ctx, item.LineID, now)
	}
	s.log.Info("Line removed", "line_id", item.LineID)

	s.pickNext(now)
	return nil
}

// TrackTime adds seconds to today's time spent.
func (s *Session) TrackTime(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return nil
	}
	day := s.deps.Clock.Day(s.deps.Now(), 0)
	if err := s.deps.Store.AddTimeSpent(ctx, s.userID, day, seconds); err != nil {
		return fmt.Errorf("failed to track time: %w", err)
	}
	return nil
}

// View is a snapshot of what the learner sees.
type View struct {
	Done           bool         `json:"done"`
	DeckID         int64        `json:"deck_id"`
	LineID         string       `json:"line_id,omitempty"`
	OpeningName    string       `json:"opening_name,omitempty"`
	LineName       string       `json:"line_name,omitempty"`
	Side           domain.Side  `json:"side,omitempty"`
	IsNew          bool         `json:"is_new"`
	Played         []string     `json:"played"`
	TotalMoves     int          `json:"total_moves"`
	State          AttemptState `json:"state,omitempty"`
	Mistakes       int          `json:"mistakes"`
	ShowedSolution bool         `json:"showed_solution"`
	Saved          bool         `json:"saved"`
	NewDue         int          `json:"new_due"`
	RecurringDue   int          `json:"recurring_due"`
	Delayed        int          `json:"delayed"`
}

// View returns the current state of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{DeckID: s.deckID, Done: s.done, Played: []string{}, Delayed: s.delay.Len()}

	pending := append([]*Item(nil), s.main[s.next:]...)
	pending = append(pending, s.delay.Items()...)
	if s.current != nil && !s.delay.Contains(s.current.LineID) {
		pending = append(pending, s.current)
	}
	for _, it := range pending {
		if s.removed[it.LineID] {
			continue
		}
		if it.IsNew {
			v.NewDue++
		} else {
			v.RecurringDue++
		}
	}

	if a := s.attempt; a != nil {
		v.LineID = a.item.LineID
		v.OpeningName = a.item.OpeningName
		v.LineName = a.item.LineName
		v.Side = a.item.Side
		v.IsNew = a.item.IsNew && !s.mistaken[a.item.LineID]
		v.Played = append(v.Played, a.Played()...)
		v.TotalMoves = len(a.item.Moves)
		v.State = a.State()
		v.Mistakes = a.mistakes
		v.ShowedSolution = a.showedSolution
		v.Saved = a.saved
	}
	return v
}

// UserID returns the learner the session belongs to.
func (s *Session) UserID() string {
	return s.userID
}
