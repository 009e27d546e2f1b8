package domain

import "time"

// Side is the colour the learner plays in an opening.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Deck is a named collection of openings studied together.
type Deck struct {
	ID   int64
	Name string
}

// Opening groups lines that share a side to play.
type Opening struct {
	ID     int64
	DeckID int64
	Name   string
	Side   Side
}

// Line is one scripted move sequence the learner reproduces from memory.
// Moves are in SAN, starting with White's first move.
type Line struct {
	ID        string
	OpeningID int64
	Name      string
	Moves     []string
	Active    bool
	CreatedAt time.Time
	Opening   Opening
}

// Status is the scheduling status of a review row.
type Status string

const (
	StatusLearning Status = "learning"
	StatusReview   Status = "review"
	StatusRemoved  Status = "removed"
)

// Result is the outcome of a single attempt.
type Result string

const (
	Pass Result = "pass"
	Fail Result = "fail"
)

// Review is the durable per-user, per-line scheduling record.
// A line without a review row is new for that user.
type Review struct {
	UserID       string
	LineID       string
	Status       Status
	DueOn        string // YYYY-MM-DD on the shifted local day, empty when removed
	IntervalDays *int
	LastResult   *Result
	LastSeenAt   *time.Time
}

// ReviewEvent records a single attempt outcome. Events are never updated.
type ReviewEvent struct {
	ID     string
	UserID string
	LineID string
	Result Result
	SeenAt time.Time
}

// DueLine is a line whose review is due, with the interval it was last given.
type DueLine struct {
	Line         Line
	IntervalDays *int
}

// DeckLine is a line of a deck annotated with whether the user has a review row for it.
type DeckLine struct {
	Line      Line
	HasReview bool
}

// Settings holds per-user drill preferences.
type Settings struct {
	UserID        string
	CurrentDeckID *int64
	DailyNewCap   *int
}

// DayMarkKind names a per-day list kept for a user and deck.
type DayMarkKind string

const (
	// MarkNewShown lists new lines counted against the daily cap.
	MarkNewShown DayMarkKind = "new_shown"
	// MarkQueuedNew lists, in order, the new lines drawn into today's queue.
	MarkQueuedNew DayMarkKind = "queued_new"
)
