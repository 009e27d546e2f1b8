package session

import (
	"github.com/conorfennell/openingdrill/internal/domain"
	"github.com/conorfennell/openingdrill/internal/scheduler"
)

// Item is one queued line of a session.
type Item struct {
	LineID       string
	Moves        []string
	IsNew        bool
	IntervalDays *int
	OpeningName  string
	LineName     string
	Side         domain.Side
}

func newItem(line domain.Line, isNew bool, interval *int) *Item {
	return &Item{
		LineID:       line.ID,
		Moves:        line.Moves,
		IsNew:        isNew,
		IntervalDays: interval,
		OpeningName:  line.Opening.Name,
		LineName:     line.Name,
		Side:         line.Opening.Side,
	}
}

// AttemptState is where an attempt is in its lifecycle.
type AttemptState string

const (
	InProgress    AttemptState = "in_progress"
	FinishedClean AttemptState = "finished_clean"
	FinishedDirty AttemptState = "finished_dirty"
)

// Move reports the outcome of one played move.
type Move struct {
	Correct  bool   `json:"correct"`
	Reply    string `json:"reply,omitempty"`
	Finished bool   `json:"finished"`
}

// Attempt is one run through a line, from the first move to the last.
type Attempt struct {
	item           *Item
	ply            int
	mistakes       int
	showedSolution bool
	finished       bool

	decision *scheduler.Decision
	saved    bool
}

func newAttempt(item *Item) *Attempt {
	a := &Attempt{item: item}
	a.autoPlay()
	return a
}

// playerTurn reports whether the move at the current ply is the learner's.
func (a *Attempt) playerTurn() bool {
	return (a.ply%2 == 0) == (a.item.Side != domain.Black)
}

// autoPlay plays opponent moves until it is the learner's turn or the line ends.
func (a *Attempt) autoPlay() string {
	var reply string
	for a.ply < len(a.item.Moves) && !a.playerTurn() {
		reply = a.item.Moves[a.ply]
		a.ply++
	}
	if a.ply >= len(a.item.Moves) {
		a.finished = true
	}
	return reply
}

// Play checks a learner move against the line. A wrong move leaves the ply unchanged.
func (a *Attempt) Play(san string) (Move, error) {
	if a.finished {
		return Move{}, ErrAttemptFinished
	}
	if san != a.item.Moves[a.ply] {
		a.mistakes++
		return Move{Correct: false}, nil
	}
	a.ply++
	reply := a.autoPlay()
	return Move{Correct: true, Reply: reply, Finished: a.finished}, nil
}

// ShowSolution reveals the rest of the line and finishes the attempt dirty.
func (a *Attempt) ShowSolution() ([]string, error) {
	if a.finished {
		return nil, ErrAttemptFinished
	}
	rest := append([]string(nil), a.item.Moves[a.ply:]...)
	a.showedSolution = true
	a.ply = len(a.item.Moves)
	a.finished = true
	return rest, nil
}

// State returns the attempt's lifecycle state.
func (a *Attempt) State() AttemptState {
	switch {
	case !a.finished:
		return InProgress
	case a.mistakes > 0 || a.showedSolution:
		return FinishedDirty
	default:
		return FinishedClean
	}
}

// Clean reports whether the attempt had neither a mistake nor a revealed solution.
func (a *Attempt) Clean() bool {
	return a.mistakes == 0 && !a.showedSolution
}

// Played returns the moves on the board so far.
func (a *Attempt) Played() []string {
	return a.item.Moves[:a.ply]
}
