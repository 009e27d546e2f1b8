package scheduler

import "github.com/conorfennell/openingdrill/internal/domain"

// Choice is the explicit action the learner took after finishing a line.
type Choice string

const (
	NoChoice    Choice = ""
	RepeatAgain Choice = "repeat_again"
	NextOpening Choice = "next_opening"
)

// Rand is the source of the randomized intervals. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Params holds the interval bounds used by Decide.
type Params struct {
	FirstMin        int // new line, clean first attempt
	FirstMax        int
	RecoveryMin     int // recurring line recovered after failing earlier today
	RecoveryMax     int
	MinInterval     int // floor for doubled intervals
	DefaultInterval int // prior interval assumed when none is recorded
}

// DefaultParams provides the intervals the drill has always used.
func DefaultParams() *Params {
	return &Params{
		FirstMin:        1,
		FirstMax:        4,
		RecoveryMin:     1,
		RecoveryMax:     2,
		MinInterval:     2,
		DefaultInterval: 2,
	}
}

// Context describes one finished attempt and the line's prior review state.
type Context struct {
	IsNew               bool
	HadMistakes         bool
	ClickedShowSolution bool
	WasRecurring        bool
	IntervalDays        *int
	UserChoice          Choice
	HadPriorFailToday   bool
}

// Failed reports whether the attempt needed a mistake or the solution.
func (c Context) Failed() bool {
	return c.HadMistakes || c.ClickedShowSolution
}

// Inconsistent reports whether IsNew and WasRecurring disagree.
// IsNew is authoritative; callers log the disagreement.
func (c Context) Inconsistent() bool {
	return c.IsNew == c.WasRecurring
}

// Decision is the next review state for a line.
type Decision struct {
	ReinsertToday bool
	Status        domain.Status
	IntervalDays  int
	TodayOffset   int
}

// Result is the attempt outcome recorded alongside the decision.
func (d Decision) Result() domain.Result {
	if d.ReinsertToday {
		return domain.Fail
	}
	return domain.Pass
}

// Decide returns the next review state for a finished attempt.
func (p *Params) Decide(c Context, r Rand) Decision {
	if c.Failed() {
		return Decision{ReinsertToday: true, Status: domain.StatusLearning}
	}

	if c.IsNew {
		n := between(r, p.FirstMin, p.FirstMax)
		return forward(n)
	}

	if c.HadPriorFailToday && c.UserChoice == NextOpening {
		n := between(r, p.RecoveryMin, p.RecoveryMax)
		return forward(n)
	}

	prior := p.DefaultInterval
	if c.IntervalDays != nil {
		prior = *c.IntervalDays
	}
	return forward(max(p.MinInterval, prior*2))
}

// ClampInterval returns a copy of days with negative values raised to zero.
func ClampInterval(days *int) *int {
	if days == nil {
		return nil
	}
	v := max(0, *days)
	return &v
}

func forward(n int) Decision {
	return Decision{Status: domain.StatusReview, IntervalDays: n, TodayOffset: n}
}

// between draws uniformly from the closed range [lo, hi].
func between(r Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}
