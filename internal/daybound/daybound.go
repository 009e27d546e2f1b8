// Package daybound computes the learner's "today".
//
// A drill day runs from the cutover hour (03:00 by default) to the same hour on
// the next calendar day in the learner's time zone. Due dates, new-line caps,
// fail lookback and time-spent buckets all use the same Clock so that they agree
// on which day an instant belongs to.
package daybound

import (
	"fmt"
	"time"
)

// DefaultCutoverHour is the local hour at which a new drill day starts.
const DefaultCutoverHour = 3

const layout = "2006-01-02"

// Clock maps instants onto drill days.
type Clock struct {
	Location    *time.Location
	CutoverHour int
}

// New returns a Clock for the named IANA zone. "" and "Local" mean the process zone.
func New(tz string, cutoverHour int) (Clock, error) {
	if cutoverHour < 0 || cutoverHour > 23 {
		return Clock{}, fmt.Errorf("invalid cutover hour %d", cutoverHour)
	}
	loc := time.Local
	if tz != "" && tz != "Local" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Clock{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		loc = l
	}
	return Clock{Location: loc, CutoverHour: cutoverHour}, nil
}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// date returns the local calendar date of the drill day containing t. The
// cutover compares wall-clock hours, so DST changes do not move it.
func (c Clock) date(t time.Time) (int, time.Month, int) {
	local := t.In(c.loc())
	y, m, d := local.Date()
	if local.Hour() < c.CutoverHour {
		d--
	}
	return y, m, d
}

// Day returns the YYYY-MM-DD drill day of t, moved by offsetDays.
func (c Clock) Day(t time.Time, offsetDays int) string {
	y, m, d := c.date(t)
	return time.Date(y, m, d+offsetDays, 12, 0, 0, 0, c.loc()).Format(layout)
}

// Start returns the instant the drill day containing t began.
func (c Clock) Start(t time.Time) time.Time {
	y, m, d := c.date(t)
	return time.Date(y, m, d, c.CutoverHour, 0, 0, 0, c.loc())
}
