package progression

import (
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/config"
)

const DayLayout = "2006-01-02"

// Calendar computes day buckets in one reference location. A Day is the
// civil date at 00:00 UTC, so subtracting two Days counts whole days exactly
// regardless of DST in the reference location.
type Calendar struct {
	loc   *time.Location
	clock clock.Clock
}

func NewCalendar(loc *time.Location, c clock.Clock) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &Calendar{loc: loc, clock: c}
}

// ProvideCalendar wires the calendar to PLATFORM.TIMEZONE.
func ProvideCalendar(cfg *config.Config, c clock.Clock) *Calendar {
	return NewCalendar(cfg.Location(), c)
}

func (c *Calendar) Location() *time.Location { return c.loc }

func (c *Calendar) Now() time.Time { return c.clock.Now() }

// Day maps an instant to its civil date in the reference location.
func (c *Calendar) Day(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func (c *Calendar) Today() time.Time {
	return c.Day(c.clock.Now())
}

// Key formats the civil date of the instant t, e.g. "2025-03-09". Values that
// are already a Day format directly with DayLayout.
func (c *Calendar) Key(t time.Time) string {
	return c.Day(t).Format(DayLayout)
}

func (c *Calendar) TodayKey() string {
	return c.Key(c.clock.Now())
}

// NextMidnight is the next day boundary after now in the reference location.
func (c *Calendar) NextMidnight() time.Time {
	local := c.clock.Now().In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.loc)
}

// AsDay restores a stored Day. Drivers may hand it back in another zone, the
// instant is unchanged so the UTC date is the civil date.
func AsDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts civil days from a to b; both must come from Day or AsDay.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
