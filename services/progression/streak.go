package progression

import (
	"time"

	"progression-engine/pkg/errutil"
)

var ErrAlreadyCompletedToday = errutil.Conflict("habit already completed today", nil,
	errutil.WithReason(errutil.ReasonHabitAlreadyCompleted))

// NextStreak computes the streak after a completion on today. last is the civil
// day of the previous completion or freeze bridge, nil when there is none, and
// both days come from Calendar.Day.
//
// A freeze applied today already bridged the missed day, so a completion on
// the same day continues the streak instead of being rejected.
func NextStreak(previous int, last *time.Time, today time.Time, freezeApplied bool) (int, error) {
	if last == nil || last.IsZero() {
		return 1, nil
	}

	gap := DaysBetween(*last, today)
	switch {
	case gap <= 0 && freezeApplied:
		return previous + 1, nil
	case gap <= 0:
		return 0, ErrAlreadyCompletedToday
	case gap == 1:
		return previous + 1, nil
	default:
		return 1, nil
	}
}
