// Package schedule resolves which occurrence of a recurring meeting falls
// in the current week. Everything here is a pure function of its inputs:
// no I/O, no logging, no clock reads.
package schedule

import (
	"time"

	"nextmeet/internal/model"
)

// DateLayout is the calendar-date form used for window bounds in messages.
const DateLayout = "2006-01-02"

// WeekWindow returns the UTC week containing ref: Start is the most recent
// Sunday 00:00:00 UTC (ref's own day if ref is a Sunday) and End is Start
// plus 7 days.
//
// Day arithmetic goes through time.Date, which normalizes a negative or
// overflowing day-of-month into the neighbouring month or year.
func WeekWindow(ref time.Time) model.Window {
	ref = ref.UTC()
	start := time.Date(ref.Year(), ref.Month(), ref.Day()-int(ref.Weekday()), 0, 0, 0, 0, time.UTC)
	return model.Window{
		Start: start,
		End:   start.AddDate(0, 0, 7),
	}
}
