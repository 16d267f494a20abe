package model

import "time"

// Frequency is the FREQ part of a recurrence rule. The zero value means
// "unset" and is rejected by the resolver.
type Frequency int

const (
	Yearly Frequency = iota + 1
	Monthly
	Weekly
	Daily
	Hourly
	Minutely
	Secondly
)

func (f Frequency) String() string {
	switch f {
	case Yearly:
		return "YEARLY"
	case Monthly:
		return "MONTHLY"
	case Weekly:
		return "WEEKLY"
	case Daily:
		return "DAILY"
	case Hourly:
		return "HOURLY"
	case Minutely:
		return "MINUTELY"
	case Secondly:
		return "SECONDLY"
	default:
		return "UNSET"
	}
}

// WeekdayNum is a BYDAY entry such as "TU" (N == 0) or "-1FR" (last Friday).
type WeekdayNum struct {
	Day time.Weekday
	N   int
}

// Rule is a structured RFC 5545 recurrence rule.
type Rule struct {
	Frequency Frequency
	// Interval <= 0 is treated as 1.
	Interval int

	// Count and Until bound the series. Zero values mean unbounded.
	Count int
	Until time.Time

	ByWeekday  []WeekdayNum
	ByMonthDay []int
	ByMonth    []int
	ByYearDay  []int
	ByWeekNo   []int
	ByHour     []int
	ByMinute   []int
	BySecond   []int
	BySetPos   []int

	// WeekStart is WKST. nil means the RFC 5545 default (Monday).
	WeekStart *time.Weekday

	// TZID is the timezone identifier carried with the rule, used when the
	// owning event does not declare one.
	TZID string

	// Raw is the original RRULE text, if the rule was parsed from a feed.
	Raw string
}

// CalendarEvent is a single VEVENT as delivered by the feed loader.
// Events are read-only for the resolver.
type CalendarEvent struct {
	UID string

	Summary     string
	Description string

	// Start is DTSTART; it anchors the recurrence rule.
	Start time.Time

	// Timezone is the event's declared TZID. Empty means "use the rule's
	// TZID, else UTC".
	Timezone string

	// Rule is nil for one-off events.
	Rule *Rule

	ExDates []time.Time
}

// Recurring reports whether the event carries a recurrence rule.
func (e CalendarEvent) Recurring() bool {
	return e.Rule != nil
}

// MeetingIdentity selects the meeting series for a group.
type MeetingIdentity struct {
	GroupName      string
	CalendarFilter string
}

// Window is a half-open UTC interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Occurrence is a single resolved instant of a recurring event.
type Occurrence struct {
	// Start is always UTC.
	Start time.Time

	UID     string
	Summary string
}
