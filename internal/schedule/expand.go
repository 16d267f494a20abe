package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"nextmeet/internal/model"
)

// maxOccurrencesPerWindow caps how many instants Expand returns for one
// event. Only sub-hourly rules can reach it inside a week.
const maxOccurrencesPerWindow = 5000

var errMissingStart = errors.New("missing DTSTART")

// Expand returns the occurrences of ev that fall in [w.Start, w.End), in
// ascending order and converted to UTC. Events without a rule yield nil.
//
// The rule is evaluated in the event's own timezone (Timezone, then the
// rule's TZID, then the location DTSTART already carries), so BYDAY and
// week/month boundaries follow that zone's wall clock across DST changes
// even though the window itself is UTC. Only the part of the series up to
// w.End is generated; unbounded rules are never enumerated to completion.
func Expand(ev model.CalendarEvent, w model.Window) ([]time.Time, error) {
	if ev.Rule == nil {
		return nil, nil
	}

	set, loc, err := buildSet(ev)
	if err != nil {
		return nil, err
	}

	// Between is inclusive on both ends here; the window is half-open, so
	// an instant equal to w.End is dropped below.
	times := set.Between(w.Start.In(loc), w.End.In(loc), true)

	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		if !w.Contains(t) {
			continue
		}
		out = append(out, t.UTC())
		if len(out) == maxOccurrencesPerWindow {
			break
		}
	}
	return out, nil
}

// Contains reports whether t is a member of ev's occurrence set, honoring
// EXDATEs. A non-recurring event has no occurrence set and never contains t.
func Contains(ev model.CalendarEvent, t time.Time) (bool, error) {
	if ev.Rule == nil {
		return false, nil
	}

	set, loc, err := buildSet(ev)
	if err != nil {
		return false, err
	}

	at := t.In(loc)
	return len(set.Between(at, at, true)) > 0, nil
}

// buildSet turns ev into an rrule.Set anchored at DTSTART in the event's
// location. Any failure is reported as *InvalidRuleError.
func buildSet(ev model.CalendarEvent) (*rrule.Set, *time.Location, error) {
	loc, err := eventLocation(ev)
	if err != nil {
		return nil, nil, invalidRule(ev, err)
	}
	if ev.Start.IsZero() {
		return nil, nil, invalidRule(ev, errMissingStart)
	}

	opt, err := ruleOption(ev.Rule, ev.Start.In(loc))
	if err != nil {
		return nil, nil, invalidRule(ev, err)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, nil, invalidRule(ev, err)
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(loc))
	}
	return set, loc, nil
}

func eventLocation(ev model.CalendarEvent) (*time.Location, error) {
	tzid := ev.Timezone
	if tzid == "" {
		tzid = ev.Rule.TZID
	}
	if tzid == "" {
		return ev.Start.Location(), nil
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tzid, err)
	}
	return loc, nil
}

func ruleOption(r *model.Rule, dtstart time.Time) (rrule.ROption, error) {
	freq, err := frequency(r.Frequency)
	if err != nil {
		if r.Raw != "" {
			return rrule.ROption{}, fmt.Errorf("%w in RRULE %q", err, r.Raw)
		}
		return rrule.ROption{}, err
	}
	if r.Interval < 0 {
		return rrule.ROption{}, fmt.Errorf("negative INTERVAL %d", r.Interval)
	}
	if r.Count < 0 {
		return rrule.ROption{}, fmt.Errorf("negative COUNT %d", r.Count)
	}

	opt := rrule.ROption{
		Freq:       freq,
		Dtstart:    dtstart,
		Interval:   r.Interval,
		Count:      r.Count,
		Bymonthday: r.ByMonthDay,
		Bymonth:    r.ByMonth,
		Byyearday:  r.ByYearDay,
		Byweekno:   r.ByWeekNo,
		Byhour:     r.ByHour,
		Byminute:   r.ByMinute,
		Bysecond:   r.BySecond,
		Bysetpos:   r.BySetPos,
		Wkst:       rrule.MO,
	}
	if !r.Until.IsZero() {
		opt.Until = r.Until.In(dtstart.Location())
	}
	if r.WeekStart != nil {
		opt.Wkst = weekday(*r.WeekStart, 0)
	}
	for _, wd := range r.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, weekday(wd.Day, wd.N))
	}
	return opt, nil
}

func frequency(f model.Frequency) (rrule.Frequency, error) {
	switch f {
	case model.Yearly:
		return rrule.YEARLY, nil
	case model.Monthly:
		return rrule.MONTHLY, nil
	case model.Weekly:
		return rrule.WEEKLY, nil
	case model.Daily:
		return rrule.DAILY, nil
	case model.Hourly:
		return rrule.HOURLY, nil
	case model.Minutely:
		return rrule.MINUTELY, nil
	case model.Secondly:
		return rrule.SECONDLY, nil
	default:
		return 0, fmt.Errorf("unsupported FREQ %s", f)
	}
}

func weekday(d time.Weekday, n int) rrule.Weekday {
	var wd rrule.Weekday
	switch d {
	case time.Monday:
		wd = rrule.MO
	case time.Tuesday:
		wd = rrule.TU
	case time.Wednesday:
		wd = rrule.WE
	case time.Thursday:
		wd = rrule.TH
	case time.Friday:
		wd = rrule.FR
	case time.Saturday:
		wd = rrule.SA
	default:
		wd = rrule.SU
	}
	if n != 0 {
		return wd.Nth(n)
	}
	return wd
}

func invalidRule(ev model.CalendarEvent, err error) *InvalidRuleError {
	return &InvalidRuleError{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Err:         err,
	}
}
