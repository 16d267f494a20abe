package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"nextmeet/internal/model"
)

// ParseRule parses an RRULE value (without the "RRULE:" prefix) into a
// model.Rule. Floating UNTIL values are read in loc; nil means UTC.
func ParseRule(raw string, loc *time.Location) (*model.Rule, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:"))
	if raw == "" {
		return nil, errors.New("empty RRULE")
	}
	if loc == nil {
		loc = time.UTC
	}

	opt, err := rrule.StrToROptionInLocation(raw, loc)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", raw, err)
	}

	freq, err := frequency(opt.Freq)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", raw, err)
	}

	r := &model.Rule{
		Frequency:  freq,
		Interval:   opt.Interval,
		Count:      opt.Count,
		Until:      opt.Until,
		ByMonthDay: opt.Bymonthday,
		ByMonth:    opt.Bymonth,
		ByYearDay:  opt.Byyearday,
		ByWeekNo:   opt.Byweekno,
		ByHour:     opt.Byhour,
		ByMinute:   opt.Byminute,
		BySecond:   opt.Bysecond,
		BySetPos:   opt.Bysetpos,
		Raw:        raw,
	}
	for _, wd := range opt.Byweekday {
		r.ByWeekday = append(r.ByWeekday, model.WeekdayNum{Day: stdWeekday(wd), N: wd.N()})
	}
	if strings.Contains(strings.ToUpper(raw), "WKST=") {
		ws := stdWeekday(opt.Wkst)
		r.WeekStart = &ws
	}
	return r, nil
}

func frequency(f rrule.Frequency) (model.Frequency, error) {
	switch f {
	case rrule.YEARLY:
		return model.Yearly, nil
	case rrule.MONTHLY:
		return model.Monthly, nil
	case rrule.WEEKLY:
		return model.Weekly, nil
	case rrule.DAILY:
		return model.Daily, nil
	case rrule.HOURLY:
		return model.Hourly, nil
	case rrule.MINUTELY:
		return model.Minutely, nil
	case rrule.SECONDLY:
		return model.Secondly, nil
	default:
		return 0, fmt.Errorf("unknown FREQ %v", f)
	}
}

// stdWeekday maps rrule's Monday-based day index onto time.Weekday.
func stdWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}
