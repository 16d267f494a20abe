package schedule

import (
	"strings"

	"nextmeet/internal/model"
)

// Matches reports whether ev is a candidate for the given calendar filter:
// it must be recurring and its summary or description must contain filter
// (case-sensitive). An event with neither field never matches.
func Matches(ev model.CalendarEvent, filter string) bool {
	if !ev.Recurring() {
		return false
	}
	if ev.Summary != "" && strings.Contains(ev.Summary, filter) {
		return true
	}
	return ev.Description != "" && strings.Contains(ev.Description, filter)
}

// Candidates returns the events that match filter, preserving input order.
func Candidates(events []model.CalendarEvent, filter string) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	for _, ev := range events {
		if Matches(ev, filter) {
			out = append(out, ev)
		}
	}
	return out
}

// Resolve returns the occurrence of the identity's meeting inside w.
//
// Candidates are examined in input order and the first one with at least
// one occurrence in the window wins; its earliest occurrence is returned
// and later candidates are not looked at, even if one of them would fire
// earlier in the week. When several series match the same filter, input
// order therefore decides which one is reported.
//
// It returns *NoMatchError when no candidate fires inside w (including
// when nothing matches the filter), and *InvalidRuleError as soon as a
// candidate's rule cannot be evaluated.
func Resolve(events []model.CalendarEvent, identity model.MeetingIdentity, w model.Window) (model.Occurrence, error) {
	for _, ev := range Candidates(events, identity.CalendarFilter) {
		times, err := Expand(ev, w)
		if err != nil {
			return model.Occurrence{}, err
		}
		if len(times) == 0 {
			continue
		}
		return model.Occurrence{
			Start:   times[0],
			UID:     ev.UID,
			Summary: ev.Summary,
		}, nil
	}

	return model.Occurrence{}, &NoMatchError{
		Group:       identity.GroupName,
		WindowStart: w.Start.Format(DateLayout),
		WindowEnd:   w.End.Format(DateLayout),
	}
}
