package schedule_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"nextmeet/internal/model"
	"nextmeet/internal/schedule"
)

// Week of Sunday 2024-05-12 .. Sunday 2024-05-19 (exclusive).
var testWeek = schedule.WeekWindow(time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %q: %v", name, err)
	}
	return loc
}

func weekly(days ...time.Weekday) *model.Rule {
	r := &model.Rule{Frequency: model.Weekly}
	for _, d := range days {
		r.ByWeekday = append(r.ByWeekday, model.WeekdayNum{Day: d})
	}
	return r
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestResolve(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	tokyo := mustLoad(t, "Asia/Tokyo")

	tests := []struct {
		name    string
		events  []model.CalendarEvent
		filter  string
		want    time.Time
		wantUID string
		noMatch bool
		badRule bool
	}{
		{
			// DTSTART in EST (20:00Z); the May occurrence keeps 15:00 wall
			// clock under EDT, i.e. 19:00Z.
			name: "weekly rule keeps wall clock across DST",
			events: []model.CalendarEvent{{
				UID:      "sync",
				Summary:  "Weekly Sync",
				Start:    time.Date(2024, 1, 4, 15, 0, 0, 0, ny),
				Timezone: "America/New_York",
				Rule:     weekly(),
			}},
			filter:  "Sync",
			want:    utc(2024, 5, 16, 19, 0),
			wantUID: "sync",
		},
		{
			name: "filter is case-sensitive",
			events: []model.CalendarEvent{{
				Summary: "Weekly Sync",
				Start:   utc(2024, 1, 4, 15, 0),
				Rule:    weekly(),
			}},
			filter:  "sync",
			noMatch: true,
		},
		{
			name: "description match without summary",
			events: []model.CalendarEvent{{
				UID:         "tsc",
				Description: "TSC meeting, agenda in the repo",
				Start:       utc(2024, 1, 4, 15, 0),
				Rule:        weekly(),
			}},
			filter:  "TSC",
			want:    utc(2024, 5, 16, 15, 0),
			wantUID: "tsc",
		},
		{
			name: "description match when summary does not contain filter",
			events: []model.CalendarEvent{{
				UID:         "tsc",
				Summary:     "Node.js",
				Description: "TSC meeting",
				Start:       utc(2024, 1, 4, 15, 0),
				Rule:        weekly(),
			}},
			filter:  "TSC",
			want:    utc(2024, 5, 16, 15, 0),
			wantUID: "tsc",
		},
		{
			name: "event with neither summary nor description never matches",
			events: []model.CalendarEvent{{
				Start: utc(2024, 1, 4, 15, 0),
				Rule:  weekly(),
			}},
			filter:  "",
			noMatch: true,
		},
		{
			name: "one-off event is never returned",
			events: []model.CalendarEvent{{
				Summary: "Weekly Sync",
				Start:   utc(2024, 5, 16, 15, 0),
			}},
			filter:  "Sync",
			noMatch: true,
		},
		{
			name: "first matching candidate wins over an earlier occurrence",
			events: []model.CalendarEvent{
				{UID: "friday", Summary: "Sync A", Start: utc(2024, 1, 5, 9, 0), Rule: weekly()},
				{UID: "monday", Summary: "Sync B", Start: utc(2024, 1, 1, 9, 0), Rule: weekly()},
			},
			filter:  "Sync",
			want:    utc(2024, 5, 17, 9, 0),
			wantUID: "friday",
		},
		{
			name: "candidate with no occurrence this week is skipped",
			events: []model.CalendarEvent{
				{UID: "off-week", Summary: "Sync A", Start: utc(2024, 5, 9, 9, 0), Rule: &model.Rule{Frequency: model.Weekly, Interval: 2}},
				{UID: "on-week", Summary: "Sync B", Start: utc(2024, 5, 2, 9, 0), Rule: &model.Rule{Frequency: model.Weekly, Interval: 2}},
			},
			filter:  "Sync",
			want:    utc(2024, 5, 16, 9, 0),
			wantUID: "on-week",
		},
		{
			name: "earliest occurrence of a multi-day rule",
			events: []model.CalendarEvent{{
				UID:     "standup",
				Summary: "Standup",
				Start:   utc(2024, 1, 1, 8, 0),
				Rule:    weekly(time.Friday, time.Tuesday, time.Monday),
			}},
			filter:  "Standup",
			want:    utc(2024, 5, 13, 8, 0),
			wantUID: "standup",
		},
		{
			name: "monthly third Thursday",
			events: []model.CalendarEvent{{
				UID:     "monthly",
				Summary: "Release WG",
				Start:   utc(2024, 1, 18, 17, 0),
				Rule: &model.Rule{
					Frequency: model.Monthly,
					ByWeekday: []model.WeekdayNum{{Day: time.Thursday, N: 3}},
				},
			}},
			filter:  "Release",
			want:    utc(2024, 5, 16, 17, 0),
			wantUID: "monthly",
		},
		{
			// Monday 08:00 in Tokyo is Sunday 23:00 UTC, so the Monday
			// meeting lands on the window's first UTC day.
			name: "weekday evaluated in the event timezone",
			events: []model.CalendarEvent{{
				UID:      "tokyo",
				Summary:  "APAC Sync",
				Start:    time.Date(2024, 1, 8, 8, 0, 0, 0, tokyo),
				Timezone: "Asia/Tokyo",
				Rule:     weekly(time.Monday),
			}},
			filter:  "APAC",
			want:    utc(2024, 5, 12, 23, 0),
			wantUID: "tokyo",
		},
		{
			name: "rule TZID used when the event declares none",
			events: []model.CalendarEvent{{
				UID:     "rule-tz",
				Summary: "APAC Sync",
				Start:   time.Date(2024, 1, 8, 8, 0, 0, 0, tokyo),
				Rule:    &model.Rule{Frequency: model.Weekly, TZID: "Asia/Tokyo"},
			}},
			filter:  "APAC",
			want:    utc(2024, 5, 12, 23, 0),
			wantUID: "rule-tz",
		},
		{
			name: "occurrence at window start is included",
			events: []model.CalendarEvent{{
				UID:     "edge",
				Summary: "Sync",
				Start:   utc(2024, 4, 14, 0, 0),
				Rule:    weekly(),
			}},
			filter:  "Sync",
			want:    testWeek.Start,
			wantUID: "edge",
		},
		{
			name: "occurrence at window end is excluded",
			events: []model.CalendarEvent{{
				Summary: "Sync",
				Start:   utc(2024, 5, 19, 0, 0),
				Rule:    &model.Rule{Frequency: model.Daily},
			}},
			filter:  "Sync",
			noMatch: true,
		},
		{
			name: "UNTIL before the window",
			events: []model.CalendarEvent{{
				Summary: "Sync",
				Start:   utc(2024, 1, 4, 15, 0),
				Rule:    &model.Rule{Frequency: model.Weekly, Until: utc(2024, 5, 1, 0, 0)},
			}},
			filter:  "Sync",
			noMatch: true,
		},
		{
			name: "COUNT exhausted before the window",
			events: []model.CalendarEvent{{
				Summary: "Sync",
				Start:   utc(2024, 1, 4, 15, 0),
				Rule:    &model.Rule{Frequency: model.Weekly, Count: 3},
			}},
			filter:  "Sync",
			noMatch: true,
		},
		{
			name: "EXDATE removes the only occurrence in the window",
			events: []model.CalendarEvent{{
				Summary: "Sync",
				Start:   utc(2024, 1, 4, 15, 0),
				Rule:    weekly(),
				ExDates: []time.Time{utc(2024, 5, 16, 15, 0)},
			}},
			filter:  "Sync",
			noMatch: true,
		},
		{
			name: "unknown timezone is an invalid rule",
			events: []model.CalendarEvent{{
				Summary:  "Sync",
				Start:    utc(2024, 1, 4, 15, 0),
				Timezone: "Mars/Olympus_Mons",
				Rule:     weekly(),
			}},
			filter:  "Sync",
			badRule: true,
		},
		{
			name: "missing frequency is an invalid rule",
			events: []model.CalendarEvent{{
				Summary: "Sync",
				Start:   utc(2024, 1, 4, 15, 0),
				Rule:    &model.Rule{},
			}},
			filter:  "Sync",
			badRule: true,
		},
		{
			name: "missing DTSTART is an invalid rule",
			events: []model.CalendarEvent{{
				Summary: "Sync",
				Rule:    weekly(),
			}},
			filter:  "Sync",
			badRule: true,
		},
		{
			name: "invalid candidate after the first match is not examined",
			events: []model.CalendarEvent{
				{UID: "good", Summary: "Sync", Start: utc(2024, 1, 4, 15, 0), Rule: weekly()},
				{UID: "bad", Summary: "Sync", Start: utc(2024, 1, 4, 15, 0), Timezone: "Nowhere/Special", Rule: weekly()},
			},
			filter:  "Sync",
			want:    utc(2024, 5, 16, 15, 0),
			wantUID: "good",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := model.MeetingIdentity{GroupName: "Test", CalendarFilter: tt.filter}
			got, err := schedule.Resolve(tt.events, identity, testWeek)

			switch {
			case tt.noMatch:
				var nm *schedule.NoMatchError
				if !errors.As(err, &nm) {
					t.Fatalf("Resolve() error = %v, want *NoMatchError", err)
				}
				return
			case tt.badRule:
				var ir *schedule.InvalidRuleError
				if !errors.As(err, &ir) {
					t.Fatalf("Resolve() error = %v, want *InvalidRuleError", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if !got.Start.Equal(tt.want) {
				t.Errorf("Resolve() = %v, want %v", got.Start, tt.want)
			}
			if got.Start.Location() != time.UTC {
				t.Errorf("occurrence location = %v, want UTC", got.Start.Location())
			}
			if got.UID != tt.wantUID {
				t.Errorf("Resolve() UID = %q, want %q", got.UID, tt.wantUID)
			}
			if !testWeek.Contains(got.Start) {
				t.Errorf("occurrence %v outside window [%v, %v)", got.Start, testWeek.Start, testWeek.End)
			}
		})
	}
}

func TestResolveFirstMatchNotGlobalEarliest(t *testing.T) {
	// Both series fire this week; B fires first (Monday) but A comes first
	// in the feed, so A's Thursday occurrence must be reported.
	a := model.CalendarEvent{UID: "a", Summary: "TSC Meeting", Start: utc(2024, 1, 4, 15, 0), Rule: weekly()}
	b := model.CalendarEvent{UID: "b", Summary: "TSC Meeting (APAC)", Start: utc(2024, 1, 1, 3, 0), Rule: weekly()}
	identity := model.MeetingIdentity{GroupName: "tsc", CalendarFilter: "TSC Meeting"}

	got, err := schedule.Resolve([]model.CalendarEvent{a, b}, identity, testWeek)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.UID != "a" || !got.Start.Equal(utc(2024, 5, 16, 15, 0)) {
		t.Errorf("Resolve() = %s@%v, want a@2024-05-16T15:00Z", got.UID, got.Start)
	}

	got, err = schedule.Resolve([]model.CalendarEvent{b, a}, identity, testWeek)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got.UID != "b" || !got.Start.Equal(utc(2024, 5, 13, 3, 0)) {
		t.Errorf("Resolve() = %s@%v, want b@2024-05-13T03:00Z", got.UID, got.Start)
	}
}

func TestNoMatchErrorCarriesWindowDates(t *testing.T) {
	events := []model.CalendarEvent{
		{Summary: "Unrelated", Start: utc(2024, 1, 4, 15, 0), Rule: weekly()},
	}

	tests := []struct {
		name      string
		group     string
		wantGroup string
	}{
		{name: "named group", group: "Release WG", wantGroup: "Release WG"},
		{name: "unnamed group", group: "", wantGroup: "this group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := model.MeetingIdentity{GroupName: tt.group, CalendarFilter: "Sync"}
			_, err := schedule.Resolve(events, identity, testWeek)

			var nm *schedule.NoMatchError
			if !errors.As(err, &nm) {
				t.Fatalf("Resolve() error = %v, want *NoMatchError", err)
			}
			if nm.WindowStart != "2024-05-12" || nm.WindowEnd != "2024-05-19" {
				t.Errorf("window = %s..%s, want 2024-05-12..2024-05-19", nm.WindowStart, nm.WindowEnd)
			}
			if nm.WindowStart != testWeek.Start.Format(schedule.DateLayout) ||
				nm.WindowEnd != testWeek.End.Format(schedule.DateLayout) {
				t.Errorf("window dates do not match computed window")
			}
			want := "No meeting found for " + tt.wantGroup + " in the current week (2024-05-12 to 2024-05-19)."
			if !strings.HasPrefix(err.Error(), want) {
				t.Errorf("Error() = %q, want prefix %q", err.Error(), want)
			}
			if !schedule.IsNoMatch(err) {
				t.Errorf("IsNoMatch(%v) = false", err)
			}
		})
	}
}

func TestNoMatchOnEmptyFeed(t *testing.T) {
	_, err := schedule.Resolve(nil, model.MeetingIdentity{GroupName: "x", CalendarFilter: "x"}, testWeek)
	if !schedule.IsNoMatch(err) {
		t.Fatalf("Resolve(nil) error = %v, want NoMatchError", err)
	}
}

func TestInvalidRuleErrorNamesEvent(t *testing.T) {
	ev := model.CalendarEvent{
		UID:      "uid-1",
		Summary:  "Weekly Sync",
		Start:    utc(2024, 1, 4, 15, 0),
		Timezone: "Mars/Olympus_Mons",
		Rule:     weekly(),
	}
	_, err := schedule.Resolve([]model.CalendarEvent{ev}, model.MeetingIdentity{CalendarFilter: "Sync"}, testWeek)

	var ir *schedule.InvalidRuleError
	if !errors.As(err, &ir) {
		t.Fatalf("error = %v, want *InvalidRuleError", err)
	}
	if ir.Summary != "Weekly Sync" || ir.UID != "uid-1" {
		t.Errorf("InvalidRuleError = %+v, want summary and uid of the event", ir)
	}
	if !strings.Contains(err.Error(), `"Weekly Sync"`) {
		t.Errorf("Error() = %q, want it to name the event", err.Error())
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("InvalidRuleError does not wrap its cause")
	}
	if schedule.IsNoMatch(err) {
		t.Errorf("InvalidRuleError reported as NoMatch")
	}
}

func TestResolveDoesNotMutateEvents(t *testing.T) {
	ex := utc(2024, 5, 9, 15, 0)
	events := []model.CalendarEvent{
		{UID: "a", Summary: "Sync", Start: utc(2024, 1, 4, 15, 0), Rule: weekly(time.Thursday), ExDates: []time.Time{ex}},
	}
	before := *events[0].Rule

	if _, err := schedule.Resolve(events, model.MeetingIdentity{CalendarFilter: "Sync"}, testWeek); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	after := *events[0].Rule
	if after.Frequency != before.Frequency || len(after.ByWeekday) != len(before.ByWeekday) || after.ByWeekday[0] != before.ByWeekday[0] {
		t.Errorf("rule mutated: %+v -> %+v", before, after)
	}
	if !events[0].ExDates[0].Equal(ex) || events[0].ExDates[0].Location() != time.UTC {
		t.Errorf("exdate mutated: %v", events[0].ExDates[0])
	}
}

func TestCandidatesPreserveOrder(t *testing.T) {
	events := []model.CalendarEvent{
		{UID: "1", Summary: "Sync", Rule: weekly()},
		{UID: "2", Summary: "Other", Rule: weekly()},
		{UID: "3", Description: "Sync notes", Rule: weekly()},
		{UID: "4", Summary: "Sync"},
		{UID: "5", Summary: "Sync again", Rule: weekly()},
	}

	got := schedule.Candidates(events, "Sync")
	want := []string{"1", "3", "5"}
	if len(got) != len(want) {
		t.Fatalf("Candidates() returned %d events, want %d", len(got), len(want))
	}
	for i, ev := range got {
		if ev.UID != want[i] {
			t.Errorf("Candidates()[%d] = %s, want %s", i, ev.UID, want[i])
		}
	}
}
