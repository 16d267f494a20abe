package ics

import (
	"testing"
	"time"

	"nextmeet/internal/model"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		check   func(t *testing.T, r *model.Rule)
		wantErr bool
	}{
		{
			name: "weekly with byday",
			raw:  "FREQ=WEEKLY;BYDAY=TH",
			check: func(t *testing.T, r *model.Rule) {
				if r.Frequency != model.Weekly {
					t.Errorf("Frequency = %v, want WEEKLY", r.Frequency)
				}
				if len(r.ByWeekday) != 1 || r.ByWeekday[0].Day != time.Thursday || r.ByWeekday[0].N != 0 {
					t.Errorf("ByWeekday = %+v, want [TH]", r.ByWeekday)
				}
				if r.WeekStart != nil {
					t.Errorf("WeekStart = %v, want nil", *r.WeekStart)
				}
			},
		},
		{
			name: "biweekly with interval and UTC until",
			raw:  "FREQ=WEEKLY;INTERVAL=2;UNTIL=20241231T235959Z",
			check: func(t *testing.T, r *model.Rule) {
				if r.Interval != 2 {
					t.Errorf("Interval = %d, want 2", r.Interval)
				}
				want := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
				if !r.Until.Equal(want) {
					t.Errorf("Until = %v, want %v", r.Until, want)
				}
			},
		},
		{
			name: "monthly nth weekday",
			raw:  "FREQ=MONTHLY;BYDAY=-1FR",
			check: func(t *testing.T, r *model.Rule) {
				if r.Frequency != model.Monthly {
					t.Errorf("Frequency = %v, want MONTHLY", r.Frequency)
				}
				if len(r.ByWeekday) != 1 || r.ByWeekday[0].Day != time.Friday || r.ByWeekday[0].N != -1 {
					t.Errorf("ByWeekday = %+v, want [-1FR]", r.ByWeekday)
				}
			},
		},
		{
			name: "count and week start",
			raw:  "RRULE:FREQ=DAILY;COUNT=10;WKST=SU",
			check: func(t *testing.T, r *model.Rule) {
				if r.Count != 10 {
					t.Errorf("Count = %d, want 10", r.Count)
				}
				if r.WeekStart == nil || *r.WeekStart != time.Sunday {
					t.Errorf("WeekStart = %v, want Sunday", r.WeekStart)
				}
				if r.Raw != "FREQ=DAILY;COUNT=10;WKST=SU" {
					t.Errorf("Raw = %q", r.Raw)
				}
			},
		},
		{
			name:    "empty",
			raw:     "  ",
			wantErr: true,
		},
		{
			name:    "garbage",
			raw:     "FREQ=FORTNIGHTLY",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRule(tt.raw, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, r)
			}
		})
	}
}

func TestParseRuleFloatingUntilUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	r, err := ParseRule("FREQ=WEEKLY;UNTIL=20240501T120000", loc)
	if err != nil {
		t.Fatalf("ParseRule() error: %v", err)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)
	if !r.Until.Equal(want) {
		t.Errorf("Until = %v, want %v", r.Until, want)
	}
}
