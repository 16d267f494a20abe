package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "nextmeet/internal/log"
	"nextmeet/internal/model"
)

// windowsZones maps the Windows zone names Outlook/Exchange feeds put in
// TZID onto IANA names.
var windowsZones = map[string]string{
	"Hawaiian Standard Time":       "Pacific/Honolulu",
	"Alaskan Standard Time":        "America/Anchorage",
	"Pacific Standard Time":        "America/Los_Angeles",
	"Mountain Standard Time":       "America/Denver",
	"Central Standard Time":        "America/Chicago",
	"Eastern Standard Time":        "America/New_York",
	"SA Pacific Standard Time":     "America/Bogota",
	"GMT Standard Time":            "Europe/London",
	"W. Europe Standard Time":      "Europe/Berlin",
	"Romance Standard Time":        "Europe/Paris",
	"Central Europe Standard Time": "Europe/Budapest",
	"E. Europe Standard Time":      "Europe/Chisinau",
	"India Standard Time":          "Asia/Kolkata",
	"China Standard Time":          "Asia/Shanghai",
	"Tokyo Standard Time":          "Asia/Tokyo",
	"Korea Standard Time":          "Asia/Seoul",
	"AUS Eastern Standard Time":    "Australia/Sydney",
	"UTC":                          "UTC",
}

// ParseICS parses an ICS payload into calendar events, in feed order.
//
//   - DTSTART is read in its TZID (Windows names are mapped to IANA).
//     Floating times without TZID are taken as UTC.
//   - A TZID that cannot be loaded is kept on the event as-is so the
//     resolver reports it instead of silently evaluating in UTC.
//   - An RRULE that fails to parse is kept as a Rule carrying only Raw, so
//     the event still surfaces as an invalid rule when it is a candidate.
//   - VEVENTs without UID, and RECURRENCE-ID overrides, are skipped.
func ParseICS(src Source, body []byte) ([]model.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ICS %s: %w", src.ID, err)
	}

	events := make([]model.CalendarEvent, 0)
	skipped := 0

	for _, comp := range cal.Events() {
		if comp.GetProperty("RECURRENCE-ID") != nil {
			skipped++
			continue
		}
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Debug("ics vevent skipped", "id", src.ID, "reason", perr.Error())
			skipped++
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events), "skipped", skipped)
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	tzid := normalizeTZID(param(dtStart, "TZID"))
	out.Timezone = tzid
	loc := locationOrUTC(tzid)

	start, err := parseICSTime(dtStart.Value, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		rule, rerr := ParseRule(rruleProp.Value, loc)
		if rerr != nil {
			appLog.Error("ics rrule parse failed", rerr, "id", src.ID, "uid", out.UID)
			rule = &model.Rule{Raw: rruleProp.Value}
		}
		out.Rule = rule
	}

	// EXDATE may repeat and may hold comma-separated values.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exLoc := loc
		if exTZ := normalizeTZID(param(p, "TZID")); exTZ != "" {
			exLoc = locationOrUTC(exTZ)
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, exLoc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	return out, nil
}

func param(p *ical.IANAProperty, name string) string {
	if p == nil || p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return strings.Trim(vs[0], `"`)
	}
	return ""
}

func normalizeTZID(tzid string) string {
	tzid = strings.TrimSpace(tzid)
	if iana, ok := windowsZones[tzid]; ok {
		return iana
	}
	return tzid
}

func locationOrUTC(tzid string) *time.Location {
	if tzid == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
// Floating values and dates are interpreted in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}

	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}

var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}
