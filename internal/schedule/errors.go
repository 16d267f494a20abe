package schedule

import (
	"errors"
	"fmt"
)

// defaultGroupName stands in for an unset group name in messages.
const defaultGroupName = "this group"

// NoMatchError reports that no recurring, identity-matching event has an
// occurrence inside the window. It is a routine outcome (e.g. a biweekly
// meeting in its off week), not a fault.
type NoMatchError struct {
	Group string

	// WindowStart and WindowEnd are the window bounds as calendar dates
	// (DateLayout).
	WindowStart string
	WindowEnd   string
}

func (e *NoMatchError) Error() string {
	group := e.Group
	if group == "" {
		group = defaultGroupName
	}
	return fmt.Sprintf(
		"No meeting found for %s in the current week (%s to %s). "+
			"This is expected for bi-weekly meetings or meetings that don't occur every week.",
		group, e.WindowStart, e.WindowEnd,
	)
}

// InvalidRuleError reports a recurrence rule the evaluator cannot use, for
// example one naming an unknown timezone.
type InvalidRuleError struct {
	UID         string
	Summary     string
	Description string
	Err         error
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule for event %q: %v", e.eventName(), e.Err)
}

func (e *InvalidRuleError) Unwrap() error {
	return e.Err
}

func (e *InvalidRuleError) eventName() string {
	switch {
	case e.Summary != "":
		return e.Summary
	case e.Description != "":
		return e.Description
	default:
		return e.UID
	}
}

// IsNoMatch reports whether err (or anything it wraps) is a *NoMatchError.
func IsNoMatch(err error) bool {
	var nm *NoMatchError
	return errors.As(err, &nm)
}
