package metrics

import (
	"errors"
	"time"

	"nextmeet/internal/schedule"
)

// Sink records resolver and feed outcomes.
// Implementations must not block or return errors.
type Sink interface {
	// ResolutionCompleted records one resolve attempt for a meeting group.
	ResolutionCompleted(group, outcome string, duration time.Duration)
	// FetchCompleted records one feed download; it satisfies ics.Observer.
	FetchCompleted(source string, fromCache bool, err error)
}

// Outcome values for ResolutionCompleted.
const (
	OutcomeFound       = "found"
	OutcomeNoMatch     = "no_match"
	OutcomeInvalidRule = "invalid_rule"
	OutcomeFeedError   = "feed_error"
)

// Result values for the feed fetch counter.
const (
	FetchFresh  = "fresh"
	FetchCached = "cached"
	FetchError  = "error"
)

// Classify maps a resolve error to an outcome label.
func Classify(err error) string {
	if err == nil {
		return OutcomeFound
	}
	if schedule.IsNoMatch(err) {
		return OutcomeNoMatch
	}
	var invalid *schedule.InvalidRuleError
	if errors.As(err, &invalid) {
		return OutcomeInvalidRule
	}
	return OutcomeFeedError
}

func fetchResult(fromCache bool, err error) string {
	switch {
	case err != nil:
		return FetchError
	case fromCache:
		return FetchCached
	default:
		return FetchFresh
	}
}
