package metrics

import "time"

// NoopSink is used when metrics are disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) ResolutionCompleted(group, outcome string, duration time.Duration) {}
func (n *NoopSink) FetchCompleted(source string, fromCache bool, err error)           {}
