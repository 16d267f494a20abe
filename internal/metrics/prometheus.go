package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	appLog "nextmeet/internal/log"
)

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged and never propagated.
type PrometheusSink struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	lastFound          *prometheus.GaugeVec

	feedFetchesTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a sink and registers its collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initResolverMetrics(reg)
	s.initFeedMetrics(reg)
	return s
}

func (s *PrometheusSink) initResolverMetrics(reg prometheus.Registerer) {
	s.resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nextmeet_resolutions_total",
		Help: "Total number of next-occurrence resolutions by outcome.",
	}, []string{"group", "outcome"})

	s.resolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nextmeet_resolution_duration_seconds",
		Help:    "Time spent loading the feed and resolving one group.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
	})

	s.lastFound = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nextmeet_last_found_timestamp_seconds",
		Help: "Unix time of the last resolution that found an occurrence.",
	}, []string{"group"})

	s.register(reg, s.resolutionsTotal, "nextmeet_resolutions_total")
	s.register(reg, s.resolutionDuration, "nextmeet_resolution_duration_seconds")
	s.register(reg, s.lastFound, "nextmeet_last_found_timestamp_seconds")
}

func (s *PrometheusSink) initFeedMetrics(reg prometheus.Registerer) {
	s.feedFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nextmeet_feed_fetches_total",
		Help: "Total number of calendar feed fetches by result.",
	}, []string{"source", "result"})

	s.register(reg, s.feedFetchesTotal, "nextmeet_feed_fetches_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		appLog.Warn("metrics: failed to register collector", "name", name, "err", err)
	}
}

func (s *PrometheusSink) ResolutionCompleted(group, outcome string, duration time.Duration) {
	s.resolutionsTotal.WithLabelValues(group, outcome).Inc()
	s.resolutionDuration.Observe(duration.Seconds())
	if outcome == OutcomeFound {
		s.lastFound.WithLabelValues(group).SetToCurrentTime()
	}
}

func (s *PrometheusSink) FetchCompleted(source string, fromCache bool, err error) {
	s.feedFetchesTotal.WithLabelValues(source, fetchResult(fromCache, err)).Inc()
}
