// Package meeting ties configuration, feed loading and the resolver together
// for the CLI, the HTTP API and the background refresher.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"nextmeet/internal/config"
	"nextmeet/internal/ics"
	appLog "nextmeet/internal/log"
	"nextmeet/internal/metrics"
	"nextmeet/internal/model"
	"nextmeet/internal/schedule"
)

const maxCachedResults = 256

// ErrUnknownGroup is returned for a group missing from the configuration.
var ErrUnknownGroup = errors.New("unknown meeting group")

// occurrenceNamespace seeds deterministic occurrence IDs.
var occurrenceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("nextmeet:occurrence"))

// Loader returns the parsed events of one feed. *ics.Fetcher implements it.
type Loader interface {
	Load(ctx context.Context, src ics.Source) ([]model.CalendarEvent, error)
}

// Result is a resolved occurrence together with the window it was found in.
type Result struct {
	Group      string
	Window     model.Window
	Occurrence model.Occurrence
	// ID is stable for the same event UID and start instant.
	ID uuid.UUID
}

type cached struct {
	res Result
	err error
}

// Service resolves the occurrence of configured meeting groups in the
// week containing a reference instant.
type Service struct {
	cfg    *config.Config
	loader Loader
	sink   metrics.Sink
	cache  *expirable.LRU[string, cached]
}

// NewService creates a Service. A nil sink disables metrics.
func NewService(cfg *config.Config, loader Loader, sink metrics.Sink) *Service {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Service{
		cfg:    cfg,
		loader: loader,
		sink:   sink,
		cache:  expirable.NewLRU[string, cached](maxCachedResults, nil, cfg.CacheTTL()),
	}
}

// Groups returns the configured meeting groups in config order.
func (s *Service) Groups() []config.MeetingConfig {
	return s.cfg.Meetings
}

// Next returns the group's occurrence in the week containing ref, serving
// from the result cache when possible. Found occurrences and NoMatchError
// are cached; feed and rule failures are not.
func (s *Service) Next(ctx context.Context, group string, ref time.Time) (Result, error) {
	w := schedule.WeekWindow(ref)
	if c, ok := s.cache.Get(cacheKey(group, w)); ok {
		appLog.Debug("resolution cache hit", "group", group, "window_start", w.Start.Format(schedule.DateLayout))
		return c.res, c.err
	}
	return s.resolve(ctx, group, w)
}

// Refresh re-resolves the group bypassing the cache and stores the result.
func (s *Service) Refresh(ctx context.Context, group string, ref time.Time) (Result, error) {
	return s.resolve(ctx, group, schedule.WeekWindow(ref))
}

func (s *Service) resolve(ctx context.Context, group string, w model.Window) (Result, error) {
	m, ok := s.cfg.Meeting(group)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}

	started := time.Now()
	res, err := s.resolveMeeting(ctx, m, w)
	s.sink.ResolutionCompleted(m.Group, metrics.Classify(err), time.Since(started))

	if err == nil || schedule.IsNoMatch(err) {
		s.cache.Add(cacheKey(group, w), cached{res: res, err: err})
	}
	return res, err
}

func (s *Service) resolveMeeting(ctx context.Context, m config.MeetingConfig, w model.Window) (Result, error) {
	events, err := s.loader.Load(ctx, ics.Source{ID: m.Group, URL: m.ICSURL})
	if err != nil {
		return Result{}, fmt.Errorf("load feed for %s: %w", m.Group, err)
	}

	occ, err := schedule.Resolve(events, m.Identity(), w)
	if err != nil {
		return Result{Group: m.Group, Window: w}, err
	}

	return Result{
		Group:      m.Group,
		Window:     w,
		Occurrence: occ,
		ID:         OccurrenceID(occ),
	}, nil
}

// OccurrenceID derives a name-based UUID from the occurrence's event UID and
// start instant.
func OccurrenceID(occ model.Occurrence) uuid.UUID {
	name := occ.UID + "|" + occ.Start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(occurrenceNamespace, []byte(name))
}

func cacheKey(group string, w model.Window) string {
	return group + "|" + w.Start.Format(schedule.DateLayout)
}
