// Package refresh periodically re-resolves every configured meeting group so
// the HTTP API answers from a warm cache.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "nextmeet/internal/log"
	"nextmeet/internal/meeting"
	"nextmeet/internal/schedule"
)

// Target re-resolves one group, bypassing any cache. *meeting.Service
// implements it.
type Target interface {
	Refresh(ctx context.Context, group string, ref time.Time) (meeting.Result, error)
}

// Summary counts the outcomes of one refresh pass.
type Summary struct {
	Found   int
	NoMatch int
	Failed  int
}

// Refresher runs a refresh pass on a cron schedule.
type Refresher struct {
	spec   string
	sched  cron.Schedule
	loc    *time.Location
	groups []string
	target Target
	now    func() time.Time
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New parses spec (standard 5-field cron or a descriptor such as
// "@hourly") evaluated in loc.
func New(spec string, loc *time.Location, groups []string, target Target) (*Refresher, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Refresher{
		spec:   spec,
		sched:  sched,
		loc:    loc,
		groups: groups,
		target: target,
		now:    time.Now,
	}, nil
}

// Next returns the first scheduled pass after t.
func (r *Refresher) Next(after time.Time) time.Time {
	return r.sched.Next(after.In(r.loc))
}

// RunOnce refreshes every group once. Failures are logged, never returned.
func (r *Refresher) RunOnce(ctx context.Context) Summary {
	var sum Summary
	ref := r.now()
	for _, group := range r.groups {
		if ctx.Err() != nil {
			break
		}
		res, err := r.target.Refresh(ctx, group, ref)
		switch {
		case err == nil:
			sum.Found++
			appLog.Debug("refresh: resolved", "group", group, "start", res.Occurrence.Start.Format(time.RFC3339))
		case schedule.IsNoMatch(err):
			sum.NoMatch++
			appLog.Debug("refresh: no occurrence this week", "group", group)
		default:
			sum.Failed++
			appLog.Error("refresh: resolve failed", err, "group", group)
		}
	}
	appLog.Info("refresh pass complete", "found", sum.Found, "no_match", sum.NoMatch, "failed", sum.Failed)
	return sum
}

// Run warms the cache immediately and then on every scheduled tick until
// ctx is canceled. It waits for a running pass to finish before returning.
func (r *Refresher) Run(ctx context.Context) {
	c := cron.New(cron.WithLocation(r.loc), cron.WithParser(parser))
	c.Schedule(r.sched, cron.FuncJob(func() { r.RunOnce(ctx) }))

	r.RunOnce(ctx)

	c.Start()
	appLog.Info("refresher started", "schedule", r.spec, "next", r.Next(r.now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("refresher stopped")
}
