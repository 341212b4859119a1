// Package scheduler publishes batch jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/dvloznov/bankfeed/internal/jobs"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/robfig/cron/v3"
)

// Schedule publishes one job type on a standard five-field cron spec.
type Schedule struct {
	Name string
	Spec string
	Job  jobs.JobType
}

// Scheduler owns a cron runner whose entries publish jobs to a queue. The
// queue decides when they run, so a slow batch delays the next tick instead
// of overlapping it.
type Scheduler struct {
	cron      *cron.Cron
	publisher jobs.Publisher
	location  *time.Location
	entries   map[string]cron.EntryID
}

// New validates every schedule and registers it. Unknown time zones fall
// back to UTC.
func New(ctx context.Context, publisher jobs.Publisher, timezone string, schedules []Schedule) (*Scheduler, error) {
	log := logger.FromContext(ctx)

	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			log.Warn().Err(err).Str("timezone", timezone).Msg("Invalid timezone, falling back to UTC")
		} else {
			loc = l
		}
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		publisher: publisher,
		location:  loc,
		entries:   make(map[string]cron.EntryID),
	}

	for _, sch := range schedules {
		if !sch.Job.Valid() {
			return nil, fmt.Errorf("schedule %q: unknown job type %q", sch.Name, sch.Job)
		}
		if _, dup := s.entries[sch.Name]; dup {
			return nil, fmt.Errorf("schedule %q: duplicate name", sch.Name)
		}

		sch := sch
		id, err := s.cron.AddFunc(sch.Spec, func() { s.Fire(ctx, sch) })
		if err != nil {
			return nil, fmt.Errorf("schedule %q: invalid spec %q: %w", sch.Name, sch.Spec, err)
		}
		s.entries[sch.Name] = id
	}

	return s, nil
}

// Fire publishes the job for sch. Publish failures are logged; the next
// tick tries again.
func (s *Scheduler) Fire(ctx context.Context, sch Schedule) {
	log := logger.FromContext(ctx)

	job := &jobs.Job{
		Type:        sch.Job,
		Trigger:     jobs.TriggerSchedule,
		RequestedBy: sch.Name,
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		log.Error().Err(err).Str("schedule", sch.Name).Msg("Failed to publish scheduled job")
		return
	}

	log.Info().
		Str("schedule", sch.Name).
		Str("job_id", job.JobID).
		Str("job_type", string(job.Type)).
		Msg("Published scheduled job")
}

// Next returns the next activation time of the named schedule.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	return entry.Schedule.Next(time.Now().In(s.location)), true
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new ticks and returns a context done once running publishes end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
