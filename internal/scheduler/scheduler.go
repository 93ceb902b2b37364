// Package scheduler is the minute-resolution cron engine: a single
// time.Ticker wakes once a minute and dispatches every enabled schedule
// entry whose expression matches the current time. dispatch recovers any
// panic a TaskFunc raises before reaching its own tasklog.Logger (e.g.
// during seed-list construction), and each TaskFunc's tasklog.Logger
// recovers panics during the logged phase in turn, so one failing pipeline
// cannot take down the tick loop.
//
// Grounded on original_source/scheduler.py's main loop (schedule.run_pending
// every 60s) and packages/com.r3e.services.automation/service/schedule.go's
// cron field parser. robfig/cron/v3 supplies the minute/hour/month/
// day-of-week matching; day-of-month uses the custom L/L-N/list grammar in
// cron_day.go since neither source parses it.
package scheduler

import (
	"context"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/pcrguild/pcrdb-collector/internal/config"
	"github.com/pcrguild/pcrdb-collector/internal/metrics"
)

// TaskFunc is a registered task body. It returns the number of records
// fetched and owns its own tasklog.Logger lifecycle internally.
type TaskFunc func(ctx context.Context, params map[string]any) (recordsFetched int, err error)

// entry pairs a parsed schedule with its source configuration.
type entry struct {
	cfg    config.ScheduleEntry
	sched  cron.Schedule
	dom    domMatcher
	fields string
}

// Scheduler dispatches registered tasks on the schedule described by a set
// of config.ScheduleEntry rows.
type Scheduler struct {
	tasks   map[string]TaskFunc
	entries []entry
	log     *logrus.Entry
}

// New builds a Scheduler from the YAML schedule table and a registry of
// task bodies keyed by task_name. Entries with an unparseable expression are
// skipped with a logged warning rather than failing the whole process,
// mirroring setup_schedules' per-task try/continue behaviour.
func New(tasks map[string]TaskFunc, schedule []config.ScheduleEntry, log *logrus.Entry) (*Scheduler, error) {
	s := &Scheduler{tasks: tasks, log: log}
	for _, e := range schedule {
		if !e.Enabled {
			log.Infof("scheduler: task %s disabled, skipping", e.TaskName)
			continue
		}
		parsed, err := parseEntry(e)
		if err != nil {
			log.WithError(err).Warnf("scheduler: task %s has an invalid schedule, skipping", e.TaskName)
			continue
		}
		s.entries = append(s.entries, parsed)
	}
	return s, nil
}

func parseEntry(e config.ScheduleEntry) (entry, error) {
	dom, err := parseDayOfMonth(e.DayOfMonth)
	if err != nil {
		return entry{}, err
	}
	spec := fmt.Sprintf("%s %s * %s %s", e.Minute, e.Hour, e.Month, e.DayOfWeek)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return entry{}, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	return entry{cfg: e, sched: sched, dom: dom, fields: spec}, nil
}

// fires reports whether e matches minute-truncated time t: the standard
// fields must match via robfig/cron's own Next() computation, and the
// day-of-month extension must independently match via dom.match.
func (e entry) fires(t time.Time) bool {
	if !e.dom.match(t) {
		return false
	}
	next := e.sched.Next(t.Add(-time.Second))
	return !next.After(t)
}

// Run blocks, firing matching tasks once a minute until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.log.Info("scheduler: ready, dispatching on a one-minute tick")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.tick(ctx, now.Truncate(time.Minute))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, e := range s.entries {
		if !e.fires(now) {
			continue
		}
		s.dispatch(ctx, e.cfg)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, cfg config.ScheduleEntry) {
	fn, ok := s.tasks[cfg.TaskName]
	if !ok {
		s.log.Warnf("scheduler: no task registered for %q", cfg.TaskName)
		return
	}

	params := make(map[string]any, len(cfg.Params)+1)
	for k, v := range cfg.Params {
		params[k] = v
	}
	if cfg.Mode != "" {
		params["mode"] = cfg.Mode
	}

	s.log.Infof("scheduler: starting task %s", cfg.TaskName)
	start := time.Now()

	err := s.runTask(ctx, cfg.TaskName, fn, params)

	elapsed := time.Since(start)
	if err != nil {
		metrics.TaskRuns.WithLabelValues(cfg.TaskName, "failed").Inc()
		s.log.WithError(err).Errorf("scheduler: task %s failed after %s", cfg.TaskName, elapsed)
		return
	}
	metrics.TaskRuns.WithLabelValues(cfg.TaskName, "success").Inc()
	s.log.Infof("scheduler: task %s completed in %s", cfg.TaskName, elapsed)
}

// runTask invokes fn, recovering from a panic so a bug in a pipeline's
// seed-building phase — which runs before that pipeline's own
// tasklog.Logger takes over (internal/pipeline/run.go's runLogged) — cannot
// escape dispatch and kill the tick loop in Run.
func (s *Scheduler) runTask(ctx context.Context, taskName string, fn TaskFunc, params map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: task %s panicked: %v", taskName, r)
		}
	}()
	_, err = fn(ctx, params)
	return err
}
