package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"stockalert/internal/task/engine"
	logx "stockalert/pkg/logx"
)

// AddSchedule parses schedule (see ParseSchedule) and registers it under name,
// replacing any schedule with the same name. Triggers that land while the
// previous run is queued or running are skipped.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (ParsedSpec, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return ParsedSpec{}, err
	}
	if ps.Kind == SpecCron {
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
	}
	return ps, s.add(name, ps.CronSpec(), timeout, job)
}

func (s *Service) add(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)

	var state *engine.RunState
	if s.engine != nil {
		state = s.engine.State(name)
	}
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, state: state})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if next := s.previewNextRunsLocked(spec, 3); len(next) > 0 {
		fields = append(fields, logx.Strs("next", next))
	}
	s.log.Info("schedule registered", fields...)
	return nil
}

// Trigger enqueues the job registered under name immediately, subject to the
// same overlap rule as a scheduled fire.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	var def *scheduleDef
	for i := range s.defs {
		if s.defs[i].name == name {
			d := s.defs[i]
			def = &d
			break
		}
	}
	s.mu.Unlock()
	if def == nil {
		return fmt.Errorf("schedule %q not found", name)
	}
	return s.enqueue(*def)
}

// NextRuns returns the next n fire times of name in the scheduler time zone.
func (s *Service) NextRuns(name string, n int) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name != name {
			continue
		}
		sched, err := s.parser.Parse(d.spec)
		if err != nil {
			return nil, err
		}
		loc := s.loc
		if loc == nil {
			loc = s.loadLocationLocked()
		}
		return nextRuns(sched, time.Now().In(loc), n), nil
	}
	return nil, fmt.Errorf("schedule %q not found", name)
}

func (s *Service) enqueue(d scheduleDef) error {
	if s.engine == nil {
		return engine.ErrDisabled
	}
	return s.engine.Enqueue(engine.Task{
		Name:    d.name,
		Timeout: d.timeout,
		Run:     d.job,
		Overlap: engine.OverlapSkipIfRunning,
		State:   d.state,
	})
}

// removeLocked drops every def named name. Call with s.mu held.
func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	job := cron.FuncJob(func() {
		if err := s.enqueue(def); err != nil {
			s.reportEnqueueError(def.name, err)
		}
	})

	if every, ok := strings.CutPrefix(strings.TrimSpace(d.spec), "@every"); ok {
		if dur, err := time.ParseDuration(strings.TrimSpace(every)); err == nil && dur > 0 {
			loc := s.loc
			if loc == nil {
				loc = time.Local
			}
			sched, jitter := spreadInterval(dur, time.Now().In(loc))
			d.entryID = s.c.Schedule(sched, job)
			s.log.Debug("interval schedule spread", logx.String("name", d.name), logx.Duration("first_in", jitter))
			return nil
		}
	}

	eid, err := s.c.AddJob(d.spec, job)
	if err == nil {
		d.entryID = eid
	}
	return err
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) loadLocationLocked() *time.Location {
	loc, err := LoadLocation(s.cfg.Timezone)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", s.cfg.Timezone), logx.Err(err))
		return time.Local
	}
	return loc
}

// LoadLocation resolves an IANA zone name; empty means Local.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// previewNextRunsLocked formats upcoming fire times for the debug log.
func (s *Service) previewNextRunsLocked(spec string, n int) []string {
	if !s.log.Enabled(logx.LevelDebug) {
		return nil
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	var out []string
	for _, t := range nextRuns(sched, time.Now().In(loc), n) {
		out = append(out, t.Format("2006-01-02 15:04:05 MST"))
	}
	return out
}

func nextRuns(sched cron.Schedule, from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
