package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "lightup/pkg/logx"
)

// DisabledSpec removes a job instead of scheduling it.
const DisabledSpec = "-"

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "scheduler")),
		// Standard five fields plus descriptors such as @hourly and @every.
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Apply restarts cron when the timezone changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && tzChanged {
		s.restartLocked()
	}
}

// Start begins triggering. Jobs run with contexts derived from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) startLocked() {
	s.loc = s.locationLocked()
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		}
	}
	s.c.Start()
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	s.startLocked()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()))
}

func (s *Service) locationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("unknown timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Stop stops triggering and waits for running jobs until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; jobs still running")
	}
}

// AddCron registers job under name, replacing any job with that name.
// DisabledSpec or an empty spec just removes it.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job JobFunc) error {
	name, spec = strings.TrimSpace(name), strings.TrimSpace(spec)
	if name == "" {
		return errors.New("schedule name required")
	}
	if job == nil {
		return errors.New("schedule job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	if spec == "" || spec == DisabledSpec {
		return nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return err
	}
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, job: job, stats: &runStats{}}
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	return nil
}

// Remove drops the named job. It reports whether one existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	for i, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return true
	}
	return false
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	job := s.wrap(d)
	if every, ok := parseEvery(d.spec); ok {
		sched, spread := intervalWithSpread(every, time.Now().In(s.loc), d.name)
		d.spread = spread
		d.entryID = s.c.Schedule(sched, job)
		return nil
	}
	id, err := s.c.AddJob(d.spec, job)
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// wrap turns d into a cron job that skips a trigger while the previous
// run is still going and bounds each run by the job timeout.
// Called with s.mu held.
func (s *Service) wrap(d *scheduleDef) cron.Job {
	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	running := make(chan struct{}, 1)
	return cron.FuncJob(func() {
		select {
		case running <- struct{}{}:
		default:
			d.stats.mu.Lock()
			d.stats.skipped++
			d.stats.mu.Unlock()
			s.log.Debug("schedule trigger skipped; previous run active", logx.String("name", d.name))
			return
		}
		defer func() { <-running }()

		ctx := base
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		start := time.Now()
		err := d.job(ctx)
		took := time.Since(start)

		d.stats.mu.Lock()
		d.stats.runs++
		d.stats.lastRun = start
		d.stats.lastDur = took
		d.stats.lastErr = ""
		if err != nil {
			d.stats.lastErr = err.Error()
		}
		d.stats.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
		}
	})
}

func parseEvery(spec string) (time.Duration, bool) {
	rest, ok := strings.CutPrefix(spec, "@every")
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(rest))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// Snapshot lists the registered jobs with their next and previous runs.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.loc
	if loc == nil {
		loc = s.locationLocked()
	}
	snap := Snapshot{Running: s.c != nil, Timezone: loc.String()}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		d.stats.mu.Lock()
		it.Runs, it.Skipped = d.stats.runs, d.stats.skipped
		it.LastDur, it.LastErr = d.stats.lastDur, d.stats.lastErr
		d.stats.mu.Unlock()
		snap.Schedules = append(snap.Schedules, it)
	}
	return snap
}
