package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "autoshout/pkg/logx"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var ErrNotStarted = errors.New("scheduler not started")

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Shanghai"; empty = local
}

// Job is the unit of scheduled work. The context is canceled when the
// scheduler stops.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // as given
	expr    string // normalized for robfig/cron
	job     Job
	entryID cron.EntryID
	running *atomic.Bool
}

type onceDef struct {
	at    time.Time
	timer *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	defs  map[string]*scheduleDef
	onces map[string]*onceDef
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		defs:  map[string]*scheduleDef{},
		onces: map[string]*onceDef{},
	}
}

// Apply swaps the config; a timezone change re-registers every schedule.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || oldTZ == strings.TrimSpace(cfg.Timezone) {
		return
	}
	s.restartLocked()
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Warn("schedule rejected", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts the cron loop, cancels pending one-shots and waits for running
// jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	stopped := s.c.Stop()
	s.c = nil
	for name, o := range s.onces {
		o.timer.Stop()
		delete(s.onces, name)
	}
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; canceling running jobs")
	}
	cancel()
	s.log.Info("scheduler stopped")
}

// AddSchedule registers job under name, replacing any schedule with the same
// name. Schedules added before Start are registered when it runs.
func (s *Service) AddSchedule(name, spec string, job Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	ps, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	if _, err := cronParser.Parse(ps.Expr()); err != nil {
		return fmt.Errorf("invalid cron %q: %w", ps.Expr(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: spec, expr: ps.Expr(), job: job, running: &atomic.Bool{}}
	s.defs[name] = d
	if s.c == nil {
		return nil
	}
	return s.addCronLocked(d)
}

// AddOnce runs job once at the given time (immediately if at is in the past).
// It replaces a pending one-shot with the same name.
func (s *Service) AddOnce(name string, at time.Time, job Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return ErrNotStarted
	}
	if o, ok := s.onces[name]; ok {
		o.timer.Stop()
	}
	running := &atomic.Bool{}
	o := &onceDef{at: at}
	o.timer = time.AfterFunc(time.Until(at), func() {
		s.mu.Lock()
		if cur, ok := s.onces[name]; ok && cur == o {
			delete(s.onces, name)
		}
		s.mu.Unlock()
		s.run(name, job, running)
	})
	s.onces[name] = o
	s.log.Debug("one-shot scheduled", logx.String("name", name), logx.Time("at", at))
	return nil
}

// Remove drops the schedule and any pending one-shot registered under name.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	if o, ok := s.onces[name]; ok {
		o.timer.Stop()
		delete(s.onces, name)
	}
}

func (s *Service) removeLocked(name string) {
	d, ok := s.defs[name]
	if !ok {
		return
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	id, err := s.c.AddFunc(d.expr, func() { s.run(d.name, d.job, d.running) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) run(name string, job Job, running *atomic.Bool) {
	s.mu.Lock()
	ctx := s.ctx
	stopped := s.c == nil
	if !stopped {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if stopped {
		return
	}
	defer s.wg.Done()

	if !running.CompareAndSwap(false, true) {
		s.log.Info("job still running; skipping", logx.String("name", name))
		return
	}
	defer running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", logx.String("name", name), logx.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Warn("job failed", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("name", name), logx.Duration("took", time.Since(start)))
}

func (s *Service) restartLocked() {
	// Not waiting on Stop().Done(): a running job may be blocked on s.mu.
	s.c.Stop()
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		_ = s.addCronLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// ScheduleInfo describes one registered schedule.
type ScheduleInfo struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next,omitempty"`
	Prev    time.Time `json:"prev,omitempty"`
	Running bool      `json:"running"`
	Once    bool      `json:"once,omitempty"`
}

func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs)+len(s.onces))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Running: d.running.Load()}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out = append(out, it)
	}
	for name, o := range s.onces {
		out = append(out, ScheduleInfo{Name: name, Spec: "once", Next: o.at, Once: true})
	}
	return out
}
