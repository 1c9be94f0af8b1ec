// Package maintenance runs housekeeping on cron schedules: compacting the
// store journal and resetting the worked-time counter overnight.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pomodorod/internal/config"
	logx "pomodorod/pkg/logx"
)

const (
	JobCompact   = "compact"
	JobIdleReset = "idle_reset"
)

var ErrUnknownJob = errors.New("unknown maintenance job")

// Config holds cron specs; an empty spec disables its job.
type Config struct {
	Compact   string
	IdleReset string
	Timezone  string
	// Timeout bounds a single run (default 30s).
	Timeout time.Duration
}

// Compactor is implemented by storage.Store.
type Compactor interface {
	Compact(ctx context.Context) error
}

// IdleResetter clears worked time when no countdown is active.
type IdleResetter interface {
	ResetWorkedIfIdle(ctx context.Context) (bool, error)
}

type EntryInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
	id   cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	store Compactor
	timer IdleResetter

	ctx    context.Context
	cancel context.CancelFunc
	c      *cron.Cron
	loc    *time.Location
	jobs   []job
}

func New(cfg Config, store Compactor, timer IdleResetter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, timer: timer, log: log.With(logx.String("comp", "maintenance"))}
}

// Start parses the configured specs and begins triggering. Invalid specs
// are an error and nothing is started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	jobs, err := s.jobsLocked()
	if err != nil {
		return err
	}
	s.loc = s.loadLocationLocked()
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	s.ctx, s.cancel = context.WithCancel(ctx)
	now := time.Now().In(s.loc)
	for i := range jobs {
		j := &jobs[i]
		fn := s.wrap(*j)
		if every, ok := strings.CutPrefix(j.spec, "@every"); ok {
			if d, err := time.ParseDuration(strings.TrimSpace(every)); err == nil && d > 0 {
				sched, _ := intervalWithSpread(d, now, j.name)
				j.id = c.Schedule(sched, cron.FuncJob(fn))
				continue
			}
		}
		id, err := c.AddFunc(j.spec, fn)
		if err != nil {
			s.cancel()
			return fmt.Errorf("maintenance.%s: %w", j.name, err)
		}
		j.id = id
	}
	c.Start()
	s.c = c
	s.jobs = jobs
	s.log.Info("maintenance started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(jobs)))
	return nil
}

func (s *Service) jobsLocked() ([]job, error) {
	var out []job
	if spec := strings.TrimSpace(s.cfg.Compact); spec != "" {
		if s.store == nil {
			return nil, errors.New("maintenance.compact: no store")
		}
		out = append(out, job{name: JobCompact, spec: spec, run: s.store.Compact})
	}
	if spec := strings.TrimSpace(s.cfg.IdleReset); spec != "" {
		if s.timer == nil {
			return nil, errors.New("maintenance.idle_reset: no timer")
		}
		out = append(out, job{name: JobIdleReset, spec: spec, run: s.idleReset})
	}
	return out, nil
}

func (s *Service) idleReset(ctx context.Context) error {
	reset, err := s.timer.ResetWorkedIfIdle(ctx)
	if err == nil && reset {
		s.log.Info("worked time reset while idle")
	}
	return err
}

// wrap adds the per-run timeout and logging.
func (s *Service) wrap(j job) func() {
	return func() {
		s.mu.Lock()
		parent := s.ctx
		timeout := s.cfg.Timeout
		s.mu.Unlock()
		if parent == nil || parent.Err() != nil {
			return
		}
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		start := time.Now()
		if err := j.run(ctx); err != nil {
			s.log.Warn("maintenance job failed", logx.String("job", j.name), logx.Err(err))
			return
		}
		s.log.Debug("maintenance job ok", logx.String("job", j.name), logx.Duration("took", time.Since(start)))
	}
}

// RunNow runs a configured job immediately on the calling goroutine.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var run func(context.Context) error
	for _, j := range s.jobs {
		if j.name == name {
			run = j.run
		}
	}
	s.mu.Unlock()
	if run == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return run(ctx)
}

// Apply swaps the config, restarting the cron if it is running.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	s.cfg = cfg
	if s.c == nil {
		return nil
	}
	s.stopLocked(ctx)
	return s.startLocked(ctx)
}

// Entries lists scheduled jobs sorted by name.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	out := make([]EntryInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := s.c.Entry(j.id)
		out = append(out, EntryInfo{Name: j.name, Spec: j.spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	s.cancel()
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
	s.c = nil
	s.jobs = nil
	s.log.Info("maintenance stopped")
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes cron's own logging (panics, skipped runs) to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
