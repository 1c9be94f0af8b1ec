// Package notifier delivers timer alerts to a chat.
//
// Alerts are queued and handled by a single worker so operations on the same
// alert ID stay ordered. Delivery is rate limited and retried with jittered
// backoff. A permission error (bot blocked, chat gone) is never retried and is
// reported once; the timer keeps running regardless.
package notifier

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"pomodorod/internal/eventbus"
	rtsup "pomodorod/internal/runtime/supervisor"
	kit "pomodorod/internal/transport"
	logx "pomodorod/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	op    op
	alert Alert
}

// Service implements the alert pipeline: queue + worker + rate limit + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// refs is owned by the worker goroutine.
	refs map[string]kit.MessageRef

	denied atomic.Bool
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		refs:    map[string]kit.MessageRef{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.adapter != nil
}

// Apply swaps limits and target. Already queued alerts use the new settings.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	s.cfg = cfg
	// burst = rate so a show followed by a cancel isn't held back
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the worker. It is idempotent and a no-op when disabled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled || s.adapter == nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// alerts are best-effort and must not take the timer down
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	sup.GoRestart("worker", func(c context.Context) error {
		s.workerLoop(c, q)
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("notifier worker exited unexpectedly")
	})
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Show posts a, replacing any message previously shown under a.ID.
func (s *Service) Show(ctx context.Context, a Alert) error { return s.enqueue(ctx, opShow, a) }

// Update edits the message shown under a.ID, posting it if there is none.
func (s *Service) Update(ctx context.Context, a Alert) error {
	return s.enqueue(ctx, opUpdate, a)
}

// Cancel removes the message shown under id.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.enqueue(ctx, opCancel, Alert{ID: id})
}

func (s *Service) enqueue(ctx context.Context, o op, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- job{op: o, alert: a}:
		return nil
	default:
		s.publish(EventDropped, a.ID, o, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.handle(ctx, j)
		}
	}
}

func (s *Service) handle(ctx context.Context, j job) {
	s.mu.Lock()
	target := s.cfg.Target
	s.mu.Unlock()

	id := j.alert.ID
	ref, have := s.refs[id]
	var err error
	switch j.op {
	case opShow:
		if have {
			_ = s.withRetry(ctx, func(c context.Context) error { return s.adapter.Delete(c, ref) })
			delete(s.refs, id)
		}
		err = s.post(ctx, target, j.alert)
	case opUpdate:
		if !have {
			err = s.post(ctx, target, j.alert)
			break
		}
		opt := &kit.SendOptions{Silent: true, DisablePreview: true}
		err = s.withRetry(ctx, func(c context.Context) error { return s.adapter.EditText(c, ref, j.alert.text(), opt) })
		if err != nil && !errors.Is(err, kit.ErrForbidden) && ctx.Err() == nil {
			// the message may have been deleted by the user; post a fresh one
			delete(s.refs, id)
			err = s.post(ctx, target, Alert{ID: id, Title: j.alert.Title, Body: j.alert.Body, Ongoing: j.alert.Ongoing, Silent: true})
		}
	case opCancel:
		if !have {
			return
		}
		delete(s.refs, id)
		err = s.withRetry(ctx, func(c context.Context) error { return s.adapter.Delete(c, ref) })
	}

	switch {
	case err == nil:
		s.denied.Store(false)
		s.publish(EventSent, id, j.op, nil)
	case errors.Is(err, kit.ErrForbidden):
		if s.denied.CompareAndSwap(false, true) {
			s.log.Warn("alert delivery not permitted; timer continues without alerts", logx.String("id", id), logx.Err(err))
			s.publish(EventPermissionDenied, id, j.op, err)
		}
	case ctx.Err() != nil:
	default:
		s.log.Debug("alert delivery failed", logx.String("id", id), logx.String("op", j.op.String()), logx.Err(err))
		s.publish(EventFailed, id, j.op, err)
	}
}

func (s *Service) post(ctx context.Context, to kit.ChatTarget, a Alert) error {
	opt := &kit.SendOptions{Silent: a.Silent, DisablePreview: true}
	var ref kit.MessageRef
	err := s.withRetry(ctx, func(c context.Context) error {
		r, err := s.adapter.SendText(c, to, a.text(), opt)
		ref = r
		return err
	})
	if err == nil && !ref.IsZero() {
		s.refs[a.ID] = ref
	}
	return err
}

// withRetry runs call under the rate limiter, retrying transient failures.
func (s *Service) withRetry(ctx context.Context, call func(context.Context) error) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := call(callCtx)
		cancel()
		if err == nil || errors.Is(err, kit.ErrForbidden) {
			return err
		}
		lastErr = err
		if attempt >= attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func (s *Service) publish(typ, id string, o op, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := AlertEvent{ID: id, Op: o.String(), At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1; the delay is for the next attempt.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	return min(max(d, 0), cfg.RetryMaxDelay)
}
