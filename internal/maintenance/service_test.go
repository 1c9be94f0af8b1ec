package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "pomodorod/pkg/logx"
)

type countStore struct{ n atomic.Int32 }

func (s *countStore) Compact(context.Context) error {
	s.n.Add(1)
	return nil
}

type idleTimer struct {
	n   atomic.Int32
	err error
}

func (t *idleTimer) ResetWorkedIfIdle(context.Context) (bool, error) {
	t.n.Add(1)
	return t.err == nil, t.err
}

func TestStartListsEntries(t *testing.T) {
	s := New(Config{Compact: "0 3 * * *", IdleReset: "@daily", Timezone: "UTC"}, &countStore{}, &idleTimer{}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	got := s.Entries()
	if len(got) != 2 || got[0].Name != JobCompact || got[1].Name != JobIdleReset {
		t.Fatalf("entries = %+v", got)
	}
	for _, e := range got {
		if e.Next.IsZero() {
			t.Fatalf("%s has no next run", e.Name)
		}
		if e.Next.Location().String() != "UTC" {
			t.Fatalf("%s next in %s", e.Name, e.Next.Location())
		}
	}
	if got[0].Next.Hour() != 3 || got[0].Next.Minute() != 0 {
		t.Fatalf("compact next = %v", got[0].Next)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(Config{Compact: "every tuesday"}, &countStore{}, nil, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
	if s.Entries() != nil {
		t.Fatal("cron running after failed start")
	}
	if err := New(Config{IdleReset: "@daily"}, nil, nil, logx.Nop()).Start(context.Background()); err == nil {
		t.Fatal("expected missing timer error")
	}
}

func TestRunNow(t *testing.T) {
	st := &countStore{}
	tm := &idleTimer{}
	s := New(Config{Compact: "@hourly", IdleReset: "0 4 * * *"}, st, tm, logx.Nop())
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	if err := s.RunNow(ctx, JobCompact); err != nil || st.n.Load() != 1 {
		t.Fatalf("compact: err=%v n=%d", err, st.n.Load())
	}
	if err := s.RunNow(ctx, JobIdleReset); err != nil || tm.n.Load() != 1 {
		t.Fatalf("idle reset: err=%v n=%d", err, tm.n.Load())
	}
	if err := s.RunNow(ctx, "vacuum"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("unknown job err = %v", err)
	}
}

func TestApplyRestartsAndDisables(t *testing.T) {
	s := New(Config{Compact: "@hourly"}, &countStore{}, &idleTimer{}, logx.Nop())
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	if err := s.Apply(ctx, Config{IdleReset: "@daily"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := s.Entries()
	if len(got) != 1 || got[0].Name != JobIdleReset {
		t.Fatalf("entries after apply = %+v", got)
	}
	if err := s.RunNow(ctx, JobCompact); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("disabled job still runnable: %v", err)
	}
}

func TestEveryJobFires(t *testing.T) {
	st := &countStore{}
	s := New(Config{Compact: "@every 1s"}, st, nil, logx.Nop())
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	// first run lands within every+spread, so at most 2s out
	deadline := time.Now().Add(4 * time.Second)
	for st.n.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("@every job never fired")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestIntervalSpreadOnlyDelaysFirstRun(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched, jitter := intervalWithSpread(time.Hour, now, JobCompact)
	if jitter < 0 || jitter >= maxStartupSpread {
		t.Fatalf("jitter = %v", jitter)
	}
	first := sched.Next(now)
	if want := now.Add(time.Hour + jitter); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	second := sched.Next(first)
	if second.Sub(first) != time.Hour {
		t.Fatalf("second run %v after first", second.Sub(first))
	}
}
