package pomodoro

import (
	"context"
	"testing"
	"time"
)

func TestStartPauseResumeRunsForFullDuration(t *testing.T) {
	ctx := context.Background()
	for _, d := range []time.Duration{time.Second, 25 * time.Minute, 2 * time.Hour} {
		t.Run(d.String(), func(t *testing.T) {
			f := newFixture(t, DefaultDurations())
			start := f.clk.Mono()
			f.cd.Start(ctx, d, PhaseWork)

			paused, ok := find(f.cd.Pause(ctx), EventPaused)
			if !ok || paused.ElapsedMs != 0 || paused.Remaining() != d {
				t.Fatalf("PAUSED = %+v, want elapsed 0 remaining %v", paused, d)
			}
			if evs := f.cd.Resume(ctx); len(evs) != 1 || evs[0].Remaining() != d {
				t.Fatalf("Resume events = %+v", evs)
			}

			f.clk.Advance(d - time.Millisecond)
			if evs := f.cd.Tick(ctx); count(evs, EventFinished) != 0 {
				t.Fatalf("finished early: %v", types(evs))
			}
			f.clk.Advance(time.Millisecond)
			evs := f.cd.Tick(ctx)
			done, ok := find(evs, EventFinished)
			if !ok {
				t.Fatalf("not finished after %v: %v", d, types(evs))
			}
			if done.DurationMs != d.Milliseconds() {
				t.Fatalf("FINISHED duration = %d, want %d", done.DurationMs, d.Milliseconds())
			}
			if got := f.clk.Mono() - start; got != d {
				t.Fatalf("total time = %v, want %v", got, d)
			}
		})
	}
}

func TestPauseTwiceEqualsPauseOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultDurations())
	f.cd.Start(ctx, 0, "")
	f.clk.Advance(42 * time.Second)

	first := f.cd.Pause(ctx)
	snap := f.cd.Snapshot(ctx)
	if second := f.cd.Pause(ctx); second != nil {
		t.Fatalf("second Pause emitted %v", types(second))
	}
	f.clk.Advance(time.Minute)
	again := f.cd.Snapshot(ctx)
	if again.RemainingMs != snap.RemainingMs || again.Status != StatusPaused || again.WorkedMs != snap.WorkedMs {
		t.Fatalf("state changed after second pause: %+v vs %+v", again, snap)
	}
	if e, _ := find(first, EventPaused); e.ElapsedMs != 42000 {
		t.Fatalf("elapsed = %d, want 42000", e.ElapsedMs)
	}
	if _, ok, _ := NewCheckpointStore(f.st).Load(ctx); ok {
		t.Fatal("checkpoint not cleared on pause")
	}
}

func TestPauseResumePreservesRemainingExactly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultDurations())
	f.cd.Start(ctx, 0, PhaseWork)
	f.clk.Advance(7*time.Second + 300*time.Millisecond)
	f.cd.Tick(ctx)

	before := f.cd.Remaining()
	f.cd.Pause(ctx)
	f.cd.Resume(ctx)
	if after := f.cd.Remaining(); after != before {
		t.Fatalf("remaining %v after resume, want %v", after, before)
	}
	cp, ok, err := NewCheckpointStore(f.st).Load(ctx)
	if err != nil || !ok {
		t.Fatalf("checkpoint not rewritten on resume: ok=%v err=%v", ok, err)
	}
	if cp.PhaseDuration() != 25*time.Minute {
		t.Fatalf("checkpoint phase length = %v, want 25m", cp.PhaseDuration())
	}
}

func TestInvalidTransitionsAreNoOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultDurations())
	if evs := f.cd.Pause(ctx); evs != nil {
		t.Fatalf("Pause while idle = %v", types(evs))
	}
	if evs := f.cd.Resume(ctx); evs != nil {
		t.Fatalf("Resume while idle = %v", types(evs))
	}
	f.cd.Start(ctx, 0, PhaseWork)
	if evs := f.cd.Resume(ctx); evs != nil {
		t.Fatalf("Resume while running = %v", types(evs))
	}
	if f.cd.Status() != StatusRunning {
		t.Fatalf("status = %s", f.cd.Status())
	}
}

func TestThresholdAccountingPicksLongRest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Durations{
		Work:              ms(1500000),
		ShortRest:         ms(300000),
		LongRest:          ms(1500000),
		LongRestThreshold: ms(3600000),
	})
	f.cd.Start(ctx, 0, PhaseWork)

	wantNext := []Phase{PhaseRest, PhaseRest, PhaseLongRest}
	wantWorked := []time.Duration{ms(1500000), ms(3000000), 0}
	for i := range wantNext {
		// Irregular ticking: one tick, a long gap, then the rest.
		f.clk.Advance(time.Second)
		f.cd.Tick(ctx)
		f.clk.Advance(ms(1000000))
		f.cd.Tick(ctx)
		f.clk.Advance(ms(499000))
		evs := f.cd.Tick(ctx)
		if count(evs, EventFinished) != 1 {
			t.Fatalf("cycle %d: events %v", i, types(evs))
		}
		if got := f.cd.Phase(); got != wantNext[i] {
			t.Fatalf("cycle %d: phase = %s, want %s", i, got, wantNext[i])
		}
		if got := f.cd.Worked(); got != wantWorked[i] {
			t.Fatalf("cycle %d: worked = %v, want %v", i, got, wantWorked[i])
		}
		if f.cd.Phase() == PhaseRest {
			f.clk.Advance(ms(300000))
			f.cd.Tick(ctx)
			if f.cd.Phase() != PhaseWork {
				t.Fatalf("cycle %d: rest did not return to WORK", i)
			}
		}
	}
	if got := f.cd.Remaining(); got != ms(1500000) {
		t.Fatalf("long rest remaining = %v", got)
	}
}

func TestDelayedTickCreditsOnlyUpToDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Durations{Work: ms(1000), ShortRest: ms(500), LongRest: ms(800), LongRestThreshold: ms(5000)})
	f.cd.Start(ctx, 0, PhaseWork)
	f.clk.Advance(time.Hour)
	f.cd.Tick(ctx)
	if got := f.cd.Worked(); got != ms(1000) {
		t.Fatalf("worked = %v, want 1s", got)
	}
}

func TestEndToEndWorkRestWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Durations{Work: ms(1000), ShortRest: ms(500), LongRest: ms(800), LongRestThreshold: ms(2000)})
	if e := f.cd.Start(ctx, 0, ""); e[0].Phase != PhaseWork || e[0].DurationMs != 1000 {
		t.Fatalf("START = %+v", e[0])
	}

	var all []Event
	for range 10 {
		f.clk.Advance(100 * time.Millisecond)
		all = append(all, f.cd.Tick(ctx)...)
	}
	if count(all, EventTick) != 10 || count(all, EventFinished) != 1 {
		t.Fatalf("events = %v", types(all))
	}
	next, _ := find(all, EventStarted)
	if next.Phase != PhaseRest || next.DurationMs != 500 || next.WorkedMs != 1000 {
		t.Fatalf("next = %+v, want REST 500ms with 1000ms worked", next)
	}

	f.clk.Advance(500 * time.Millisecond)
	evs := f.cd.Tick(ctx)
	if count(evs, EventFinished) != 1 || f.cd.Phase() != PhaseWork {
		t.Fatalf("after rest: phase %s events %v", f.cd.Phase(), types(evs))
	}
}

func TestResetReturnsToIdleWork(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultDurations())
	f.cd.Start(ctx, 0, PhaseRest)
	f.clk.Advance(time.Minute)
	evs := f.cd.Reset(ctx, ReasonUser)
	if len(evs) != 1 || evs[0].Type != EventReset || evs[0].Reason != ReasonUser {
		t.Fatalf("Reset events = %+v", evs)
	}
	s := f.cd.Snapshot(ctx)
	if s.Status != StatusIdle || s.Phase != PhaseWork || s.WorkedMs != 0 || s.RemainingMs != (25*time.Minute).Milliseconds() {
		t.Fatalf("snapshot after reset = %+v", s)
	}
	if _, ok, _ := NewCheckpointStore(f.st).Load(ctx); ok {
		t.Fatal("checkpoint not cleared on reset")
	}
}

func TestNextPhase(t *testing.T) {
	cases := []struct {
		cur            Phase
		worked, thresh time.Duration
		want           Phase
		key            DurationKey
	}{
		{PhaseWork, 0, time.Hour, PhaseRest, KeyShortRest},
		{PhaseWork, time.Hour, time.Hour, PhaseLongRest, KeyLongRest},
		{PhaseRest, time.Hour, time.Hour, PhaseWork, KeyWork},
		{PhaseLongRest, 0, time.Hour, PhaseWork, KeyWork},
	}
	for _, c := range cases {
		p, k := NextPhase(c.cur, c.worked, c.thresh)
		if p != c.want || k != c.key {
			t.Fatalf("NextPhase(%s, %v, %v) = %s, %s", c.cur, c.worked, c.thresh, p, k)
		}
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown phase")
		}
	}()
	NextPhase("NAP", 0, 0)
}
