package pomodoro

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pomodorod/internal/clock"
	"pomodorod/internal/storage"
	logx "pomodorod/pkg/logx"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clk   *clock.Manual
	st    storage.Store
	set   *Settings
	cd    *Countdown
	runID int
}

func newFixture(t *testing.T, d Durations) *fixture {
	t.Helper()
	f := &fixture{clk: clock.NewManual(t0, 10*time.Hour), st: storage.NewMemory()}
	t.Cleanup(func() { _ = f.st.Close() })
	f.set = NewSettings(f.st, SettingsOptions{Defaults: d, Min: time.Millisecond}, logx.Nop())
	if err := f.set.Seed(context.Background(), d); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	f.cd = f.newCountdown()
	return f
}

// newCountdown builds a countdown on the fixture's store, as a restarted
// process would.
func (f *fixture) newCountdown() *Countdown {
	return NewCountdown(CountdownOptions{
		Clock:       f.clk,
		Durations:   f.set,
		Checkpoints: NewCheckpointStore(f.st),
		NewRunID: func() string {
			f.runID++
			return fmt.Sprintf("run-%d", f.runID)
		},
	})
}

func types(evs []Event) []EventType {
	out := make([]EventType, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}

func find(evs []Event, typ EventType) (Event, bool) {
	for _, e := range evs {
		if e.Type == typ {
			return e, true
		}
	}
	return Event{}, false
}

func count(evs []Event, typ EventType) int {
	n := 0
	for _, e := range evs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }
