package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	logx "pomodorod/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTestNotifier(cfg Config, every time.Duration) (*Notifier, *recorder) {
	rec := &recorder{}
	n := New(cfg, logx.Nop())
	n.notify = rec.notify
	n.watchdog = func(bool) (time.Duration, error) { return every, nil }
	return n, rec
}

func TestNotifyDisabledSendsNothing(t *testing.T) {
	n, rec := newTestNotifier(Config{}, 0)
	n.Ready()
	n.Status("idle")
	n.Stopping()
	if len(rec.states) != 0 {
		t.Fatalf("states = %v", rec.states)
	}
}

func TestNotifyStates(t *testing.T) {
	n, rec := newTestNotifier(Config{Notify: true}, 0)
	n.Ready()
	n.Status("work 24:59")
	n.Stopping()
	want := []string{sd.SdNotifyReady, "STATUS=work 24:59", sd.SdNotifyStopping}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v", rec.states)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, rec.states[i], want[i])
		}
	}
}

func TestReloadBracketsApply(t *testing.T) {
	n, rec := newTestNotifier(Config{Notify: true}, 0)
	n.Reload(func() { n.Status("applying") })
	want := []string{sd.SdNotifyReloading, "STATUS=applying", sd.SdNotifyReady}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v", rec.states)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, rec.states[i], want[i])
		}
	}

	// READY follows even when the reload panics
	func() {
		defer func() { _ = recover() }()
		n.Reload(func() { panic("bad config") })
	}()
	if rec.states[len(rec.states)-1] != sd.SdNotifyReady {
		t.Fatalf("last state = %q", rec.states[len(rec.states)-1])
	}
}

func TestWatchdogPingsWhileHealthy(t *testing.T) {
	n, rec := newTestNotifier(Config{Notify: true, Watchdog: true}, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var healthErr error
	var mu sync.Mutex
	go func() {
		done <- n.RunWatchdog(ctx, func() error {
			mu.Lock()
			defer mu.Unlock()
			return healthErr
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count(sd.SdNotifyWatchdog) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("no watchdog pings")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	healthErr = errors.New("stuck")
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	before := rec.count(sd.SdNotifyWatchdog)
	time.Sleep(60 * time.Millisecond)
	if after := rec.count(sd.SdNotifyWatchdog); after != before {
		t.Fatalf("pinged while unhealthy: %d -> %d", before, after)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunWatchdog: %v", err)
	}
}

func TestWatchdogOffReturnsImmediately(t *testing.T) {
	n, _ := newTestNotifier(Config{Notify: true, Watchdog: true}, 0)
	if err := n.RunWatchdog(context.Background(), nil); err != nil {
		t.Fatalf("RunWatchdog: %v", err)
	}
}
