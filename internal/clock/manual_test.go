package clock

import (
	"testing"
	"time"
)

func TestManualTickerFiresOnAdvance(t *testing.T) {
	t.Parallel()
	m := NewManual(time.Unix(0, 0), time.Hour)
	tk := m.NewTicker(time.Second)

	m.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	m.Advance(600 * time.Millisecond)
	select {
	case <-tk.C():
	default:
		t.Fatal("ticker did not fire")
	}

	// A large advance still buffers a single tick.
	m.Advance(10 * time.Second)
	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("expected a single buffered tick")
	default:
	}

	tk.Stop()
	if m.Tickers() != 0 {
		t.Fatalf("tickers = %d after Stop", m.Tickers())
	}
}

func TestManualJumpSkipsTicks(t *testing.T) {
	t.Parallel()
	m := NewManual(time.Unix(0, 0), 0)
	tk := m.NewTicker(time.Second)
	m.Jump(time.Minute)
	if got := m.Mono(); got != time.Minute {
		t.Fatalf("Mono = %v, want 1m", got)
	}
	select {
	case <-tk.C():
		t.Fatal("Jump must not fire tickers")
	default:
	}
}

func TestSystemMonoAdvances(t *testing.T) {
	t.Parallel()
	c := System()
	a := c.Mono()
	time.Sleep(5 * time.Millisecond)
	if b := c.Mono(); b <= a {
		t.Fatalf("Mono did not advance: %v -> %v", a, b)
	}
	if c.Epoch() == "" {
		t.Fatal("empty epoch")
	}
}
