package clock

import (
	"sync"
	"time"
)

// Manual is a Clock driven by the caller. Tickers created from it fire only
// when Advance moves time past their next deadline.
type Manual struct {
	mu      sync.Mutex
	wall    time.Time
	mono    time.Duration
	epoch   string
	tickers []*manualTicker
}

func NewManual(wall time.Time, mono time.Duration) *Manual {
	return &Manual{wall: wall, mono: mono, epoch: "manual"}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wall
}

func (m *Manual) Mono() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mono
}

func (m *Manual) Epoch() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Reboot starts a new epoch with the monotonic clock reset to mono, while
// wall time keeps going forward by gap.
func (m *Manual) Reboot(epoch string, mono, gap time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = epoch
	m.mono = mono
	m.wall = m.wall.Add(gap)
}

// Advance moves both clocks forward by d and fires due tickers (at most one
// buffered tick each, like time.Ticker).
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.wall = m.wall.Add(d)
	m.mono += d
	now, wall := m.mono, m.wall
	tickers := append([]*manualTicker(nil), m.tickers...)
	m.mu.Unlock()

	for _, t := range tickers {
		t.fire(now, wall)
	}
}

// Jump moves both clocks forward by d without firing tickers, as if the
// process had been frozen for d.
func (m *Manual) Jump(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wall = m.wall.Add(d)
	m.mono += d
	for _, t := range m.tickers {
		t.mu.Lock()
		for t.next <= m.mono {
			t.next += t.period
		}
		t.mu.Unlock()
	}
}

// Tickers reports how many tickers are live.
func (m *Manual) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{owner: m, period: d, next: m.mono + d, ch: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

type manualTicker struct {
	owner  *Manual
	mu     sync.Mutex
	period time.Duration
	next   time.Duration
	ch     chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.tickers {
		if x == t {
			m.tickers = append(m.tickers[:i], m.tickers[i+1:]...)
			return
		}
	}
}

func (t *manualTicker) fire(now time.Duration, wall time.Time) {
	t.mu.Lock()
	due := false
	for t.next <= now {
		t.next += t.period
		due = true
	}
	t.mu.Unlock()
	if !due {
		return
	}
	select {
	case t.ch <- wall:
	default:
	}
}
