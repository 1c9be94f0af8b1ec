package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pomodorod/internal/clock"
	"pomodorod/internal/config"
	"pomodorod/internal/pomodoro"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func testConfig(dir string) string {
	return `
timer:
  work: 2m
  exact_wake: false
storage:
  driver: file
  path: ` + filepath.Join(dir, "state") + `
logging:
  level: error
control:
  enabled: true
  addr: 127.0.0.1:0
`
}

func startApp(t *testing.T, path string) *App {
	t.Helper()
	a, err := newApp(path, clock.System())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-a.http.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("http api never became ready")
	}
	return a
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func getSnapshot(t *testing.T, method, url string) pomodoro.Snapshot {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s %s = %d", method, url, resp.StatusCode)
	}
	var s pomodoro.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return s
}

func TestAppRunsAndRestoresAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, testConfig(dir))

	a := startApp(t, path)
	base := "http://" + a.http.Addr()
	s := getSnapshot(t, http.MethodPost, base+"/v1/timer/start")
	if s.Status != pomodoro.StatusRunning || s.Phase != pomodoro.PhaseWork || s.PhaseDurationMs != (2*time.Minute).Milliseconds() {
		t.Fatalf("after start: %+v", s)
	}
	if err := a.health(); err != nil {
		t.Fatalf("health: %v", err)
	}
	stopApp(t, a)
	if a.health() == nil {
		t.Fatal("healthy after stop")
	}

	b := startApp(t, path)
	defer stopApp(t, b)
	// the host restores the checkpoint on its own goroutine
	deadline := time.Now().Add(3 * time.Second)
	for {
		s = getSnapshot(t, http.MethodGet, "http://"+b.http.Addr()+"/v1/timer")
		if s.Status == pomodoro.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("after restart: %+v", s)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if s.Phase != pomodoro.PhaseWork {
		t.Fatalf("restored phase = %s", s.Phase)
	}
	if s.RemainingMs <= 0 || s.RemainingMs > (2*time.Minute).Milliseconds() {
		t.Fatalf("restored remaining = %d", s.RemainingMs)
	}
}

func TestApplyConfigWritesOnlyChangedTimerKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, testConfig(dir))
	a, err := newApp(path, clock.System())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.store.Close()
	ctx := context.Background()

	// a runtime change the reload must not clobber
	if _, err := a.settings.Set(ctx, pomodoro.KeyShortRest, 7*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	newCfg.Timer.Work = "45m"
	newCfg.Control.Enabled = false
	a.applyConfig(ctx, oldCfg, &newCfg)

	d := a.settings.Durations(ctx)
	if d.Work != 45*time.Minute {
		t.Fatalf("work = %v", d.Work)
	}
	if d.ShortRest != 7*time.Minute {
		t.Fatalf("short rest = %v, runtime value lost", d.ShortRest)
	}
}

func TestMappingDefaults(t *testing.T) {
	cfg := &config.Config{}
	if got := mapProgressInterval(cfg); got != time.Minute {
		t.Fatalf("progress interval = %v", got)
	}
	cfg.Alerts.ProgressInterval = "0s"
	if got := mapProgressInterval(cfg); got >= 0 {
		t.Fatalf("0s should disable progress edits, got %v", got)
	}
	if got := mapMaintenanceConfig(cfg).Compact; got != defaultCompactSpec {
		t.Fatalf("compact = %q", got)
	}
	cfg.Maintenance.Compact = "off"
	if got := mapMaintenanceConfig(cfg).Compact; got != "" {
		t.Fatalf("compact off = %q", got)
	}
	if !exactWake(cfg) {
		t.Fatal("exact wake should default on")
	}
	if got := mapDurations(cfg); got != pomodoro.DefaultDurations() {
		t.Fatalf("durations = %+v", got)
	}
	if got := mapStorageConfig(cfg).Driver; got != "file" {
		t.Fatalf("storage driver = %q", got)
	}
	// alerts need the bot
	cfg.Alerts.Enabled = true
	if mapNotifierConfig(cfg).Enabled {
		t.Fatal("alerts enabled without telegram")
	}
}

func TestChangedDurationKeys(t *testing.T) {
	a := &config.Config{Timer: config.TimerConfig{Work: "25m", LongRest: "20m"}}
	b := &config.Config{Timer: config.TimerConfig{Work: " 25m ", ShortRest: "3m"}}
	got := changedDurationKeys(a, b)
	keys := make([]string, 0, len(got))
	for _, k := range got {
		keys = append(keys, string(k))
	}
	if s := strings.Join(keys, ","); s != "shortRest,longRest" {
		t.Fatalf("changed = %s", s)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		e    pomodoro.Event
		want string
	}{
		{pomodoro.Event{Type: pomodoro.EventStarted, Phase: pomodoro.PhaseWork, MinutesLeft: 25}, "WORK running, 25:00 left"},
		{pomodoro.Event{Type: pomodoro.EventPaused, Phase: pomodoro.PhaseRest, MinutesLeft: 3, SecondsLeft: 7}, "REST paused, 03:07 left"},
		{pomodoro.Event{Type: pomodoro.EventFinished, Phase: pomodoro.PhaseLongRest}, "LONG_REST finished"},
		{pomodoro.Event{Type: pomodoro.EventReset, Phase: pomodoro.PhaseWork}, "idle"},
	}
	for _, tt := range tests {
		if got := statusLine(tt.e); got != tt.want {
			t.Fatalf("statusLine(%s) = %q, want %q", tt.e.Type, got, tt.want)
		}
	}
}
