package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
timer:
  work: 50m
  short_rest: 10m
  tick_interval: 1s
storage:
  driver: sqlite
  path: ./pomodorod.db
logging:
  level: info
  console: true
control:
  enabled: true
  addr: 127.0.0.1:8425
maintenance:
  compact: "@every 1h"
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := NewConfigManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timer.Work != "50m" || cfg.Storage.Driver != "sqlite" || !cfg.Control.Enabled {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := ParseDurationOrDefault("timer.long_rest", cfg.Timer.LongRest, 25*time.Minute); got != 25*time.Minute {
		t.Fatalf("default long rest = %v", got)
	}
}

func TestLoadRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown.json":  `{"timer":{"work":"25m","snooze":"5m"},"storage":{"driver":"memory"}}`,
		"trailing.json": `{"storage":{"driver":"memory"}}{}`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		writeFile(t, path, body)
		if _, err := NewConfigManager(path).Load(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Timer:       TimerConfig{Work: "soon"},
		Storage:     StorageConfig{Driver: "etcd"},
		Telegram:    TelegramConfig{Enabled: true},
		Maintenance: MaintenanceConfig{Compact: "every hour"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"timer.work", "storage.driver", "telegram.token", "maintenance.compact"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
	if err := Validate(&Config{Storage: StorageConfig{Driver: "memory"}}); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"storage":{"driver":"memory"},"timer":{"work":"25m"}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(4)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond) // let the watcher register

	// An invalid file is rejected and the committed config stays.
	writeFile(t, path, `{"storage":{"driver":"etcd"}}`)
	time.Sleep(500 * time.Millisecond)
	if got := m.Get().Storage.Driver; got != "memory" {
		t.Fatalf("invalid config committed: driver=%q", got)
	}

	writeFile(t, path, `{"storage":{"driver":"memory"},"timer":{"work":"30m"}}`)
	select {
	case cfg := <-ch:
		if cfg.Timer.Work != "30m" {
			t.Fatalf("published work = %q", cfg.Timer.Work)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	old := &Config{Timer: TimerConfig{Work: "25m"}, Telegram: TelegramConfig{Token: "a"}}
	next := &Config{Timer: TimerConfig{Work: "30m"}, Telegram: TelegramConfig{Token: "b"}}
	changed, attrs := SummarizeConfigChange(old, next)
	if strings.Join(changed, ",") != "telegram,timer" {
		t.Fatalf("changed = %v", changed)
	}
	if !Changed(changed, "timer") || Changed(changed, "alerts") {
		t.Fatal("Changed lookup wrong")
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
}
