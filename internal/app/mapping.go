package app

import (
	"strings"
	"time"

	"pomodorod/internal/config"
	"pomodorod/internal/daemon"
	"pomodorod/internal/maintenance"
	"pomodorod/internal/notifier"
	"pomodorod/internal/pomodoro"
	"pomodorod/internal/storage"
	kit "pomodorod/internal/transport"
	"pomodorod/internal/transport/httpapi"
	logx "pomodorod/pkg/logx"
)

// Mappers run after config.Validate, so duration parse errors cannot occur
// here and unset values take their defaults.

const defaultCompactSpec = "@every 1h"

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second),
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			// log lines need the bot to deliver them
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// mapDurations fills unset timer fields from the built-in defaults.
func mapDurations(cfg *config.Config) pomodoro.Durations {
	def := pomodoro.DefaultDurations()
	t := cfg.Timer
	return pomodoro.Durations{
		Work:              config.ParseDurationOrDefault("timer.work", t.Work, def.Work),
		ShortRest:         config.ParseDurationOrDefault("timer.short_rest", t.ShortRest, def.ShortRest),
		LongRest:          config.ParseDurationOrDefault("timer.long_rest", t.LongRest, def.LongRest),
		LongRestThreshold: config.ParseDurationOrDefault("timer.long_rest_threshold", t.LongRestThreshold, def.LongRestThreshold),
	}
}

// changedDurationKeys lists the settings keys whose timer field differs
// between two configs.
func changedDurationKeys(oldCfg, newCfg *config.Config) []pomodoro.DurationKey {
	o, n := oldCfg.Timer, newCfg.Timer
	var out []pomodoro.DurationKey
	for _, f := range []struct {
		key      pomodoro.DurationKey
		old, new string
	}{
		{pomodoro.KeyWork, o.Work, n.Work},
		{pomodoro.KeyShortRest, o.ShortRest, n.ShortRest},
		{pomodoro.KeyLongRest, o.LongRest, n.LongRest},
		{pomodoro.KeyLongRestThreshold, o.LongRestThreshold, n.LongRestThreshold},
	} {
		if strings.TrimSpace(f.old) != strings.TrimSpace(f.new) {
			out = append(out, f.key)
		}
	}
	return out
}

func mapTickInterval(cfg *config.Config) time.Duration {
	return config.ParseDurationOrDefault("timer.tick_interval", cfg.Timer.TickInterval, time.Second)
}

func exactWake(cfg *config.Config) bool {
	return cfg.Timer.ExactWake == nil || *cfg.Timer.ExactWake
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	a := cfg.Alerts
	return notifier.Config{
		Enabled:    a.Enabled && cfg.Telegram.Enabled,
		Target:     kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
		QueueSize:  a.QueueSize,
		RatePerSec: a.RatePerSec,
		RetryMax:   a.RetryMax,
		RetryBase:  config.ParseDurationOrDefault("alerts.retry_base", a.RetryBase, 500*time.Millisecond),
	}
}

// mapProgressInterval returns the minimum gap between progress edits. An
// explicit "0s" turns progress edits off.
func mapProgressInterval(cfg *config.Config) time.Duration {
	raw := strings.TrimSpace(cfg.Alerts.ProgressInterval)
	if raw == "" {
		return time.Minute
	}
	d, err := config.ParseDurationField("alerts.progress_interval", raw)
	if err != nil {
		return time.Minute
	}
	if d == 0 {
		return -1
	}
	return d
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	c := cfg.Control
	addr := strings.TrimSpace(c.Addr)
	if addr == "" {
		addr = httpapi.DefaultAddr
	}
	return httpapi.Config{
		Enabled: c.Enabled,
		Addr:    addr,
		Token:   strings.TrimSpace(c.Token),
		Pprof:   c.Pprof,
	}
}

func mapMaintenanceConfig(cfg *config.Config) maintenance.Config {
	m := cfg.Maintenance
	compact := strings.TrimSpace(m.Compact)
	if compact == "" {
		compact = defaultCompactSpec
	}
	if strings.EqualFold(compact, "off") {
		compact = ""
	}
	return maintenance.Config{
		Compact:   compact,
		IdleReset: strings.TrimSpace(m.IdleReset),
		Timezone:  strings.TrimSpace(m.Timezone),
	}
}

func mapDaemonConfig(cfg *config.Config) daemon.Config {
	return daemon.Config{Notify: cfg.Systemd.Notify, Watchdog: cfg.Systemd.Watchdog}
}

func mapTelegramPollTimeout(cfg *config.Config) time.Duration {
	return config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
}
