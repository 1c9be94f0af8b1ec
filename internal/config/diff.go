package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pomodorod/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Timer, newCfg.Timer) {
		changed = append(changed, "timer")
		attrs = append(attrs,
			logx.String("timer.work", newCfg.Timer.Work),
			logx.String("timer.short_rest", newCfg.Timer.ShortRest),
			logx.String("timer.long_rest", newCfg.Timer.LongRest),
			logx.String("timer.long_rest_threshold", newCfg.Timer.LongRestThreshold),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Enabled != nt.Enabled || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) || ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.chat_set", nt.ChatID != 0),
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
		)
	}

	if oldCfg.Alerts != newCfg.Alerts {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.Bool("alerts.enabled", newCfg.Alerts.Enabled),
			logx.String("alerts.progress_interval", newCfg.Alerts.ProgressInterval),
			logx.Int("alerts.rate_per_sec", newCfg.Alerts.RatePerSec),
		)
	}

	if oldCfg.Control != newCfg.Control {
		changed = append(changed, "control")
		attrs = append(attrs,
			logx.Bool("control.enabled", newCfg.Control.Enabled),
			logx.String("control.addr", newCfg.Control.Addr),
			logx.Bool("control.pprof", newCfg.Control.Pprof),
			logx.Bool("control.token_set", newCfg.Control.Token != ""),
		)
	}

	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.String("maintenance.compact", newCfg.Maintenance.Compact),
			logx.String("maintenance.idle_reset", newCfg.Maintenance.IdleReset),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// Changed reports whether section appears in a SummarizeConfigChange result.
func Changed(sections []string, section string) bool {
	i := sort.SearchStrings(sections, section)
	return i < len(sections) && sections[i] == section
}
