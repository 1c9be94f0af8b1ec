package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// CronParser accepts standard five-field specs plus descriptors ("@every 1h").
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks everything that can be checked without side effects. It
// reports all problems at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	dur("timer.work", cfg.Timer.Work)
	dur("timer.short_rest", cfg.Timer.ShortRest)
	dur("timer.long_rest", cfg.Timer.LongRest)
	dur("timer.long_rest_threshold", cfg.Timer.LongRestThreshold)
	dur("timer.tick_interval", cfg.Timer.TickInterval)
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	dur("alerts.progress_interval", cfg.Alerts.ProgressInterval)
	dur("alerts.retry_base", cfg.Alerts.RetryBase)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required"))
		}
	case "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram.enabled"))
	}
	if cfg.Alerts.Enabled && (!cfg.Telegram.Enabled || cfg.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("alerts need telegram.enabled and telegram.chat_id"))
	}
	if cfg.Alerts.RatePerSec < 0 || cfg.Alerts.RetryMax < 0 || cfg.Alerts.QueueSize < 0 {
		errs = append(errs, errors.New("alerts: negative queue_size/rate_per_sec/retry_max"))
	}

	if cfg.Control.Enabled && strings.TrimSpace(cfg.Control.Addr) != "" {
		if _, _, err := net.SplitHostPort(cfg.Control.Addr); err != nil {
			errs = append(errs, fmt.Errorf("control.addr: %w", err))
		}
	}

	for path, spec := range map[string]string{
		"maintenance.compact":    cfg.Maintenance.Compact,
		"maintenance.idle_reset": cfg.Maintenance.IdleReset,
	} {
		if s := strings.TrimSpace(spec); s == "" || strings.EqualFold(s, "off") {
			continue
		}
		if _, err := CronParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
