package config

// Config is the daemon configuration file (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "25m", "1h").
type Config struct {
	Timer       TimerConfig       `json:"timer"`
	Storage     StorageConfig     `json:"storage"`
	Logging     LoggingConfig     `json:"logging"`
	Telegram    TelegramConfig    `json:"telegram"`
	Alerts      AlertsConfig      `json:"alerts"`
	Control     ControlConfig     `json:"control"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Systemd     SystemdConfig     `json:"systemd"`
}

// TimerConfig seeds the duration settings and tunes the countdown.
//
// work/short_rest/long_rest/long_rest_threshold only fill settings keys the
// store does not have yet; a hot-reloaded change to them is written through.
type TimerConfig struct {
	Work              string `json:"work,omitempty"`                // default 25m
	ShortRest         string `json:"short_rest,omitempty"`          // default 5m
	LongRest          string `json:"long_rest,omitempty"`           // default 25m
	LongRestThreshold string `json:"long_rest_threshold,omitempty"` // default 60m
	TickInterval      string `json:"tick_interval,omitempty"`       // default 1s
	// ExactWake arms a suspend-piercing alarm at every phase deadline.
	// Pointer so omission means true.
	ExactWake *bool `json:"exact_wake,omitempty"`
}

// StorageConfig selects the settings/checkpoint store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pomodorod.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives phase alerts and log lines.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// AlertsConfig controls the alert pipeline (phase-start alert, progress
// updates, cancel on pause/reset).
type AlertsConfig struct {
	Enabled          bool   `json:"enabled"`
	ProgressInterval string `json:"progress_interval,omitempty"` // default 1m; "0s" disables progress edits
	QueueSize        int    `json:"queue_size,omitempty"`
	RatePerSec       int    `json:"rate_per_sec,omitempty"`
	RetryMax         int    `json:"retry_max,omitempty"`
	RetryBase        string `json:"retry_base,omitempty"`
}

// ControlConfig controls the HTTP control API.
//
// A non-loopback addr requires Token (Authorization: Bearer <token>).
type ControlConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:8425
	Token   string `json:"token,omitempty"`
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool `json:"pprof,omitempty"`
}

// MaintenanceConfig holds cron specs for housekeeping jobs. Empty disables a job.
type MaintenanceConfig struct {
	Compact   string `json:"compact,omitempty"`    // e.g. "@every 1h"
	IdleReset string `json:"idle_reset,omitempty"` // e.g. "0 4 * * *"
	Timezone  string `json:"timezone,omitempty"`
}

type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}
