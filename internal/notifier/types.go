package notifier

import (
	"time"

	kit "pomodorod/internal/transport"
)

// Config controls the async alert pipeline.
type Config struct {
	Enabled bool
	// Target is the chat alerts are delivered to.
	Target        kit.ChatTarget
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Alert is one user-visible notification. Alerts with the same ID replace
// each other rather than stack.
type Alert struct {
	ID    string
	Title string
	Body  string
	// Ongoing alerts describe a running countdown and are kept up to date.
	Ongoing bool
	// Silent delivers without sound.
	Silent bool
}

func (a Alert) text() string {
	prefix := "⚠️ "
	if a.Ongoing {
		prefix = "⏱ "
	}
	if a.Body == "" {
		return prefix + a.Title
	}
	return prefix + a.Title + "\n" + a.Body
}

type op uint8

const (
	opShow op = iota + 1
	opUpdate
	opCancel
)

func (o op) String() string {
	switch o {
	case opShow:
		return "show"
	case opUpdate:
		return "update"
	case opCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// AlertEvent is published on the event bus for pipeline lifecycle events.
type AlertEvent struct {
	ID    string    `json:"id"`
	Op    string    `json:"op"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

// Bus event types.
const (
	EventSent             = "alerts.sent"
	EventFailed           = "alerts.failed"
	EventDropped          = "alerts.dropped"
	EventPermissionDenied = "alerts.permission_denied"
)
