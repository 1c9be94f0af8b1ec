package transport

import (
	"context"
	"errors"
)

// ErrForbidden is returned by adapters when the platform refuses delivery
// because the user has not granted (or has revoked) permission, e.g. the bot
// was blocked or removed from the chat.
var ErrForbidden = errors.New("transport: delivery forbidden")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Callback is a press of an inline keyboard button.
type Callback struct {
	ID        string
	ChatID    int64
	ThreadID  int
	MessageID int
	FromID    int64
	Data      string
}

// Ref is the message carrying the pressed keyboard.
func (c Callback) Ref() MessageRef {
	return MessageRef{ChatID: c.ChatID, ThreadID: c.ThreadID, MessageID: c.MessageID}
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Silent delivers without sound/vibration on the receiving device.
	Silent bool
	// Keyboard is an inline keyboard, one slice per row.
	Keyboard [][]Button
}

// Button is an inline keyboard button; Data comes back in a Callback.
type Button struct {
	Text string
	Data string
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	Delete(ctx context.Context, ref MessageRef) error
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// CallbackAnswerer acknowledges a Callback, optionally with a short toast.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, id, text string) error
}
