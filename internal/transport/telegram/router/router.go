// Package router turns Telegram text commands into handler calls.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	kit "pomodorod/internal/transport"
	logx "pomodorod/pkg/logx"
	"pomodorod/pkg/tgui"
)

var (
	ErrNotOwner = errors.New("command is restricted to owners")
	// ErrUsage makes the router reply with the command's usage line.
	ErrUsage = errors.New("bad usage")
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	OwnerOnly   bool
	Handle      HandlerFunc
}

// Request is one command or button press. For a button press Command is
// the action part of the callback data and Callback is set.
type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	Command  string
	Args     []string
	Callback *kit.Callback

	Adapter kit.Adapter

	ownerOnly bool
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.ReplyKeyboard(ctx, text, nil)
}

// ReplyKeyboard is Reply with an inline keyboard under the message.
func (r *Request) ReplyKeyboard(ctx context.Context, text string, kb [][]kit.Button) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML", Keyboard: kb})
	return err
}

// Edit replaces the message whose button was pressed. Outside a button
// press it replies instead.
func (r *Request) Edit(ctx context.Context, text string, kb [][]kit.Button) error {
	if r.Callback == nil {
		return r.ReplyKeyboard(ctx, text, kb)
	}
	return r.Adapter.EditText(ctx, r.Callback.Ref(), text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML", Keyboard: kb})
}

// ButtonHandler serves the inline buttons whose callback data starts with
// Scope (see tgui.Data).
type ButtonHandler struct {
	Scope     string
	OwnerOnly bool
	Handle    HandlerFunc
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	timeout time.Duration

	mu      sync.RWMutex
	cmds    map[string]*Command
	alias   map[string]*Command
	order   []*Command
	buttons map[string]ButtonHandler
	owners  []int64
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:     log.With(logx.String("comp", "telegram.router")),
		adapter: adapter,
		timeout: 10 * time.Second,
		cmds:    map[string]*Command{},
		alias:   map[string]*Command{},
		buttons: map[string]ButtonHandler{},
		owners:  append([]int64(nil), owners...),
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) ownersSnapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.owners...)
}

// Register adds commands. /help is always available.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cmds["help"]; !ok {
		help := Command{Name: "help", Description: "show commands", Usage: "/help", Handle: r.handleHelp}
		r.addLocked(help)
	}
	for _, c := range cmds {
		if c.Name == "" || c.Handle == nil {
			continue
		}
		r.addLocked(c)
	}
}

// RegisterButtons adds inline button handlers, replacing any with the same
// scope.
func (r *Router) RegisterButtons(hs ...ButtonHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		if h.Scope == "" || h.Handle == nil {
			continue
		}
		r.buttons[h.Scope] = h
	}
}

func (r *Router) addLocked(c Command) {
	name := sanitizeCommand(c.Name)
	if name == "" {
		return
	}
	c.Name = name
	cp := &c
	if _, exists := r.cmds[name]; !exists {
		r.order = append(r.order, cp)
	}
	r.cmds[name] = cp
	for _, a := range c.Aliases {
		if sa := sanitizeCommand(a); sa != "" {
			r.alias[sa] = cp
		}
	}
}

func (r *Router) lookup(word string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.cmds[word]; ok {
		return c, true
	}
	c, ok := r.alias[word]
	return c, ok
}

// Menu lists the registered commands for the client's command menu.
func (r *Router) Menu() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, c := range r.order {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = c.Name
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// PublishMenu pushes Menu to adapters that support a command menu.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, r.Menu())
}

// Run dispatches updates one at a time until ctx is canceled or updates is
// closed. Timer commands are serialized by the timer host anyway.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("command dispatcher started")
	defer r.log.Info("command dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Dispatch(ctx, up)
		}
	}
}

func (r *Router) chain(h HandlerFunc) HandlerFunc {
	return Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWOwnerOnly(r.ownersSnapshot),
		MWTimeout(r.timeout),
	)
}

// Dispatch handles one update. Errors are reported to the chat, never returned.
func (r *Router) Dispatch(ctx context.Context, up kit.Update) {
	switch {
	case up.Kind == kit.UpdateMessage && up.Message != nil:
		r.dispatchMessage(ctx, up)
	case up.Kind == kit.UpdateCallback && up.Callback != nil:
		r.dispatchCallback(ctx, up)
	}
}

func (r *Router) dispatchMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	parts := strings.Fields(msg.Text)
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: word,
		Args:    parts[1:],
		Adapter: r.adapter,
	}

	cmd, ok := r.lookup(word)
	if !ok {
		_ = req.Reply(ctx, "unknown command. try /help")
		return
	}
	req.ownerOnly = cmd.OwnerOnly

	err := r.chain(cmd.Handle)(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotOwner):
		_ = req.Reply(ctx, "🔒 owner only")
	case errors.Is(err, ErrUsage):
		_ = req.Reply(ctx, "usage: "+tgui.Code(cmd.Usage).String())
	default:
		_ = req.Reply(ctx, "⚠️ "+tgui.Esc(tgui.TruncRunes(err.Error(), 500)).String())
	}
}

// dispatchCallback runs a button press. Outcomes are reported as a toast on
// the pressing client.
func (r *Router) dispatchCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	req := &Request{
		Update:   up,
		Chat:     kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:   cb.FromID,
		Callback: cb,
		Adapter:  r.adapter,
	}
	toast := ""
	scope, action, ok := tgui.ParseData(cb.Data)
	r.mu.RLock()
	h, found := r.buttons[scope]
	r.mu.RUnlock()
	if !ok || !found {
		toast = "this button is no longer supported"
	} else {
		req.Command = action
		req.ownerOnly = h.OwnerOnly
		err := r.chain(h.Handle)(ctx, req)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotOwner):
			toast = "🔒 owner only"
		default:
			toast = "⚠️ " + err.Error()
		}
	}
	if ans, ok := r.adapter.(kit.CallbackAnswerer); ok {
		actx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := ans.AnswerCallback(actx, cb.ID, toast); err != nil {
			r.log.Debug("answering callback failed", logx.Err(err))
		}
	}
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	r.mu.RLock()
	cmds := append([]*Command(nil), r.order...)
	r.mu.RUnlock()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	for _, c := range cmds {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		lock := ""
		if c.OwnerOnly {
			lock = " 🔒"
		}
		fmt.Fprintf(&b, "%s %s%s\n", tgui.Code(usage), tgui.Esc(c.Description), lock)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

// sanitizeCommand converts a name into a Telegram-safe command, [a-z0-9_]{1,32}.
func sanitizeCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ' || r == '/':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}
