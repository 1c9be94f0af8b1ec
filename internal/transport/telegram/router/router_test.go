package router

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"pomodorod/internal/pomodoro"
	kit "pomodorod/internal/transport"
	logx "pomodorod/pkg/logx"
)

type replyAdapter struct {
	texts   []string
	kbs     [][][]kit.Button
	edits   []string
	answers []string
	menu    []kit.BotCommand
}

func (a *replyAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *replyAdapter) Stop(context.Context) error                     { return nil }
func (a *replyAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.texts = append(a.texts, text)
	a.kbs = append(a.kbs, opt.Keyboard)
	return kit.MessageRef{ChatID: 1, MessageID: len(a.texts)}, nil
}
func (a *replyAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	a.edits = append(a.edits, fmt.Sprintf("%d:%s", ref.MessageID, text))
	return nil
}
func (a *replyAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	a.answers = append(a.answers, text)
	return nil
}
func (a *replyAdapter) Delete(context.Context, kit.MessageRef) error { return nil }
func (a *replyAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.menu = cmds
	return nil
}

func (a *replyAdapter) last() string {
	if len(a.texts) == 0 {
		return ""
	}
	return a.texts[len(a.texts)-1]
}

type fakeTimer struct {
	snap  pomodoro.Snapshot
	calls []string
}

func (f *fakeTimer) do(name string, st pomodoro.Status) (pomodoro.Snapshot, error) {
	f.calls = append(f.calls, name)
	f.snap.Status = st
	return f.snap, nil
}

func (f *fakeTimer) Start(context.Context) (pomodoro.Snapshot, error) {
	return f.do("start", pomodoro.StatusRunning)
}
func (f *fakeTimer) Pause(context.Context) (pomodoro.Snapshot, error) {
	return f.do("pause", pomodoro.StatusPaused)
}
func (f *fakeTimer) Resume(context.Context) (pomodoro.Snapshot, error) {
	return f.do("resume", pomodoro.StatusRunning)
}
func (f *fakeTimer) Reset(context.Context) (pomodoro.Snapshot, error) {
	return f.do("reset", pomodoro.StatusIdle)
}
func (f *fakeTimer) Toggle(context.Context) (pomodoro.Snapshot, error) {
	return f.do("toggle", pomodoro.StatusRunning)
}
func (f *fakeTimer) Snapshot() pomodoro.Snapshot { return f.snap }

type fakeSettings struct {
	d pomodoro.Durations
}

func (f *fakeSettings) Durations(context.Context) pomodoro.Durations { return f.d }
func (f *fakeSettings) Set(_ context.Context, k pomodoro.DurationKey, d time.Duration) (time.Duration, error) {
	d = min(max(d, pomodoro.MinDuration), pomodoro.MaxDuration)
	switch k {
	case pomodoro.KeyWork:
		f.d.Work = d
	case pomodoro.KeyShortRest:
		f.d.ShortRest = d
	case pomodoro.KeyLongRest:
		f.d.LongRest = d
	}
	return d, nil
}
func (f *fakeSettings) Clear(context.Context) error {
	f.d = pomodoro.DefaultDurations()
	return nil
}

const owner = 7

func newRouter(t *testing.T) (*Router, *replyAdapter, *fakeTimer, *fakeSettings) {
	t.Helper()
	ad := &replyAdapter{}
	tm := &fakeTimer{snap: pomodoro.Snapshot{Phase: pomodoro.PhaseWork, Status: pomodoro.StatusIdle, MinutesLeft: 25}}
	st := &fakeSettings{d: pomodoro.DefaultDurations()}
	r := New(logx.Nop(), ad, []int64{owner})
	r.Register(TimerCommands(tm, st)...)
	return r, ad, tm, st
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: from, Text: text}}
}

func TestDispatchTimerCommands(t *testing.T) {
	r, ad, tm, _ := newRouter(t)
	ctx := context.Background()

	r.Dispatch(ctx, msg(owner, "/start"))
	r.Dispatch(ctx, msg(owner, "/pause@pomodoro_bot"))
	r.Dispatch(ctx, msg(owner, "/t"))
	r.Dispatch(ctx, msg(owner, "hello")) // not a command

	if got := strings.Join(tm.calls, ","); got != "start,pause,toggle" {
		t.Fatalf("timer calls = %s", got)
	}
	if len(ad.texts) != 3 {
		t.Fatalf("replies = %q", ad.texts)
	}
	if !strings.Contains(ad.texts[1], "paused") {
		t.Fatalf("pause reply = %q", ad.texts[1])
	}
}

func TestDispatchRejectsNonOwners(t *testing.T) {
	r, ad, tm, _ := newRouter(t)
	r.Dispatch(context.Background(), msg(99, "/start"))
	if len(tm.calls) != 0 {
		t.Fatalf("non-owner reached the timer: %v", tm.calls)
	}
	if !strings.Contains(ad.last(), "owner only") {
		t.Fatalf("reply = %q", ad.last())
	}

	r.SetOwners([]int64{99})
	r.Dispatch(context.Background(), msg(99, "/start"))
	if len(tm.calls) != 1 {
		t.Fatal("new owner was rejected")
	}
}

func TestSetAndDefaults(t *testing.T) {
	r, ad, _, st := newRouter(t)
	ctx := context.Background()

	tests := []struct {
		text  string
		reply string
	}{
		{"/set work 30", "workTime set to 30m0s"},
		{"/set short 500", "shortRest set to 2h0m0s"},
		{"/set work", "usage:"},
		{"/set bogus 5", "usage:"},
		{"/set work ten", "usage:"},
		{"/set long 153722867281", "longRest set to 2h0m0s"},
		{"/set long 99999999999999999999", "longRest set to 2h0m0s"},
		{"/set long -99999999999999999999", "longRest set to 1m0s"},
	}
	for _, tt := range tests {
		r.Dispatch(ctx, msg(owner, tt.text))
		if !strings.Contains(ad.last(), tt.reply) {
			t.Fatalf("%s: reply = %q, want %q", tt.text, ad.last(), tt.reply)
		}
	}
	if st.d.Work != 30*time.Minute {
		t.Fatalf("work = %v", st.d.Work)
	}

	if st.d.LongRest != pomodoro.MinDuration {
		t.Fatalf("longRest = %v", st.d.LongRest)
	}

	r.Dispatch(ctx, msg(owner, "/defaults"))
	if st.d != pomodoro.DefaultDurations() {
		t.Fatalf("durations after /defaults = %+v", st.d)
	}
	if !strings.Contains(ad.last(), "workTime: 25m0s") {
		t.Fatalf("reply = %q", ad.last())
	}
}

func TestHelpUnknownAndMenu(t *testing.T) {
	r, ad, _, _ := newRouter(t)
	ctx := context.Background()

	r.Dispatch(ctx, msg(42, "/help"))
	if !strings.Contains(ad.last(), "/set &lt;work|short|long|threshold&gt; &lt;minutes&gt;") {
		t.Fatalf("help = %q", ad.last())
	}
	r.Dispatch(ctx, msg(42, "/nope"))
	if !strings.Contains(ad.last(), "unknown command") {
		t.Fatalf("reply = %q", ad.last())
	}

	if err := r.PublishMenu(ctx); err != nil {
		t.Fatalf("PublishMenu: %v", err)
	}
	names := make([]string, 0, len(ad.menu))
	for _, c := range ad.menu {
		names = append(names, c.Command)
	}
	want := "defaults,help,pause,reset,resume,set,settings,start,status,toggle"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("menu = %s, want %s", got, want)
	}
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	ad := &replyAdapter{}
	r := New(logx.Nop(), ad, nil)
	r.Register(Command{Name: "boom", Handle: func(context.Context, *Request) error { panic("boom") }})
	r.Dispatch(context.Background(), msg(1, "/boom"))
	if !strings.Contains(ad.last(), "panic: boom") {
		t.Fatalf("reply = %q", ad.last())
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := map[string]string{
		"Start":                 "start",
		"long-rest":             "long_rest",
		" set  work ":           "set_work",
		"__x__":                 "x",
		"ünïcode":               "ncode",
		strings.Repeat("a", 40): strings.Repeat("a", 32),
	}
	for in, want := range tests {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func press(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", ChatID: 1, MessageID: 42, FromID: from, Data: data}}
}

func keyboardData(kb [][]kit.Button) string {
	var out []string
	for _, row := range kb {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return strings.Join(out, ",")
}

func TestControlKeyboardFollowsState(t *testing.T) {
	tests := []struct {
		snap pomodoro.Snapshot
		want string
	}{
		{pomodoro.Snapshot{Status: pomodoro.StatusIdle}, "timer:start,timer:refresh"},
		{pomodoro.Snapshot{Status: pomodoro.StatusRunning, RemainingMs: 1000}, "timer:pause,timer:reset,timer:refresh"},
		{pomodoro.Snapshot{Status: pomodoro.StatusPaused, RemainingMs: 1000}, "timer:resume,timer:reset,timer:refresh"},
		{pomodoro.Snapshot{Status: pomodoro.StatusPaused}, "timer:start,timer:refresh"},
	}
	for _, tt := range tests {
		if got := keyboardData(ControlKeyboard(tt.snap)); got != tt.want {
			t.Fatalf("%s: keyboard = %s, want %s", tt.snap.Status, got, tt.want)
		}
	}
}

func TestStatusRepliesWithKeyboard(t *testing.T) {
	r, ad, _, _ := newRouter(t)
	r.Dispatch(context.Background(), msg(owner, "/status"))
	if got := keyboardData(ad.kbs[len(ad.kbs)-1]); got != "timer:start,timer:refresh" {
		t.Fatalf("keyboard = %s", got)
	}
}

func TestButtonPress(t *testing.T) {
	r, ad, tm, _ := newRouter(t)
	r.RegisterButtons(TimerButtons(tm))
	ctx := context.Background()

	r.Dispatch(ctx, press(owner, "timer:start"))
	if got := strings.Join(tm.calls, ","); got != "start" {
		t.Fatalf("calls = %s", got)
	}
	if len(ad.edits) != 1 || !strings.HasPrefix(ad.edits[0], "42:") || !strings.Contains(ad.edits[0], "running") {
		t.Fatalf("edits = %q", ad.edits)
	}

	tests := []struct {
		from  int64
		data  string
		toast string
	}{
		{owner, "timer:pause", ""},
		{99, "timer:reset", "owner only"},
		{owner, "timer:explode", "unknown action"},
		{owner, "legacy", "no longer supported"},
		{owner, "stats:show", "no longer supported"},
	}
	for _, tt := range tests {
		r.Dispatch(ctx, press(tt.from, tt.data))
		got := ad.answers[len(ad.answers)-1]
		if tt.toast == "" && got != "" || !strings.Contains(got, tt.toast) {
			t.Fatalf("%s from %d: toast = %q, want %q", tt.data, tt.from, got, tt.toast)
		}
	}
	if got := strings.Join(tm.calls, ","); got != "start,pause" {
		t.Fatalf("calls = %s", got)
	}
	if len(ad.texts) != 0 {
		t.Fatalf("button presses should not post messages: %q", ad.texts)
	}
}
