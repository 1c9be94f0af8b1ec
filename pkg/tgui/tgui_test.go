package tgui

import (
	"strings"
	"testing"

	kit "pomodorod/internal/transport"
)

func TestHTMLHelpers(t *testing.T) {
	got := JoinH(" ", B("a<b"), Esc(""), Code("x&y"), I("i"))
	want := "<b>a&lt;b</b> <code>x&amp;y</code> <i>i</i>"
	if got.String() != want {
		t.Fatalf("JoinH = %q, want %q", got, want)
	}
}

func TestCallbackData(t *testing.T) {
	d, err := Data("timer", "toggle")
	if err != nil || d != "timer:toggle" {
		t.Fatalf("Data = %q, %v", d, err)
	}
	if _, err := Data("timer", strings.Repeat("x", 64)); err != ErrCallbackDataTooLong {
		t.Fatalf("long data err = %v", err)
	}

	tests := []struct {
		in            string
		scope, action string
		ok            bool
	}{
		{"timer:reset", "timer", "reset", true},
		{"timer:", "", "", false},
		{"plain", "", "", false},
		{":x", "", "", false},
	}
	for _, tt := range tests {
		s, a, ok := ParseData(tt.in)
		if s != tt.scope || a != tt.action || ok != tt.ok {
			t.Fatalf("ParseData(%q) = %q %q %v", tt.in, s, a, ok)
		}
	}
}

func TestMarkup(t *testing.T) {
	if Markup(nil) != nil {
		t.Fatal("empty keyboard should be nil")
	}
	rm := Markup([][]kit.Button{
		{{Text: "Pause", Data: "timer:pause"}, {Text: "Reset", Data: "timer:reset"}},
		{{Text: "", Data: "skip"}},
	})
	if rm == nil || len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("markup = %+v", rm)
	}
	if b := rm.InlineKeyboard[0][1]; b.Text != "Reset" || b.Data != "timer:reset" {
		t.Fatalf("button = %+v", b)
	}
}

func TestTruncRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"ünïcode", 2, "ün…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
