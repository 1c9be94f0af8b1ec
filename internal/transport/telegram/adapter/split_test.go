package adapter

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		limit     int
		parseMode string
		want      []string
	}{
		{"short", "Focus on your task: 25:00", 100, "", []string{"Focus on your task: 25:00"}},
		{"empty", "", 10, "", []string{""}},
		{"newline boundary", "aaaa\nbbbb\ncccc", 10, "", []string{"aaaa\nbbbb", "cccc"}},
		{"hard cut", strings.Repeat("x", 12), 5, "", []string{"xxxxx", "xxxxx", "xx"}},
		{"html tag kept whole", "abcdef<b>x</b>", 8, "HTML", []string{"abcdef", "<b>x</b>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitText(tt.in, tt.limit, tt.parseMode)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Fatalf("splitText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestForbiddenClassification(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"telegram: Forbidden: bot was blocked by the user (403)", true},
		{"telegram: Bad Request: chat not found (400)", true},
		{"telegram: Bad Gateway (502)", false},
	}
	for _, tt := range tests {
		if got := forbidden(stringError(tt.err)); got != tt.want {
			t.Fatalf("forbidden(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }
