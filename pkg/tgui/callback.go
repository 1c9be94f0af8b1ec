package tgui

import (
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "pomodorod/internal/transport"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats callback data as "scope:action".
func Data(scope, action string) (string, error) {
	s := strings.TrimSpace(scope) + ":" + strings.TrimSpace(action)
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// ParseData splits data produced by Data.
func ParseData(data string) (scope, action string, ok bool) {
	scope, action, ok = strings.Cut(data, ":")
	if !ok || scope == "" || action == "" {
		return "", "", false
	}
	return scope, action, true
}

// Markup builds an inline keyboard. It returns nil for an empty keyboard so
// edits drop any previous one.
func Markup(rows [][]kit.Button) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, r := range rows {
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			if b.Text == "" || b.Data == "" {
				continue
			}
			btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data})
		}
		if len(btns) > 0 {
			out = append(out, rm.Row(btns...))
		}
	}
	if len(out) == 0 {
		return nil
	}
	rm.Inline(out...)
	return rm
}
