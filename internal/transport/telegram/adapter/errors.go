package adapter

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "pomodorod/internal/transport"
)

// classify maps Telegram refusals (blocked, kicked, chat gone) to
// kit.ErrForbidden so callers can stop retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if forbidden(err) {
		return fmt.Errorf("%w: %v", kit.ErrForbidden, err)
	}
	return err
}

func forbidden(err error) bool {
	if errors.Is(err, tele.ErrBlockedByUser) {
		return true
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == 403 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "Forbidden") || strings.Contains(s, "(403)") || strings.Contains(s, "chat not found")
}

func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
