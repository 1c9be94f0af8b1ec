// Package tgui holds small Telegram UI helpers: HTML-safe text building,
// compact callback data and inline keyboard markup.
package tgui
