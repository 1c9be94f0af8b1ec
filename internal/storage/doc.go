// Package storage provides the small durable key-value store used by the timer.
//
// It holds two kinds of keys:
//   - user settings (phase durations), which publish change notifications
//   - the countdown checkpoint, written on every start/resume and cleared on
//     pause/reset, which is the only state that must survive process death
//
// Drivers: "memory" (tests, ephemeral runs), "file" (JSON snapshot + JSON Lines
// journal) and "sqlite".
package storage
