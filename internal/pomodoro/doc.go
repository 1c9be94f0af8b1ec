// Package pomodoro implements the phase scheduler and the suspension-proof
// countdown behind the timer.
//
// All timer state is owned by a single Host goroutine. Remaining time is
// always derived from a persisted monotonic deadline (endRef - now), never
// from a decremented counter, so missed ticks, process suspension and
// restarts cannot make the countdown drift.
package pomodoro
