// Package timeacct holds the pure time-accounting rules for tasks: closing
// pause intervals and computing the final actual/difference minutes.
//
// All results are whole minutes, floored, and clamped at zero so that clock
// skew between devices can never produce negative bookkeeping.
package timeacct

import "time"

// ClosePause returns the length in minutes of a pause interval that started
// at pauseStartedAt and ends now. Clamped to zero to absorb clock skew.
func ClosePause(pauseStartedAt, now time.Time) int {
	minutes := int(now.Sub(pauseStartedAt).Minutes())
	if minutes < 0 {
		return 0
	}
	return minutes
}

// Finalize computes the derived timing fields for a finishing task.
//
// actualMinutes is the elapsed wall-clock time since startedAt minus all
// accumulated pause minutes, floored and clamped at zero: a long-elapsed task
// that was mostly paused can legitimately finish with zero actual minutes.
// differenceMinutes is actualMinutes - timeLimitMinutes, or nil when the task
// carries no limit.
func Finalize(startedAt time.Time, totalPauseMinutes int, now time.Time, timeLimitMinutes *int) (actualMinutes int, differenceMinutes *int) {
	elapsed := int(now.Sub(startedAt).Minutes())
	actualMinutes = elapsed - totalPauseMinutes
	if actualMinutes < 0 {
		actualMinutes = 0
	}
	if timeLimitMinutes != nil {
		diff := actualMinutes - *timeLimitMinutes
		differenceMinutes = &diff
	}
	return actualMinutes, differenceMinutes
}
