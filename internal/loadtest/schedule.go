package loadtest

import "time"

// RateAt returns how many requests to issue in the second starting at
// elapsed. During ramp-up the rate grows linearly from 0 and is truncated
// to an integer; afterwards it is the full target.
func RateAt(elapsed time.Duration, target int, rampUp time.Duration) int {
	if rampUp <= 0 || elapsed >= rampUp {
		return target
	}
	if elapsed < 0 {
		return 0
	}
	return int(float64(target) * (elapsed.Seconds() / rampUp.Seconds()))
}

// Spacing is the gap between successive issuances within a second.
func Spacing(rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(rate)
}
