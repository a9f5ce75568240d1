package service

import "time"

// LockoutDuration returns how long an account stays locked after the given
// number of consecutive incorrect password attempts. The first failure only
// locks for a second; the window grows steeply from there.
func LockoutDuration(incorrectCount int) time.Duration {
	switch incorrectCount {
	case 0:
		return 0
	case 1:
		return time.Second
	case 2:
		return 5 * time.Second
	case 3:
		return 2 * time.Minute
	case 4:
		return 15 * time.Minute
	case 5:
		return 30 * time.Minute
	case 6:
		return 2 * time.Hour
	case 7:
		return 24 * time.Hour
	case 8:
		return 7 * 24 * time.Hour
	case 9:
		return 14 * 24 * time.Hour
	default:
		return 365 * 24 * time.Hour
	}
}

// lockoutUntil computes the lockout deadline for the given failure count, or
// nil when no lockout applies.
func lockoutUntil(incorrectCount int, now time.Time) *time.Time {
	d := LockoutDuration(incorrectCount)
	if d == 0 {
		return nil
	}
	until := now.Add(d)
	return &until
}
