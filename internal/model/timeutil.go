package model

import "time"

// MaxRegistrationYears caps how far in the future a registration can run.
const MaxRegistrationYears = 10

var (
	// StartOfTime is the earliest instant schedules may start at.
	StartOfTime = time.Unix(0, 0).UTC()
	// EndOfTime stands for "never" in deletion, recurrence and autorenew end times.
	EndOfTime = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

func isLeap(y int) bool { return y%4 == 0 && (y%100 != 0 || y%400 == 0) }

// LeapSafeAddYears adds years, mapping Feb 29 to Feb 28 in non-leap target years.
func LeapSafeAddYears(t time.Time, years int) time.Time {
	if t.Equal(EndOfTime) {
		return t
	}
	y, m, d := t.Date()
	if m == time.February && d == 29 && !isLeap(y+years) {
		d = 28
	}
	return time.Date(y+years, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// LeapSafeSubtractYears is LeapSafeAddYears with a negated count.
func LeapSafeSubtractYears(t time.Time, years int) time.Time {
	return LeapSafeAddYears(t, -years)
}

// ExtendRegistrationWithCap extends cur by years but never past now + MaxRegistrationYears.
func ExtendRegistrationWithCap(now, cur time.Time, years int) time.Time {
	beforeCap := LeapSafeAddYears(cur, years)
	limit := LeapSafeAddYears(now, MaxRegistrationYears)
	if beforeCap.After(limit) {
		return limit
	}
	return beforeCap
}

// IsBeforeOrAt reports a <= b.
func IsBeforeOrAt(a, b time.Time) bool { return !a.After(b) }

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
