package core

import (
	"errors"
	"fmt"
	"time"
)

// Period is the target accounting month.
type Period struct {
	Year  int
	Month int
}

var ErrInvalidPeriod = errors.New("invalid period")

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d (use 1..12)", ErrInvalidPeriod, p.Month)
	}
	if p.Year < 2000 || p.Year > 2200 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// MonthBoundsLocal returns the first instant of the period's month and the
// first instant of the following month, both in tz. The month window is the
// half-open interval [start, next).
func MonthBoundsLocal(p Period, tz *time.Location) (start, next time.Time) {
	start = time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, tz)
	next = start.AddDate(0, 1, 0)
	return start, next
}

// EndOfYesterdayUTC returns yesterday 23:59:59 in tz, expressed in UTC.
func EndOfYesterdayUTC(now time.Time, tz *time.Location) time.Time {
	local := now.In(tz)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
	return midnight.Add(-time.Second).UTC()
}

// ClampBefore bounds the upper edge of an API window: never past the end of
// yesterday in local time, never past now minus the safety margin (the
// platform rejects windows reaching into the near future). When clamping
// inverts the window, before is forced to just above after.
func ClampBefore(after, before, now time.Time, safety time.Duration, tz *time.Location) time.Time {
	safe := before
	if y := EndOfYesterdayUTC(now, tz); y.Before(safe) {
		safe = y
	}
	if n := now.Add(-safety); n.Before(safe) {
		safe = n
	}
	if !safe.After(after) {
		safe = after.Add(time.Second)
		if n := now.Add(-safety); n.Before(safe) {
			safe = n
		}
	}
	return safe
}

// ISOZ formats a timestamp as second-precision RFC 3339 UTC ("...Z"), the
// form the platform expects in query parameters and that keys the line hash.
func ISOZ(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// ParseISOZ parses an RFC 3339 timestamp, tolerating both "Z" and numeric
// offsets. ok is false for empty or malformed input.
func ParseISOZ(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
