// Package interval holds the minute-of-day arithmetic shared by the scheduling engine.
// All intervals are half-open: [start, end).
package interval

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidClock = errors.New("time must be HH:mm (24-hour)")
	ErrInvalidDate  = errors.New("date must be YYYY-MM-DD")
)

// ToMinutes converts an "HH:mm" clock string into minutes after midnight.
func ToMinutes(hhmm string) (int, error) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, hhmm)
	}
	h, okH := twoDigits(hhmm[0], hhmm[1])
	m, okM := twoDigits(hhmm[3], hhmm[4])
	if !okH || !okM || h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, hhmm)
	}
	return h*60 + m, nil
}

// MustMinutes is ToMinutes for literals known to be valid.
func MustMinutes(hhmm string) int {
	m, err := ToMinutes(hhmm)
	if err != nil {
		panic(err)
	}
	return m
}

// FormatMinutes renders minutes after midnight as "HH:mm".
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share any minute.
// Touching edges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Within reports whether [start, end) lies inside [windowStart, windowEnd].
func Within(start, end, windowStart, windowEnd int) bool {
	return start >= windowStart && end <= windowEnd
}

// ParseDate parses an ISO calendar date. The result is midnight UTC so that
// day arithmetic never crosses a DST boundary.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DateOf truncates t to its calendar date, keeping the wall-clock day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WallClock re-expresses t's local wall-clock reading in UTC, matching how
// session dates and times are stored.
func WallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// AddDays steps a calendar date by n days.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
