package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TIME OF DAY - Minute-granular wall-clock time ("HH:MM")
// =============================================================================

// TimeOfDay is a minute-of-day value. The zero value is "absent": schedule
// fields that were never set, or whose source string could not be parsed,
// carry Valid=false and resolve to a zero-length window downstream.
type TimeOfDay struct {
	Minutes int // minutes since local midnight, [0, 1439]
	Valid   bool
}

// ParseTimeOfDay normalizes a schedule time string to minute granularity.
// Accepts "HH:MM" and "HH:MM:SS" (seconds discarded), with or without a
// leading zero on the hour. Anything unparsable is treated as absent.
func ParseTimeOfDay(s string) TimeOfDay {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return TimeOfDay{}
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return TimeOfDay{}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}
	}
	return TimeOfDay{Minutes: h*60 + m, Valid: true}
}

// TimeOfDayFrom extracts the minute-of-day from a wall-clock instant.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay{Minutes: t.Hour()*60 + t.Minute(), Valid: true}
}

// MinuteOfDay constructs a valid TimeOfDay from hour and minute.
func MinuteOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Minutes: hour*60 + minute, Valid: true}
}

func (t TimeOfDay) Hour() int   { return t.Minutes / 60 }
func (t TimeOfDay) Minute() int { return t.Minutes % 60 }

func (t TimeOfDay) Before(other TimeOfDay) bool { return t.Minutes < other.Minutes }
func (t TimeOfDay) After(other TimeOfDay) bool  { return t.Minutes > other.Minutes }

// String renders the normalized "HH:MM" form, or "" when absent.
func (t TimeOfDay) String() string {
	if !t.Valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// =============================================================================
// DATE - Civil calendar date in the engine's local zone
// =============================================================================

// Date identifies a local calendar day. Punches are partitioned into dates
// using the engine's configured *time.Location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of an instant in the given zone.
func DateOf(t time.Time, loc *time.Location) Date {
	local := t.In(loc)
	return Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// ParseDate parses a "2006-01-02" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// At anchors a time-of-day onto this date in the given zone. Absent
// times anchor to midnight; callers must check Valid first when the
// distinction matters.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)
}

// Midnight returns the start of the day in the given zone.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

func (d Date) Equal(other Date) bool { return d == other }

func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock abstracts "now" so gate decisions are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// FixedClock always reports the same instant. Test use only.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
